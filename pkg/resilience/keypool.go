// Package resilience provides key rotation and fallback chains for provider calls.
package resilience

import (
	"fmt"
	"strings"
)

// KeyPool holds the credentials for one provider. Each call asks for a fresh
// order, so no state is shared between concurrent calls.
type KeyPool struct {
	keys     []string
	shuffler Shuffler
}

// NewKeyPool creates a key pool from a list of API keys.
// Blank and duplicate keys are dropped. A nil shuffler means RandomShuffle.
func NewKeyPool(keys []string, shuffler Shuffler) *KeyPool {
	if shuffler == nil {
		shuffler = RandomShuffle
	}
	seen := make(map[string]struct{}, len(keys))
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		cleaned = append(cleaned, k)
	}
	return &KeyPool{keys: cleaned, shuffler: shuffler}
}

// Order returns the keys in the order they should be tried for one call.
func (kp *KeyPool) Order() []string {
	return kp.shuffler.Shuffle(kp.keys)
}

// Size returns the number of keys in the pool.
func (kp *KeyPool) Size() int {
	return len(kp.keys)
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return fmt.Sprintf("...%s", key[len(key)-4:])
}
