package resilience

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Shuffler decides the order in which keys or models are tried.
// Implementations must return a new slice and leave the input untouched.
type Shuffler interface {
	Shuffle(items []string) []string
}

// ShuffleFunc adapts a function to the Shuffler interface.
type ShuffleFunc func(items []string) []string

func (f ShuffleFunc) Shuffle(items []string) []string { return f(items) }

var (
	// RandomShuffle spreads load across keys with a uniform permutation per call.
	RandomShuffle Shuffler = ShuffleFunc(func(items []string) []string {
		out := slices.Clone(items)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	})

	// NoShuffle keeps the configured order.
	NoShuffle Shuffler = ShuffleFunc(func(items []string) []string {
		return slices.Clone(items)
	})
)

// SeededShuffler produces a reproducible sequence of permutations.
type SeededShuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededShuffler creates a shuffler whose permutations depend only on seed.
func NewSeededShuffler(seed uint64) *SeededShuffler {
	return &SeededShuffler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededShuffler) Shuffle(items []string) []string {
	out := slices.Clone(items)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
