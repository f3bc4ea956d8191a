package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abdhe/chat-router/pkg/router"
)

// Profile is the user-editable part of the app configuration: model lists,
// system prompt and memory facts.
type Profile struct {
	SystemPrompt     string                  `yaml:"system_prompt"`
	Memory           []string                `yaml:"memory"`
	GeminiModels     []string                `yaml:"gemini_models"`
	OpenRouterModels []string                `yaml:"openrouter_models"`
	SambaNovaModels  []string                `yaml:"sambanova_models"`
	Strategies       []router.AutoModeConfig `yaml:"strategies"`
}

const defaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely, and use Markdown where it helps readability."

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() Profile {
	return Profile{
		SystemPrompt:     defaultSystemPrompt,
		GeminiModels:     []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.5-flash-lite", "gemini-2.5-flash-image-preview"},
		OpenRouterModels: []string{"deepseek/deepseek-chat-v3.1:free", "meta-llama/llama-3.3-70b-instruct:free", "qwen/qwen3-235b-a22b:free"},
		// Direct picks route by name, so every id here carries a SambaNova prefix.
		SambaNovaModels:  []string{"DeepSeek-V3.1", "DeepSeek-V3-0324", "gpt-oss-120b"},
	}
}

// LoadProfile reads a YAML profile. Missing fields keep their defaults; an
// empty path returns DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("op=config.LoadProfile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("op=config.LoadProfile: parse %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Profile{}, fmt.Errorf("op=config.LoadProfile: %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) validate() error {
	var errs []error
	for i, s := range p.Strategies {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("strategy %d has no id", i))
		}
		switch s.Provider {
		case router.ProviderGoogle, router.ProviderOpenRouter, router.ProviderSambaNova, router.ProviderSearch:
		default:
			errs = append(errs, fmt.Errorf("strategy %q has unknown provider %q", s.ID, s.Provider))
		}
	}
	return errors.Join(errs...)
}

// RouterStrategies returns the built-in strategies followed by the profile's
// own, which override built-ins with the same id.
func (p Profile) RouterStrategies() []router.AutoModeConfig {
	return append(router.DefaultStrategies(), p.Strategies...)
}

// AppConfig combines credentials from the environment with the profile.
func (c Config) AppConfig(p Profile) router.AppConfig {
	return router.AppConfig{
		GoogleKeys:       c.GoogleAPIKeys,
		OpenRouterKey:    c.OpenRouterAPIKey,
		SambaNovaKey:     c.SambaNovaAPIKey,
		GeminiModels:     p.GeminiModels,
		OpenRouterModels: p.OpenRouterModels,
		SambaNovaModels:  p.SambaNovaModels,
		SystemPrompt:     p.SystemPrompt,
		Memory:           p.Memory,
	}
}
