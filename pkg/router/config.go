package router

import (
	"slices"
	"strings"
)

// ProviderKind names the backend an auto strategy or model is routed to.
type ProviderKind string

const (
	ProviderGoogle     ProviderKind = "google"
	ProviderOpenRouter ProviderKind = "openrouter"
	ProviderSambaNova  ProviderKind = "sambanova"
	ProviderSearch     ProviderKind = "search"
)

// AppConfig carries the caller's credentials and preferences. The router only
// reads it.
type AppConfig struct {
	GoogleKeys       []string
	OpenRouterKey    string
	SambaNovaKey     string
	GeminiModels     []string
	OpenRouterModels []string
	SambaNovaModels  []string
	SystemPrompt     string
	Memory           []string // facts about the user appended to the system prompt
}

// HasGoogleKeys reports whether at least one non-blank Google key is set.
func (c AppConfig) HasGoogleKeys() bool {
	return slices.ContainsFunc(c.GoogleKeys, func(k string) bool { return strings.TrimSpace(k) != "" })
}

// AutoModeConfig is a named fallback strategy. An empty Models list is
// resolved from AppConfig at call time.
type AutoModeConfig struct {
	ID          string       `json:"id" yaml:"id"`
	Label       string       `json:"label" yaml:"label"`
	Description string       `json:"description" yaml:"description"`
	Provider    ProviderKind `json:"provider" yaml:"provider"`
	Models      []string     `json:"models,omitempty" yaml:"models,omitempty"`
}

// Reserved strategy ids.
const (
	AutoGeminiFlash = "auto-gemini-flash"
	AutoGeminiPro   = "auto-gemini-pro"
	AutoOpenRouter  = "auto-openrouter"
	AutoSamba       = "auto-samba"
	AutoSearch      = "auto-search"
)

// DefaultStrategies returns the built-in auto mode table.
func DefaultStrategies() []AutoModeConfig {
	return []AutoModeConfig{
		{
			ID:          AutoGeminiFlash,
			Label:       "Auto (Gemini Flash)",
			Description: "Fast Gemini models, newest first",
			Provider:    ProviderGoogle,
			Models:      []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
		},
		{
			ID:          AutoGeminiPro,
			Label:       "Auto (Gemini Pro)",
			Description: "Gemini Pro with Flash as backup",
			Provider:    ProviderGoogle,
			Models:      []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"},
		},
		{
			ID:          AutoOpenRouter,
			Label:       "Auto (OpenRouter)",
			Description: "Your OpenRouter models in random order",
			Provider:    ProviderOpenRouter,
		},
		{
			ID:          AutoSamba,
			Label:       "Auto (SambaNova)",
			Description: "SambaNova open models",
			Provider:    ProviderSambaNova,
			Models:      []string{"DeepSeek-V3.1", "DeepSeek-V3-0324", "gpt-oss-120b", "Llama-4-Maverick-17B-128E-Instruct"},
		},
		{
			ID:          AutoSearch,
			Label:       "Auto (Web Search)",
			Description: "Grounded answers with web sources",
			Provider:    ProviderSearch,
		},
	}
}
