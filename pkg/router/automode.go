package router

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/abdhe/chat-router/pkg/metrics"
	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// candidates resolves the ordered model list of a strategy. OpenRouter
// strategies without a fixed list shuffle the configured OpenRouter models.
func (r *Router) candidates(s AutoModeConfig, cfg AppConfig) ([]string, error) {
	var models []string
	switch {
	case len(s.Models) > 0:
		models = slices.Clone(s.Models)
	case s.Provider == ProviderOpenRouter:
		models = r.shuffler.Shuffle(nonBlank(cfg.OpenRouterModels))
	case s.Provider == ProviderSambaNova:
		models = nonBlank(cfg.SambaNovaModels)
	case s.Provider == ProviderGoogle:
		models = nonBlank(cfg.GeminiModels)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: %s has no models, configure %s", resilience.ErrConfiguration, s.ID, modelSetting(s.Provider))
	}
	return models, nil
}

func modelSetting(kind ProviderKind) string {
	switch kind {
	case ProviderOpenRouter:
		return "OpenRouter models"
	case ProviderSambaNova:
		return "SambaNova models"
	case ProviderGoogle:
		return "Gemini models"
	default:
		return "a model list"
	}
}

// requireCredentials fails before any network call when the strategy's
// provider has no key.
func requireCredentials(kind ProviderKind, cfg AppConfig) error {
	switch kind {
	case ProviderGoogle:
		if !cfg.HasGoogleKeys() {
			return fmt.Errorf("%w: no Google API keys configured", resilience.ErrConfiguration)
		}
	case ProviderOpenRouter:
		if strings.TrimSpace(cfg.OpenRouterKey) == "" {
			return fmt.Errorf("%w: OpenRouter API key is not set", resilience.ErrConfiguration)
		}
	case ProviderSambaNova:
		if strings.TrimSpace(cfg.SambaNovaKey) == "" {
			return fmt.Errorf("%w: SambaNova API key is not set", resilience.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", resilience.ErrConfiguration, kind)
	}
	return nil
}

// runAutoMode tries the strategy's models in order. Retryable failures move
// on to the next model; anything else ends the call.
func (r *Router) runAutoMode(ctx context.Context, s AutoModeConfig, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	if err := requireCredentials(s.Provider, cfg); err != nil {
		return provider.Result{}, err
	}
	models, err := r.candidates(s, cfg)
	if err != nil {
		return provider.Result{}, err
	}
	prompt := EffectiveSystemPrompt(cfg)

	call := func(ctx context.Context, model string) (provider.Result, error) {
		switch s.Provider {
		case ProviderGoogle:
			return r.callGemini(ctx, geminiCall{model: model, prompt: prompt}, messages, cfg, emit)
		case ProviderSambaNova:
			return r.callOpenAICompat(ctx, r.sambanova, model, cfg.SambaNovaKey, prompt, messages, emit)
		default:
			return r.callOpenAICompat(ctx, r.openrouter, model, cfg.OpenRouterKey, prompt, messages, emit)
		}
	}

	return resilience.Fallback(ctx, models, resilience.FallbackOptions{
		What:      "models",
		OnAttempt: r.announce(s.Label, emit),
		OnFailure: r.reportFailure(s.ID, emit),
	}, call)
}

// announce discards the previous candidate's output and logs the attempt.
func (r *Router) announce(label string, emit provider.Emitter) func(i, total int, model string) {
	return func(i, total int, model string) {
		emit.Reset()
		emit.Logf(provider.LevelInfo, "%s: trying %s (%d/%d)", label, model, i+1, total)
	}
}

func (r *Router) reportFailure(strategy string, emit provider.Emitter) func(i, total int, model string, err error, next bool) {
	return func(_, _ int, model string, err error, next bool) {
		msg := resilience.Truncate(err.Error(), resilience.FailureMessageLimit)
		if next {
			metrics.FallbacksTotal.WithLabelValues(strategy).Inc()
			emit.Logf(provider.LevelWarn, "%s failed, trying next: %s", model, msg)
			return
		}
		emit.Logf(provider.LevelError, "%s failed: %s", model, msg)
	}
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
