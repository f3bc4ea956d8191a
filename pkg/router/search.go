package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abdhe/chat-router/pkg/metrics"
	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// Gemini models that support the search tool, best first.
var searchModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.0-flash"}

// SambaNova models used to answer without web access.
var knowledgeModels = []string{"DeepSeek-V3.1", "DeepSeek-V3-0324", "gpt-oss-120b"}

// runSearch answers with Gemini grounded on web search. Without Google keys,
// or when every search model failed, it answers from model knowledge instead.
func (r *Router) runSearch(ctx context.Context, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	if !cfg.HasGoogleKeys() {
		emit.Logf(provider.LevelInfo, "Web search unavailable (no API keys), answering from model knowledge")
		return r.answerFromKnowledge(ctx, messages, cfg, emit)
	}

	res, err := r.searchWeb(ctx, messages, cfg, emit)
	switch {
	case err == nil:
		if block := FormatSources(res.Sources); block != "" {
			res.Text += block
			emit.Text(block)
		}
		return res, nil
	case resilience.IsCanceled(err), provider.IsLocationUnsupported(err):
		return provider.Result{}, err
	}

	emit.Logf(provider.LevelWarn, "Web search failed, answering from model knowledge: %s",
		resilience.Truncate(err.Error(), resilience.FailureMessageLimit))
	metrics.FallbacksTotal.WithLabelValues(AutoSearch).Inc()
	return r.answerFromKnowledge(ctx, messages, cfg, emit)
}

// searchWeb tries each search model with full key rotation. Every failure
// except an unsupported location moves on to the next model.
func (r *Router) searchWeb(ctx context.Context, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	prompt := SearchSystemPrompt(r.now(), cfg)
	return resilience.Fallback(ctx, searchModels, resilience.FallbackOptions{
		What: "search models",
		Retryable: func(err error) bool {
			return !provider.IsLocationUnsupported(err)
		},
		OnAttempt: func(i, total int, model string) {
			emit.Logf(provider.LevelInfo, "Searching the web with %s (%d/%d)", model, i+1, total)
		},
		OnFailure: func(_, _ int, model string, err error, _ bool) {
			emit.Logf(provider.LevelWarn, "Search with %s failed: %s", model,
				resilience.Truncate(err.Error(), resilience.FailureMessageLimit))
		},
	}, func(ctx context.Context, model string) (provider.Result, error) {
		return r.callGemini(ctx, geminiCall{model: model, prompt: prompt, search: true}, messages, cfg, emit)
	})
}

// answerFromKnowledge uses SambaNova when it has a key, then the first
// OpenRouter model.
func (r *Router) answerFromKnowledge(ctx context.Context, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	prompt := KnowledgeSystemPrompt(r.now(), cfg)
	hasSamba := strings.TrimSpace(cfg.SambaNovaKey) != ""
	openRouterModels := nonBlank(cfg.OpenRouterModels)
	hasOpenRouter := strings.TrimSpace(cfg.OpenRouterKey) != "" && len(openRouterModels) > 0

	if !hasSamba && !hasOpenRouter {
		return provider.Result{}, fmt.Errorf("%w: answering without web search needs a SambaNova key or an OpenRouter key with a model", resilience.ErrConfiguration)
	}

	var sambaErr error
	if hasSamba {
		res, err := resilience.Fallback(ctx, knowledgeModels, resilience.FallbackOptions{
			What:      "models",
			Retryable: func(error) bool { return true },
			OnAttempt: r.announce("Knowledge answer", emit),
			OnFailure: r.reportFailure(AutoSearch, emit),
		}, func(ctx context.Context, model string) (provider.Result, error) {
			return r.callOpenAICompat(ctx, r.sambanova, model, cfg.SambaNovaKey, prompt, messages, emit)
		})
		if err == nil || resilience.IsCanceled(err) || !hasOpenRouter {
			return res, err
		}
		sambaErr = err
	}

	if sambaErr != nil {
		emit.Logf(provider.LevelWarn, "SambaNova unavailable, using OpenRouter %s", openRouterModels[0])
	}
	emit.Reset()
	res, err := r.callOpenAICompat(ctx, r.openrouter, openRouterModels[0], cfg.OpenRouterKey, prompt, messages, emit)
	if err != nil && sambaErr != nil && !resilience.IsCanceled(err) {
		return provider.Result{}, errors.Join(sambaErr, err)
	}
	return res, err
}
