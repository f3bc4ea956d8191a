// Package router dispatches chat generation requests to the providers and
// runs the key rotation and model fallback strategies.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abdhe/chat-router/pkg/metrics"
	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// Router selects a strategy for each call. It holds no per-call state and is
// safe for concurrent use.
type Router struct {
	gemini     provider.Provider
	openrouter provider.Provider
	sambanova  provider.Provider
	shuffler   resilience.Shuffler
	now        func() time.Time
	log        logrus.FieldLogger
	strategies map[string]AutoModeConfig
	order      []string
}

// Option configures a Router.
type Option func(*Router)

// WithGemini replaces the Gemini caller.
func WithGemini(p provider.Provider) Option { return func(r *Router) { r.gemini = p } }

// WithOpenRouter replaces the OpenRouter caller.
func WithOpenRouter(p provider.Provider) Option { return func(r *Router) { r.openrouter = p } }

// WithSambaNova replaces the SambaNova caller.
func WithSambaNova(p provider.Provider) Option { return func(r *Router) { r.sambanova = p } }

// WithShuffler sets the order policy for keys and OpenRouter auto models.
func WithShuffler(s resilience.Shuffler) Option {
	return func(r *Router) {
		if s != nil {
			r.shuffler = s
		}
	}
}

// WithClock sets the clock used for the dates in search prompts.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the process logger consumer log entries are mirrored to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithStrategies replaces the auto mode table.
func WithStrategies(strategies ...AutoModeConfig) Option {
	return func(r *Router) { r.setStrategies(strategies) }
}

// New creates a Router talking to the public provider endpoints unless
// overridden by options.
func New(opts ...Option) *Router {
	r := &Router{
		gemini:     provider.NewGeminiProvider(),
		openrouter: provider.NewOpenRouterProvider(),
		sambanova:  provider.NewSambaNovaProvider(),
		shuffler:   resilience.RandomShuffle,
		now:        time.Now,
		log:        logrus.StandardLogger(),
	}
	r.setStrategies(DefaultStrategies())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) setStrategies(strategies []AutoModeConfig) {
	r.strategies = make(map[string]AutoModeConfig, len(strategies))
	r.order = r.order[:0]
	for _, s := range strategies {
		if _, dup := r.strategies[s.ID]; !dup {
			r.order = append(r.order, s.ID)
		}
		r.strategies[s.ID] = s
	}
}

// Strategies lists the auto mode table in declaration order.
func (r *Router) Strategies() []AutoModeConfig {
	out := make([]AutoModeConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.strategies[id])
	}
	return out
}

// Resolve maps a model id onto its Route using this router's auto table.
func (r *Router) Resolve(model string) Route {
	return ResolveRoute(model, r.strategies)
}

// Generate produces one answer for the conversation. Deltas, resets and log
// entries are delivered to emit in order; the aggregate is returned at the end.
// The returned Images list is never nil.
func (r *Router) Generate(ctx context.Context, messages []provider.Message, model string, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	started := time.Now()
	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	route := r.Resolve(model)
	log := r.log.WithFields(logrus.Fields{
		"model":    model,
		"route":    routeName(route),
		"provider": route.Provider(),
	})
	emit = instrument(emit, log)

	var (
		res provider.Result
		err error
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = resilience.Canceled(ctxErr)
	} else {
		res, err = r.dispatch(ctx, route, messages, cfg, emit)
	}

	if err != nil {
		status := "error"
		if resilience.IsCanceled(err) {
			status = "canceled"
			log.Info("request cancelled")
		} else {
			log.WithError(err).WithField("kind", resilience.Classify(err)).Error("generation failed")
		}
		metrics.ObserveRequest(routeName(route), status, started)
		return provider.NewResult(), err
	}

	if res.Images == nil {
		res.Images = []string{}
	}
	metrics.ObserveRequest(routeName(route), "success", started)
	log.WithFields(logrus.Fields{
		"chars":    len(res.Text),
		"images":   len(res.Images),
		"sources":  len(res.Sources),
		"duration": time.Since(started).Round(time.Millisecond),
	}).Info("generation finished")
	return res, nil
}

// Stream runs Generate in the background and delivers its events on the
// returned channel, followed by exactly one EventDone or EventError.
// Consumers must read until the channel is closed or cancel ctx.
func (r *Router) Stream(ctx context.Context, messages []provider.Message, model string, cfg AppConfig) <-chan provider.Event {
	return provider.Pipe(ctx, func(emit provider.Emitter) (provider.Result, error) {
		return r.Generate(ctx, messages, model, cfg, emit)
	})
}

func (r *Router) dispatch(ctx context.Context, route Route, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	switch rt := route.(type) {
	case AutoStrategy:
		if rt.Config.Provider == ProviderSearch {
			return r.runSearch(ctx, messages, cfg, emit)
		}
		return r.runAutoMode(ctx, rt.Config, messages, cfg, emit)
	case GoogleModel:
		return r.callGemini(ctx, geminiCall{model: rt.ID, prompt: EffectiveSystemPrompt(cfg)}, messages, cfg, emit)
	case SambaNovaModel:
		if err := requireCredentials(ProviderSambaNova, cfg); err != nil {
			return provider.Result{}, err
		}
		return r.callOpenAICompat(ctx, r.sambanova, rt.ID, cfg.SambaNovaKey, EffectiveSystemPrompt(cfg), messages, emit)
	case OpenRouterModel:
		if err := requireCredentials(ProviderOpenRouter, cfg); err != nil {
			return provider.Result{}, err
		}
		return r.callOpenAICompat(ctx, r.openrouter, rt.ID, cfg.OpenRouterKey, EffectiveSystemPrompt(cfg), messages, emit)
	default:
		return provider.Result{}, fmt.Errorf("unsupported route %T", route)
	}
}

// geminiCall describes one Gemini model call across all keys.
type geminiCall struct {
	model  string
	prompt string
	search bool
}

// callGemini tries the call with every Google key in shuffled order until one
// succeeds. A non-retryable error stops the rotation.
func (r *Router) callGemini(ctx context.Context, call geminiCall, messages []provider.Message, cfg AppConfig, emit provider.Emitter) (provider.Result, error) {
	pool := resilience.NewKeyPool(cfg.GoogleKeys, r.shuffler)
	if pool.Size() == 0 {
		return provider.Result{}, fmt.Errorf("%w: no Google API keys configured", resilience.ErrConfiguration)
	}
	keys := pool.Order()

	return resilience.Fallback(ctx, keys, resilience.FallbackOptions{
		What: "API keys",
		Label: func(i int, _ string) string {
			return fmt.Sprintf("key %d/%d", i+1, len(keys))
		},
		OnAttempt: func(_, _ int, label string) {
			emit.Logf(provider.LevelInfo, "Gemini %s: trying %s", call.model, label)
		},
		OnFailure: func(_, _ int, label string, err error, next bool) {
			level := provider.LevelError
			if next {
				level = provider.LevelWarn
				metrics.FallbacksTotal.WithLabelValues("gemini-keys").Inc()
			}
			emit.Logf(level, "Gemini %s: %s failed: %s", call.model, label,
				resilience.Truncate(err.Error(), resilience.FailureMessageLimit))
		},
	}, func(ctx context.Context, key string) (provider.Result, error) {
		r.log.WithFields(logrus.Fields{"model": call.model, "key": resilience.Mask(key)}).Debug("gemini attempt")
		return r.attempt(ctx, r.gemini, provider.Request{
			Model:        call.model,
			Messages:     messages,
			SystemPrompt: call.prompt,
			APIKey:       key,
			Search:       call.search,
		}, emit)
	})
}

// callOpenAICompat makes a single call with the provider's only key.
func (r *Router) callOpenAICompat(ctx context.Context, p provider.Provider, model, key, prompt string, messages []provider.Message, emit provider.Emitter) (provider.Result, error) {
	return r.attempt(ctx, p, provider.Request{
		Model:        model,
		Messages:     messages,
		SystemPrompt: prompt,
		APIKey:       key,
	}, emit)
}

func (r *Router) attempt(ctx context.Context, p provider.Provider, req provider.Request, emit provider.Emitter) (provider.Result, error) {
	started := time.Now()
	res, err := p.Stream(ctx, req, emit)
	outcome := "success"
	if err != nil {
		outcome = resilience.Classify(err).String()
	}
	metrics.ObserveAttempt(p.Name(), outcome, started)
	return res, err
}

// instrument counts deltas and mirrors consumer log entries to the process log.
func instrument(emit provider.Emitter, log logrus.FieldLogger) provider.Emitter {
	return func(ev provider.Event) {
		switch ev.Kind {
		case provider.EventTextDelta:
			metrics.StreamChunksTotal.WithLabelValues("text").Inc()
		case provider.EventImageDelta:
			metrics.StreamChunksTotal.WithLabelValues("image").Inc()
		case provider.EventLog:
			switch ev.Log.Level {
			case provider.LevelError:
				log.Error(ev.Log.Message)
			case provider.LevelWarn:
				log.Warn(ev.Log.Message)
			default:
				log.Debug(ev.Log.Message)
			}
		}
		emit.Emit(ev)
	}
}
