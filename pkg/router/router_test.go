package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

func TestResolveRoute(t *testing.T) {
	table := New(WithLogger(quietLogger())).strategies
	tests := []struct {
		model string
		want  Route
	}{
		{"auto-gemini-flash", AutoStrategy{Config: table[AutoGeminiFlash]}},
		{"auto-search", AutoStrategy{Config: table[AutoSearch]}},
		{"gemini-2.5-pro", GoogleModel{ID: "gemini-2.5-pro"}},
		{"DeepSeek-V3.1", SambaNovaModel{ID: "DeepSeek-V3.1"}},
		{"gpt-oss-120b", SambaNovaModel{ID: "gpt-oss-120b"}},
		{"openai/gpt-4o", OpenRouterModel{ID: "openai/gpt-4o"}},
		{"meta-llama/llama-3.3-70b-instruct:free", OpenRouterModel{ID: "meta-llama/llama-3.3-70b-instruct:free"}},
		{"deepseek/deepseek-r1:free", OpenRouterModel{ID: "deepseek/deepseek-r1:free"}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got := ResolveRoute(tt.model, table)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.model, got.Model())
		})
	}
}

func TestResolveRoute_AutoStrategyCarriesProvider(t *testing.T) {
	table := New(WithLogger(quietLogger())).strategies
	assert.Equal(t, ProviderGoogle, ResolveRoute(AutoGeminiPro, table).Provider())
	assert.Equal(t, ProviderOpenRouter, ResolveRoute(AutoOpenRouter, table).Provider())
	assert.Equal(t, ProviderSambaNova, ResolveRoute(AutoSamba, table).Provider())
	assert.Equal(t, ProviderSearch, ResolveRoute(AutoSearch, table).Provider())
}

func TestRouter_StrategiesKeepDeclarationOrder(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	var ids []string
	for _, s := range r.Strategies() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{AutoGeminiFlash, AutoGeminiPro, AutoOpenRouter, AutoSamba, AutoSearch}, ids)
}

func TestGenerate_GeminiKeyRotationSucceedsOnLastKey(t *testing.T) {
	gemini := newFake("gemini", func(_ context.Context, req provider.Request, emit provider.Emitter) (provider.Result, error) {
		if req.APIKey != "k3" {
			emit.Reset()
			emit.Text("stale partial")
			return provider.Result{}, errOverloaded
		}
		emit.Reset()
		emit.Text("from k3")
		return provider.Result{Text: "from k3"}, nil
	})
	r := newTestRouter(fakes{gemini: gemini})

	ev := &events{}
	res, err := r.Generate(context.Background(), userTurn, "gemini-2.5-flash",
		AppConfig{GoogleKeys: []string{"k1", "k2", "k3"}}, ev.emit)

	require.NoError(t, err)
	assert.Equal(t, "from k3", res.Text)
	assert.Equal(t, "from k3", ev.text(), "a reset discards the failed key's output")
	assert.Equal(t, []string{"k1", "k2", "k3"}, gemini.keys())
	assert.Len(t, ev.logsContaining("trying key"), 3, "one log entry per attempted key")
	assert.Len(t, ev.logsContaining("failed"), 2)
}

func TestGenerate_GeminiFatalErrorStopsRotation(t *testing.T) {
	gemini := newFake("gemini", failing(errBadRequest))
	r := newTestRouter(fakes{gemini: gemini})

	_, err := r.Generate(context.Background(), userTurn, "gemini-2.5-flash",
		AppConfig{GoogleKeys: []string{"k1", "k2", "k3"}}, nil)

	require.ErrorIs(t, err, error(errBadRequest))
	assert.Equal(t, []string{"k1"}, gemini.keys())
}

func TestGenerate_GeminiAllKeysExhausted(t *testing.T) {
	gemini := newFake("gemini", failing(errOverloaded))
	r := newTestRouter(fakes{gemini: gemini})

	_, err := r.Generate(context.Background(), userTurn, "gemini-2.5-flash",
		AppConfig{GoogleKeys: []string{"k1", "k2"}}, nil)

	var exhausted *resilience.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Failures, 2)
	assert.Contains(t, err.Error(), "all 2 API keys failed")
	assert.Contains(t, err.Error(), "key 1/2")
}

func TestGenerate_GeminiKeysAreShuffledPerCall(t *testing.T) {
	reverse := resilience.ShuffleFunc(func(items []string) []string {
		out := make([]string, len(items))
		for i, s := range items {
			out[len(items)-1-i] = s
		}
		return out
	})
	gemini := newFake("gemini", failing(errOverloaded))
	r := newTestRouter(fakes{gemini: gemini}, WithShuffler(reverse))

	_, _ = r.Generate(context.Background(), userTurn, "gemini-2.5-flash",
		AppConfig{GoogleKeys: []string{"a", "b", "c", " ", "a"}}, nil)

	assert.Equal(t, []string{"c", "b", "a"}, gemini.keys(), "blank and duplicate keys are dropped")
}

func TestGenerate_GeminiWithoutKeysIsConfigurationError(t *testing.T) {
	gemini := newFake("gemini", nil)
	r := newTestRouter(fakes{gemini: gemini})

	_, err := r.Generate(context.Background(), userTurn, "gemini-2.5-flash", AppConfig{}, nil)

	assert.ErrorIs(t, err, resilience.ErrConfiguration)
	assert.Empty(t, gemini.Calls())
}

func TestGenerate_DirectCallsUseEffectivePrompt(t *testing.T) {
	openrouter := newFake("openrouter", answer("ok"))
	sambanova := newFake("sambanova", answer("ok"))
	r := newTestRouter(fakes{openrouter: openrouter, sambanova: sambanova})
	cfg := AppConfig{
		OpenRouterKey: "or",
		SambaNovaKey:  "sn",
		SystemPrompt:  "Be kind.",
		Memory:        []string{"likes Go"},
	}

	_, err := r.Generate(context.Background(), userTurn, "vendor/model:free", cfg, nil)
	require.NoError(t, err)
	_, err = r.Generate(context.Background(), userTurn, "DeepSeek-V3.1", cfg, nil)
	require.NoError(t, err)

	require.Len(t, openrouter.Calls(), 1)
	assert.Equal(t, "vendor/model:free", openrouter.Calls()[0].Model)
	assert.Equal(t, "or", openrouter.Calls()[0].APIKey)
	assert.Equal(t, "Be kind.\n\nThings you remember about the user:\n- likes Go", openrouter.Calls()[0].SystemPrompt)
	assert.Equal(t, userTurn, openrouter.Calls()[0].Messages)

	require.Len(t, sambanova.Calls(), 1)
	assert.Equal(t, "sn", sambanova.Calls()[0].APIKey)
}

func TestGenerate_ImagesAlwaysAList(t *testing.T) {
	openrouter := newFake("openrouter", func(context.Context, provider.Request, provider.Emitter) (provider.Result, error) {
		return provider.Result{Text: "no images field"}, nil
	})
	r := newTestRouter(fakes{openrouter: openrouter})

	res, err := r.Generate(context.Background(), userTurn, "x/y", AppConfig{OpenRouterKey: "k"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Images)

	res, err = r.Generate(context.Background(), userTurn, "gemini-2.5-flash", AppConfig{}, nil)
	require.Error(t, err)
	assert.NotNil(t, res.Images)
}

func TestGenerate_CanceledBeforeAnyCall(t *testing.T) {
	gemini := newFake("gemini", answer("never"))
	openrouter := newFake("openrouter", answer("never"))
	r := newTestRouter(fakes{gemini: gemini, openrouter: openrouter})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, model := range []string{"gemini-2.5-flash", AutoGeminiFlash, AutoOpenRouter, AutoSearch, "x/y"} {
		t.Run(model, func(t *testing.T) {
			ev := &events{}
			_, err := r.Generate(ctx, userTurn, model, AppConfig{
				GoogleKeys:       []string{"k1"},
				OpenRouterKey:    "or",
				OpenRouterModels: []string{"a/b"},
			}, ev.emit)

			require.ErrorIs(t, err, resilience.ErrCanceled)
			assert.Equal(t, resilience.KindCanceled, resilience.Classify(err))
			assert.Empty(t, ev.logsContaining("failed"))
		})
	}
	assert.Empty(t, gemini.Calls())
	assert.Empty(t, openrouter.Calls())
}

func TestGenerate_CancelDuringAutoModeStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sambanova := newFake("sambanova", func(ctx context.Context, _ provider.Request, emit provider.Emitter) (provider.Result, error) {
		emit.Text("partial")
		cancel()
		return provider.Result{}, resilience.Canceled(ctx.Err())
	})
	r := newTestRouter(fakes{sambanova: sambanova})

	ev := &events{}
	_, err := r.Generate(ctx, userTurn, AutoSamba, AppConfig{SambaNovaKey: "sn"}, ev.emit)

	require.ErrorIs(t, err, resilience.ErrCanceled)
	assert.Len(t, sambanova.Calls(), 1)
	assert.Empty(t, ev.logsContaining("failed"))
}

func TestStream_EndsWithDone(t *testing.T) {
	openrouter := newFake("openrouter", func(_ context.Context, _ provider.Request, emit provider.Emitter) (provider.Result, error) {
		emit.Text("a")
		emit.Text("b")
		return provider.Result{Text: "ab"}, nil
	})
	r := newTestRouter(fakes{openrouter: openrouter})

	var kinds []provider.EventKind
	var last provider.Event
	for ev := range r.Stream(context.Background(), userTurn, "x/y", AppConfig{OpenRouterKey: "k"}) {
		kinds = append(kinds, ev.Kind)
		last = ev
	}

	assert.Equal(t, []provider.EventKind{provider.EventTextDelta, provider.EventTextDelta, provider.EventDone}, kinds)
	require.NotNil(t, last.Result)
	assert.Equal(t, "ab", last.Result.Text)
	assert.NotNil(t, last.Result.Images)
}

func TestStream_EndsWithError(t *testing.T) {
	r := newTestRouter(fakes{})

	var last provider.Event
	n := 0
	for ev := range r.Stream(context.Background(), userTurn, "x/y", AppConfig{}) {
		last = ev
		n++
	}

	assert.Equal(t, provider.EventError, last.Kind)
	assert.ErrorIs(t, last.Err, resilience.ErrConfiguration)
	assert.Equal(t, 1, n)
}

// geminiServer fakes the Gemini streaming endpoint. Keys listed in overloaded
// get a 503; every other key gets the scripted payloads.
func geminiServer(t *testing.T, overloaded map[string]bool, payloads ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if overloaded[r.Header.Get("x-goog-api-key")] {
			http.Error(w, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGenerate_PartialStreamIsSuccess(t *testing.T) {
	srv, _ := geminiServer(t, map[string]bool{"bad": true},
		`{"candidates":[{"content":{"parts":[{"text":"first "}]}}]}`,
		`{"candidates":[{"content":{"parts":[{"text":"second"}]}}]}`,
		`{"error":{"code":500,"message":"Internal error","status":"INTERNAL"}}`,
	)
	r := New(
		WithGemini(provider.NewGeminiProvider(provider.WithBaseURL(srv.URL))),
		WithShuffler(resilience.NoShuffle),
		WithLogger(quietLogger()),
	)

	ev := &events{}
	res, err := r.Generate(context.Background(), userTurn, "gemini-2.5-flash",
		AppConfig{GoogleKeys: []string{"bad", "good"}}, ev.emit)

	require.NoError(t, err)
	assert.Equal(t, "first second", res.Text)
	assert.Equal(t, "first second", ev.text())
	assert.Len(t, ev.logsContaining("trying key"), 2)
}

func TestGenerate_StalledStreamEndsOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"thinking\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	r := New(
		WithOpenRouter(provider.NewOpenRouterProvider(provider.WithBaseURL(srv.URL))),
		WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	stream := r.Stream(ctx, userTurn, "x/y", AppConfig{OpenRouterKey: "k"})

	first := <-stream
	assert.Equal(t, provider.EventTextDelta, first.Kind)

	// Without an idle timeout nothing else arrives until the caller cancels.
	select {
	case ev := <-stream:
		t.Fatalf("unexpected event %s before cancel", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	var last provider.Event
	for ev := range stream {
		last = ev
	}
	assert.Equal(t, provider.EventError, last.Kind)
	assert.True(t, resilience.IsCanceled(last.Err))
}

func TestInstrumentForwardsEverything(t *testing.T) {
	ev := &events{}
	emit := instrument(ev.emit, quietLogger())
	emit.Text("a")
	emit.Image("data:image/png;base64,AA==")
	emit.Logf(provider.LevelWarn, "w")
	emit.Logf(provider.LevelError, "e")
	emit.Reset()

	assert.Equal(t, 1, ev.count(provider.EventTextDelta))
	assert.Equal(t, 1, ev.count(provider.EventImageDelta))
	assert.Equal(t, 2, ev.count(provider.EventLog))
	assert.Equal(t, 1, ev.count(provider.EventReset))
	assert.True(t, strings.HasPrefix(ev.logs()[0].Message, "w"))
}
