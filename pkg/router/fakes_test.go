package router

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// fakeProvider answers from a script keyed by model or API key.
type fakeProvider struct {
	name    string
	respond func(ctx context.Context, req provider.Request, emit provider.Emitter) (provider.Result, error)

	mu    sync.Mutex
	calls []provider.Request
}

func newFake(name string, respond func(ctx context.Context, req provider.Request, emit provider.Emitter) (provider.Result, error)) *fakeProvider {
	return &fakeProvider{name: name, respond: respond}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Stream(ctx context.Context, req provider.Request, emit provider.Emitter) (provider.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return provider.Result{}, resilience.Canceled(err)
	}
	if f.respond == nil {
		return provider.Result{}, nil
	}
	return f.respond(ctx, req, emit)
}

func (f *fakeProvider) Calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.calls...)
}

func (f *fakeProvider) models() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Model)
	}
	return out
}

func (f *fakeProvider) keys() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.APIKey)
	}
	return out
}

// answer streams text as a single delta.
func answer(text string) func(context.Context, provider.Request, provider.Emitter) (provider.Result, error) {
	return func(_ context.Context, _ provider.Request, emit provider.Emitter) (provider.Result, error) {
		emit.Text(text)
		return provider.Result{Text: text}, nil
	}
}

func failing(err error) func(context.Context, provider.Request, provider.Emitter) (provider.Result, error) {
	return func(context.Context, provider.Request, provider.Emitter) (provider.Result, error) {
		return provider.Result{}, err
	}
}

var (
	errOverloaded = &provider.HTTPError{Provider: "fake", StatusCode: 503, Body: "model is overloaded"}
	errBadRequest = &provider.HTTPError{Provider: "fake", StatusCode: 400, Body: "invalid argument"}
	errLocation   = &provider.HTTPError{Provider: "gemini", StatusCode: 400, Status: "FAILED_PRECONDITION", Body: "User location is not supported"}
)

// events records everything a call emits.
type events struct {
	mu  sync.Mutex
	all []provider.Event
}

func (e *events) emit(ev provider.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) logs() []provider.LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []provider.LogEntry
	for _, ev := range e.all {
		if ev.Kind == provider.EventLog {
			out = append(out, ev.Log)
		}
	}
	return out
}

func (e *events) logsContaining(sub string) []string {
	var out []string
	for _, l := range e.logs() {
		if strings.Contains(l.Message, sub) {
			out = append(out, l.Message)
		}
	}
	return out
}

func (e *events) count(kind provider.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.all {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (e *events) text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var b strings.Builder
	for _, ev := range e.all {
		switch ev.Kind {
		case provider.EventReset:
			b.Reset()
		case provider.EventTextDelta:
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakes struct {
	gemini, openrouter, sambanova *fakeProvider
}

func newTestRouter(f fakes, opts ...Option) *Router {
	if f.gemini == nil {
		f.gemini = newFake("gemini", nil)
	}
	if f.openrouter == nil {
		f.openrouter = newFake("openrouter", nil)
	}
	if f.sambanova == nil {
		f.sambanova = newFake("sambanova", nil)
	}
	base := []Option{
		WithGemini(f.gemini),
		WithOpenRouter(f.openrouter),
		WithSambaNova(f.sambanova),
		WithShuffler(resilience.NoShuffle),
		WithLogger(quietLogger()),
	}
	return New(append(base, opts...)...)
}

var userTurn = []provider.Message{{Role: provider.RoleUser, Content: "hello"}}
