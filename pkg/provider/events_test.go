package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilEmitterDiscards(t *testing.T) {
	var e Emitter
	assert.NotPanics(t, func() {
		e.Text("x")
		e.Image("data:image/png;base64,AA==")
		e.Reset()
		e.Logf(LevelInfo, "n=%d", 1)
	})
}

func TestCallbacksEmitter(t *testing.T) {
	var (
		chunks []string
		images []string
		resets int
		logs   []LogEntry
	)
	emit := Callbacks{
		OnChunk: func(s string) { chunks = append(chunks, s) },
		OnImage: func(s string) { images = append(images, s) },
		OnReset: func() { resets++ },
		AddLog:  func(e LogEntry) { logs = append(logs, e) },
	}.Emitter()

	emit.Text("a")
	emit.Reset()
	emit.Text("b")
	emit.Image("img")
	emit.Logf(LevelWarn, "careful %s", "now")
	emit.Emit(Event{Kind: EventDone})

	assert.Equal(t, []string{"a", "b"}, chunks)
	assert.Equal(t, []string{"img"}, images)
	assert.Equal(t, 1, resets)
	if assert.Len(t, logs, 1) {
		assert.Equal(t, LevelWarn, logs[0].Level)
		assert.Equal(t, "careful now", logs[0].Message)
		assert.False(t, logs[0].Time.IsZero())
	}
}

func TestCallbacksWithNilFields(t *testing.T) {
	emit := Callbacks{}.Emitter()
	assert.NotPanics(t, func() {
		emit.Text("a")
		emit.Image("b")
		emit.Reset()
		emit.Logf(LevelError, "c")
	})
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "text", EventTextDelta.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}

func TestPipe(t *testing.T) {
	collect := func(ch <-chan Event) []Event {
		var out []Event
		for ev := range ch {
			out = append(out, ev)
		}
		return out
	}

	got := collect(Pipe(context.Background(), func(emit Emitter) (Result, error) {
		emit.Text("a")
		emit.Reset()
		return Result{Text: "a"}, nil
	}))
	if assert.Len(t, got, 3) {
		assert.Equal(t, EventTextDelta, got[0].Kind)
		assert.Equal(t, EventReset, got[1].Kind)
		assert.Equal(t, EventDone, got[2].Kind)
		assert.Equal(t, "a", got[2].Result.Text)
	}

	boom := errors.New("boom")
	got = collect(Pipe(context.Background(), func(Emitter) (Result, error) { return Result{}, boom }))
	if assert.Len(t, got, 1) {
		assert.Equal(t, EventError, got[0].Kind)
		assert.ErrorIs(t, got[0].Err, boom)
	}
}

func TestPipe_TerminalEventAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var last Event
	for ev := range Pipe(ctx, func(emit Emitter) (Result, error) {
		emit.Text("late")
		return Result{}, ctx.Err()
	}) {
		last = ev
	}
	assert.Equal(t, EventError, last.Kind)
	assert.ErrorIs(t, last.Err, context.Canceled)
}
