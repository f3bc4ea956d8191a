package provider

import (
	"context"
	"fmt"
	"time"
)

// LogLevel is the severity of a LogEntry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is a one-way observability record for the consumer.
type LogEntry struct {
	Time    time.Time `json:"timestamp"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// EventKind discriminates Event.
type EventKind int

const (
	EventTextDelta EventKind = iota + 1
	EventImageDelta
	EventReset
	EventLog
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text"
	case EventImageDelta:
		return "image"
	case EventReset:
		return "reset"
	case EventLog:
		return "log"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of the output stream of a call.
//
// Reset tells the consumer to discard whatever the previous attempt of the
// same call produced. Done and Error are terminal and only sent by
// router.Stream.
type Event struct {
	Kind   EventKind
	Text   string   // EventTextDelta
	Image  string   // EventImageDelta, a data-URI
	Log    LogEntry // EventLog
	Result *Result  // EventDone
	Err    error    // EventError
}

// Emitter receives events in stream order. A nil Emitter discards them.
type Emitter func(Event)

// Emit delivers ev.
func (e Emitter) Emit(ev Event) {
	if e != nil {
		e(ev)
	}
}

// Text emits a text delta.
func (e Emitter) Text(s string) { e.Emit(Event{Kind: EventTextDelta, Text: s}) }

// Image emits an image delta.
func (e Emitter) Image(uri string) { e.Emit(Event{Kind: EventImageDelta, Image: uri}) }

// Reset emits a content reset.
func (e Emitter) Reset() { e.Emit(Event{Kind: EventReset}) }

// Logf emits a log entry.
func (e Emitter) Logf(level LogLevel, format string, args ...any) {
	e.Emit(Event{Kind: EventLog, Log: LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}})
}

// Callbacks maps the event stream onto independent callbacks.
// Any callback may be nil.
type Callbacks struct {
	OnChunk func(text string)
	OnImage func(dataURI string)
	OnReset func()
	AddLog  func(entry LogEntry)
}

// Emitter returns an Emitter that dispatches to the callbacks.
func (c Callbacks) Emitter() Emitter {
	return func(ev Event) {
		switch ev.Kind {
		case EventTextDelta:
			if c.OnChunk != nil {
				c.OnChunk(ev.Text)
			}
		case EventImageDelta:
			if c.OnImage != nil {
				c.OnImage(ev.Image)
			}
		case EventReset:
			if c.OnReset != nil {
				c.OnReset()
			}
		case EventLog:
			if c.AddLog != nil {
				c.AddLog(ev.Log)
			}
		}
	}
}

// Pipe runs fn in a new goroutine and delivers its events on the returned
// channel, followed by exactly one EventDone or EventError. The channel is
// closed afterwards. Once ctx is done, events are only delivered while the
// buffer has room.
func Pipe(ctx context.Context, fn func(emit Emitter) (Result, error)) <-chan Event {
	ch := make(chan Event, 64)
	deliver := func(ev Event) {
		select {
		case ch <- ev:
			return
		case <-ctx.Done():
		}
		select {
		case ch <- ev:
		default:
		}
	}
	go func() {
		defer close(ch)
		res, err := fn(deliver)
		if err != nil {
			deliver(Event{Kind: EventError, Err: err})
			return
		}
		deliver(Event{Kind: EventDone, Result: &res})
	}()
	return ch
}
