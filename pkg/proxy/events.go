package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// eventPayload is the wire form of an event shared by both transports. Lists
// are []any so the payload converts to a structpb.Struct.
func eventPayload(ev provider.Event, requestID string) map[string]any {
	p := map[string]any{"type": ev.Kind.String()}
	switch ev.Kind {
	case provider.EventTextDelta:
		p["text"] = ev.Text
	case provider.EventImageDelta:
		p["image"] = ev.Image
	case provider.EventLog:
		p["level"] = string(ev.Log.Level)
		p["message"] = ev.Log.Message
		p["timestamp"] = ev.Log.Time.UTC().Format(time.RFC3339Nano)
	case provider.EventDone:
		p["request_id"] = requestID
		res := provider.NewResult()
		if ev.Result != nil {
			res = *ev.Result
		}
		p["text"] = res.Text
		images := make([]any, 0, len(res.Images))
		for _, img := range res.Images {
			images = append(images, img)
		}
		p["images"] = images
		sources := make([]any, 0, len(res.Sources))
		for _, s := range res.Sources {
			sources = append(sources, map[string]any{"title": s.Title, "url": s.URL})
		}
		p["sources"] = sources
	case provider.EventError:
		p["request_id"] = requestID
		p["kind"] = resilience.Classify(ev.Err).String()
		p["message"] = ev.Err.Error()
	}
	return p
}

func encodeEvent(ev provider.Event, requestID string) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(eventPayload(ev, requestID))
	if err != nil {
		return nil, fmt.Errorf("proxy: encode %s event: %w", ev.Kind, err)
	}
	return s, nil
}

// wireEvent mirrors eventPayload for decoding.
type wireEvent struct {
	Type      string                     `json:"type"`
	Text      string                     `json:"text"`
	Image     string                     `json:"image"`
	Level     provider.LogLevel          `json:"level"`
	Message   string                     `json:"message"`
	Timestamp time.Time                  `json:"timestamp"`
	Images    []string                   `json:"images"`
	Sources   []provider.GroundingSource `json:"sources"`
	RequestID string                     `json:"request_id"`
	Kind      string                     `json:"kind"`
}

// DecodeEvent converts a streamed message back into an event.
func DecodeEvent(s *structpb.Struct) (provider.Event, error) {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return provider.Event{}, fmt.Errorf("proxy: decode event: %w", err)
	}
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return provider.Event{}, fmt.Errorf("proxy: decode event: %w", err)
	}

	switch w.Type {
	case "text":
		return provider.Event{Kind: provider.EventTextDelta, Text: w.Text}, nil
	case "image":
		return provider.Event{Kind: provider.EventImageDelta, Image: w.Image}, nil
	case "reset":
		return provider.Event{Kind: provider.EventReset}, nil
	case "log":
		return provider.Event{Kind: provider.EventLog, Log: provider.LogEntry{Time: w.Timestamp, Level: w.Level, Message: w.Message}}, nil
	case "done":
		res := provider.NewResult()
		res.Text = w.Text
		if w.Images != nil {
			res.Images = w.Images
		}
		res.Sources = w.Sources
		return provider.Event{Kind: provider.EventDone, Result: &res}, nil
	case "error":
		return provider.Event{Kind: provider.EventError, Err: errors.New(w.Message)}, nil
	default:
		return provider.Event{}, fmt.Errorf("proxy: unknown event type %q", w.Type)
	}
}

func decodeRequest(s *structpb.Struct) (GenerateRequest, error) {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return GenerateRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	var req GenerateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return GenerateRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

func encodeRequest(req GenerateRequest) (*structpb.Struct, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: encode request: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("proxy: encode request: %w", err)
	}
	return s, nil
}
