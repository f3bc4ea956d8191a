// Package provider implements the streaming callers for the chat model providers.
package provider

import (
	"context"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Messages are read-only inputs.
type Message struct {
	Role      Role      `json:"role" validate:"required,oneof=user assistant"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty" validate:"omitempty,dive,datauri"` // data-URIs
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Request represents one attempt against a provider: a single model and a single key.
type Request struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	APIKey       string // Injected by the router
	Search       bool   // Gemini only: enable the Google search tool
}

// GroundingSource is a web page a grounded answer was based on.
type GroundingSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is the aggregate output of a call.
type Result struct {
	Text    string            `json:"text"`
	Images  []string          `json:"images"` // data-URIs, never nil
	Sources []GroundingSource `json:"sources,omitempty"`
}

// NewResult returns an empty result with a non-nil image list.
func NewResult() Result {
	return Result{Images: []string{}}
}

// Empty reports whether the result carries neither text nor images.
func (r Result) Empty() bool {
	return r.Text == "" && len(r.Images) == 0
}

// Provider is the interface that all chat backends implement.
type Provider interface {
	// Name returns a human-readable identifier for this provider (e.g. "gemini", "openrouter").
	Name() string

	// Stream performs one streamed call. Deltas are delivered to emit as they
	// arrive; the aggregate is returned when the stream ends. A stream that
	// breaks after content was produced returns the partial result and no error.
	Stream(ctx context.Context, req Request, emit Emitter) (Result, error)
}
