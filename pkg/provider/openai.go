package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdhe/chat-router/pkg/resilience"
)

// Default endpoints of the OpenAI-compatible providers.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultSambaNovaBaseURL  = "https://api.sambanova.ai/v1"
)

// OpenAICompatProvider implements the Provider interface for any
// OpenAI-compatible Chat Completions API with a single bearer key.
type OpenAICompatProvider struct {
	name        string
	displayName string
	client      *http.Client
	baseURL     string
	headers     map[string]string
}

// NewOpenRouterProvider creates an OpenRouter provider.
func NewOpenRouterProvider(opts ...Option) *OpenAICompatProvider {
	return newOpenAICompat("openrouter", "OpenRouter", DefaultOpenRouterBaseURL, opts)
}

// NewSambaNovaProvider creates a SambaNova provider.
func NewSambaNovaProvider(opts ...Option) *OpenAICompatProvider {
	return newOpenAICompat("sambanova", "SambaNova", DefaultSambaNovaBaseURL, opts)
}

func newOpenAICompat(name, displayName, baseURL string, opts []Option) *OpenAICompatProvider {
	o := newOptions(baseURL, opts)
	return &OpenAICompatProvider{
		name:        name,
		displayName: displayName,
		client:      o.client,
		baseURL:     o.baseURL,
		headers:     o.headers,
	}
}

func (o *OpenAICompatProvider) Name() string { return o.name }

// ---------------------------------------------------------------------------
// Request / Response types for Chat Completions
// ---------------------------------------------------------------------------

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatMessage content is either a string or a list of contentBlock.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildChatRequest starts with the system entry, even when the prompt is
// empty, and attaches images only to the triggering user turn, the last
// message of the conversation.
func buildChatRequest(req Request) chatRequest {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})

	last := len(req.Messages) - 1
	for i, m := range req.Messages {
		role := string(m.Role)
		if i == last && m.Role == RoleUser && len(m.Images) > 0 {
			blocks := make([]contentBlock, 0, len(m.Images)+1)
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			for _, uri := range m.Images {
				blocks = append(blocks, contentBlock{Type: "image_url", ImageURL: &imageURL{URL: uri}})
			}
			msgs = append(msgs, chatMessage{Role: role, Content: blocks})
			continue
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}

	return chatRequest{Model: req.Model, Messages: msgs, Stream: true}
}

// ---------------------------------------------------------------------------
// Stream: SSE streaming call
// ---------------------------------------------------------------------------

// Stream performs a streaming chat completion. An empty answer is a success.
// No images are produced.
func (o *OpenAICompatProvider) Stream(ctx context.Context, req Request, emit Emitter) (Result, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return Result{}, fmt.Errorf("%w: %s API key is not set", resilience.ErrConfiguration, o.displayName)
	}

	jsonBody, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return Result{}, fmt.Errorf("%s: marshal stream request: %w", o.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return Result{}, fmt.Errorf("%s: create stream request: %w", o.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	for k, v := range o.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return Result{}, requestError(ctx, o.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return Result{}, newHTTPError(o.name, httpResp)
	}

	var text strings.Builder
	var streamErr error
	scanErr := scanData(httpResp.Body, func(payload []byte) bool {
		// End of stream
		if string(payload) == "[DONE]" {
			return false
		}
		// Keep-alives and partial lines are skipped, not fatal.
		if !gjson.ValidBytes(payload) {
			return true
		}
		chunk := gjson.ParseBytes(payload)
		if e := chunk.Get("error"); e.Exists() {
			msg := e.Get("message").String()
			if msg == "" {
				msg = e.Raw
			}
			streamErr = fmt.Errorf("%s: stream error %s: %s", o.name, e.Get("code").String(), msg)
			return false
		}
		if delta := chunk.Get("choices.0.delta.content").String(); delta != "" {
			text.WriteString(delta)
			emit.Text(delta)
		}
		return true
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, resilience.Canceled(ctxErr)
	}

	res := NewResult()
	res.Text = text.String()
	if streamErr == nil && scanErr != nil {
		streamErr = fmt.Errorf("%s: stream read: %w", o.name, scanErr)
	}
	if streamErr != nil {
		if res.Text != "" {
			emit.Logf(LevelWarn, "%s stream ended early, keeping partial response: %s",
				o.displayName, resilience.Truncate(streamErr.Error(), resilience.FailureMessageLimit))
			return res, nil
		}
		return Result{}, streamErr
	}
	return res, nil
}
