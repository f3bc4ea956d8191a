package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdhe/chat-router/pkg/resilience"
)

// DefaultGeminiBaseURL is the Generative Language API root.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Fixed generation parameters for every Gemini call.
const (
	geminiTemperature     = 1.0
	geminiMaxOutputTokens = 65536
)

// GeminiProvider implements the Provider interface for Google's Gemini API.
// One call uses exactly one key; rotation is the router's job.
type GeminiProvider struct {
	client  *http.Client
	baseURL string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(opts ...Option) *GeminiProvider {
	o := newOptions(DefaultGeminiBaseURL, opts)
	return &GeminiProvider{
		client:  o.client,
		baseURL: o.baseURL,
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// geminiRequest is the Gemini API request body.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	Temperature        float64  `json:"temperature"`
	MaxOutputTokens    int      `json:"maxOutputTokens"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// buildGeminiRequest converts the conversation into Gemini turns. Each turn
// carries its inline images first and its text last; turns without either
// are dropped.
func buildGeminiRequest(req Request) geminiRequest {
	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
		GenerationConfig: geminiGenConfig{
			Temperature:     geminiTemperature,
			MaxOutputTokens: geminiMaxOutputTokens,
		},
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}

		parts := make([]geminiPart, 0, len(msg.Images)+1)
		for _, uri := range msg.Images {
			img, ok := ParseDataURI(uri)
			if !ok {
				continue
			}
			parts = append(parts, geminiPart{InlineData: &geminiBlob{MIMEType: img.MIMEType, Data: img.Data}})
		}
		if msg.Content != "" {
			parts = append(parts, geminiPart{Text: msg.Content})
		}
		if len(parts) == 0 {
			continue
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: parts})
	}

	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if strings.Contains(req.Model, "image") {
		body.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
	}
	if req.Search {
		body.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}
	return body
}

// Stream performs a streaming call to the Gemini API with req.APIKey.
func (g *GeminiProvider) Stream(ctx context.Context, req Request, emit Emitter) (Result, error) {
	if req.APIKey == "" {
		return Result{}, fmt.Errorf("%w: Gemini API key is empty", resilience.ErrConfiguration)
	}

	jsonBody, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: marshal stream request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Result{}, fmt.Errorf("gemini: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, requestError(ctx, "gemini", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return Result{}, newHTTPError("gemini", httpResp)
	}

	// The stream is live: anything a previous key produced is stale.
	emit.Reset()

	dec := newGeminiDecoder(emit)
	scanErr := scanData(httpResp.Body, dec.decode)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, resilience.Canceled(ctxErr)
	}

	res := dec.result()
	streamErr := dec.err
	if streamErr == nil && scanErr != nil {
		streamErr = fmt.Errorf("gemini: stream read: %w", scanErr)
	}
	if streamErr != nil {
		if !res.Empty() {
			emit.Logf(LevelWarn, "Gemini stream ended early, keeping partial response: %s",
				resilience.Truncate(streamErr.Error(), resilience.FailureMessageLimit))
			return res, nil
		}
		return Result{}, streamErr
	}
	if res.Empty() {
		return Result{}, fmt.Errorf("gemini: %w", resilience.ErrEmptyResponse)
	}
	return res, nil
}

// geminiDecoder accumulates one Gemini stream.
type geminiDecoder struct {
	emit    Emitter
	text    strings.Builder
	images  []string
	sources []GroundingSource
	seen    map[string]struct{}
	queries map[string]struct{}
	err     error
}

func newGeminiDecoder(emit Emitter) *geminiDecoder {
	return &geminiDecoder{
		emit:    emit,
		images:  []string{},
		seen:    make(map[string]struct{}),
		queries: make(map[string]struct{}),
	}
}

// decode handles one SSE payload. It returns false to stop reading.
func (d *geminiDecoder) decode(payload []byte) bool {
	if !gjson.ValidBytes(payload) {
		return true
	}
	chunk := gjson.ParseBytes(payload)

	if e := chunk.Get("error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		d.err = fmt.Errorf("gemini: stream error %d %s: %s", e.Get("code").Int(), e.Get("status").String(), msg)
		return false
	}
	if reason := chunk.Get("promptFeedback.blockReason"); reason.Exists() {
		d.err = fmt.Errorf("gemini: prompt blocked: %s", reason.String())
		return false
	}

	candidate := chunk.Get("candidates.0")
	for _, part := range candidate.Get("content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		if text := part.Get("text"); text.Exists() && text.String() != "" {
			d.text.WriteString(text.String())
			d.emit.Text(text.String())
		}
		inline := part.Get("inlineData")
		if !inline.Exists() {
			inline = part.Get("inline_data")
		}
		if inline.Exists() {
			mime := inline.Get("mimeType").String()
			if mime == "" {
				mime = inline.Get("mime_type").String()
			}
			uri := InlineImage{MIMEType: mime, Data: inline.Get("data").String()}.DataURI()
			d.images = append(d.images, uri)
			d.emit.Image(uri)
		}
	}

	grounding := candidate.Get("groundingMetadata")
	if queries := grounding.Get("webSearchQueries"); queries.IsArray() {
		var fresh []string
		for _, q := range queries.Array() {
			if _, ok := d.queries[q.String()]; ok {
				continue
			}
			d.queries[q.String()] = struct{}{}
			fresh = append(fresh, q.String())
		}
		if len(fresh) > 0 {
			d.emit.Logf(LevelInfo, "Search queries: %s", strings.Join(fresh, ", "))
		}
	}
	for _, gc := range grounding.Get("groundingChunks").Array() {
		web := gc.Get("web")
		uri := web.Get("uri").String()
		if uri == "" {
			continue
		}
		if _, dup := d.seen[uri]; dup {
			continue
		}
		d.seen[uri] = struct{}{}
		d.sources = append(d.sources, GroundingSource{Title: web.Get("title").String(), URL: uri})
	}
	return true
}

func (d *geminiDecoder) result() Result {
	return Result{Text: d.text.String(), Images: d.images, Sources: d.sources}
}
