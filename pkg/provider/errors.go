package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdhe/chat-router/pkg/resilience"
)

// maxErrorBody bounds the response body carried by HTTPError.
const maxErrorBody = 200

// HTTPError is returned when a provider answers with a non-2xx status.
type HTTPError struct {
	Provider   string
	StatusCode int
	Status     string // provider status code such as "FAILED_PRECONDITION", if any
	Body       string // truncated to 200 characters
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// newHTTPError reads a snippet of the failed response.
func newHTTPError(provider string, resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	body := strings.TrimSpace(string(raw))

	status := ""
	if gjson.Valid(body) {
		status = gjson.Get(body, "error.status").String()
	}
	return &HTTPError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       resilience.Truncate(body, maxErrorBody),
	}
}

// IsLocationUnsupported reports whether err is Gemini's "feature or location
// not supported" answer (HTTP 400 with FAILED_PRECONDITION). It is never retried.
func IsLocationUnsupported(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return httpErr.Status == "FAILED_PRECONDITION" || strings.Contains(httpErr.Body, "FAILED_PRECONDITION")
}

// requestError wraps a transport failure, reporting cancellation as such.
func requestError(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return resilience.Canceled(ctxErr)
	}
	return fmt.Errorf("%s: stream request: %w", provider, err)
}
