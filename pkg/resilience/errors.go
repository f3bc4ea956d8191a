package resilience

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Error taxonomy (sentinels)
var (
	// ErrConfiguration marks a missing credential or empty model list. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrCanceled marks a call aborted by its context. Never retried and never
	// reported as a provider failure.
	ErrCanceled = errors.New("request cancelled")
	// ErrEmptyResponse is returned when a stream finished without any content.
	ErrEmptyResponse = errors.New("empty response")
	// ErrUnavailable marks a remote router that answered with a retryable failure.
	ErrUnavailable = errors.New("router unavailable")
)

// Kind is the retry classification of an error.
type Kind int

const (
	KindNone          Kind = iota
	KindFatal              // aborts the whole call
	KindTransient          // try the next key or model
	KindConfiguration      // surfaced immediately
	KindCanceled           // re-raised verbatim
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindTransient:
		return "transient"
	case KindConfiguration:
		return "configuration"
	case KindCanceled:
		return "canceled"
	default:
		return "none"
	}
}

var retryablePattern = regexp.MustCompile(`(?i)429|500|503|overloaded|quota|rate limit|capacity|unavailable|keys? failed|exhausted`)

// Canceled wraps a context error so it is recognised as a cancellation at every layer.
func Canceled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	if errors.Is(cause, ErrCanceled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// IsCanceled reports whether err stems from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Classify maps err onto the retry taxonomy.
func Classify(err error) Kind {
	var exhausted *ExhaustedError
	switch {
	case err == nil:
		return KindNone
	case IsCanceled(err):
		return KindCanceled
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrUnavailable), errors.As(err, &exhausted):
		return KindTransient
	case retryablePattern.MatchString(err.Error()):
		return KindTransient
	default:
		return KindFatal
	}
}

// IsRetryable reports whether the next candidate key or model may be tried after err.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

const ellipsis = "..."

// Truncate shortens s to at most n runes. The "..." marking the cut counts
// towards n; limits too small to hold it cut without a marker.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return string(r[:n])
	}
	return string(r[:n-len(ellipsis)]) + ellipsis
}

// Failure records why one candidate was abandoned.
type Failure struct {
	Candidate string
	Err       error
}

// ExhaustedError is returned when every candidate of a fallback chain failed
// with a retryable error.
type ExhaustedError struct {
	What     string // "API keys", "models"
	Failures []Failure
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.Candidate, Truncate(f.Err.Error(), FailureMessageLimit)))
	}
	msg := fmt.Sprintf("all %d %s failed", len(e.Failures), e.What)
	if len(reasons) > 0 {
		msg += ": " + strings.Join(reasons, "; ")
	}
	return msg
}

// FailureMessageLimit bounds error text in logs and aggregate errors.
const FailureMessageLimit = 100
