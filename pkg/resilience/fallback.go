package resilience

import (
	"context"
)

// Attempt runs one candidate (a key or a model) of a fallback chain.
type Attempt[T any] func(ctx context.Context, candidate string) (T, error)

// FallbackOptions configures a fallback chain.
type FallbackOptions struct {
	// What names the candidates in the exhaustion error, e.g. "API keys".
	What string
	// Label names a candidate in logs and errors. Defaults to the candidate itself.
	Label func(index int, candidate string) string
	// Retryable overrides IsRetryable. Cancellation always aborts regardless.
	Retryable func(err error) bool
	// OnAttempt fires before each candidate is tried.
	OnAttempt func(index, total int, label string)
	// OnFailure fires after a candidate failed; next reports whether another
	// candidate will be tried.
	OnFailure func(index, total int, label string, err error, next bool)
}

func (o FallbackOptions) label(i int, candidate string) string {
	if o.Label != nil {
		return o.Label(i, candidate)
	}
	return candidate
}

func (o FallbackOptions) retryable(err error) bool {
	if o.Retryable != nil {
		return o.Retryable(err)
	}
	return IsRetryable(err)
}

// Fallback tries candidates strictly in order until one succeeds.
//
// A retryable failure advances to the next candidate; a non-retryable failure
// aborts the chain with that error. Candidates are never revisited.
// Cancellation is checked before every attempt and returned verbatim.
// When every candidate failed, an *ExhaustedError lists each reason.
func Fallback[T any](ctx context.Context, candidates []string, opts FallbackOptions, try Attempt[T]) (T, error) {
	var zero T
	total := len(candidates)
	failures := make([]Failure, 0, total)

	for i, candidate := range candidates {
		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			return zero, Canceled(err)
		}

		label := opts.label(i, candidate)
		if opts.OnAttempt != nil {
			opts.OnAttempt(i, total, label)
		}

		result, err := try(ctx, candidate)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, Canceled(ctxErr)
		}
		if kind := Classify(err); kind == KindCanceled || kind == KindConfiguration {
			return zero, err
		}

		retry := opts.retryable(err)
		if opts.OnFailure != nil {
			opts.OnFailure(i, total, label, err, retry && i < total-1)
		}
		if !retry {
			return zero, err
		}
		failures = append(failures, Failure{Candidate: label, Err: err})
	}

	return zero, &ExhaustedError{What: opts.What, Failures: failures}
}
