package ai

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRetriable marks transport failures worth another attempt.
	ErrRetriable = errors.New("retriable failure")
	// ErrExhaustedRetries marks a call that kept failing until the retry budget ran out.
	ErrExhaustedRetries = errors.New("retries exhausted")
	// ErrMissingCredential is returned by constructors when no API key is configured.
	ErrMissingCredential = errors.New("missing credential")
)

// maxBodyExcerpt bounds how much of a failed response body is kept in errors.
const maxBodyExcerpt = 500

// RetriableError is a timeout, connection failure, 429 or 5xx response.
type RetriableError struct {
	// Status is the HTTP status code, zero for network-level failures.
	Status int
	// RetryAfter is the server-provided wait (already padded), zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *RetriableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("retriable http status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("retriable transport error: %v", e.Err)
}

func (e *RetriableError) Unwrap() error { return e.Err }

func (e *RetriableError) Is(target error) bool { return target == ErrRetriable }

// RequestError is a response with a status the client never retries.
type RequestError struct {
	Label  string
	Status int
	Body   string
}

// NewRequestError keeps at most 500 characters of the response body.
func NewRequestError(label string, status int, body string) *RequestError {
	runes := []rune(body)
	if len(runes) > maxBodyExcerpt {
		body = string(runes[:maxBodyExcerpt])
	}
	return &RequestError{Label: label, Status: status, Body: body}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed with status %d: %s", e.Label, e.Status, e.Body)
}

// ExhaustedError wraps the last retriable failure once the budget is spent.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhaustedRetries }
