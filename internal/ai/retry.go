package ai

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/utils"
)

const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second

	// retryHintPadding is added to every server-provided wait.
	retryHintPadding = time.Second
)

// RetryPolicy bounds how often and how long a failing call is retried.
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries     int           `mapstructure:"max-retries"`
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`
	// MaxRetryAfter rejects server hints longer than this. Zero honours any hint.
	MaxRetryAfter time.Duration `mapstructure:"max-retry-after"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p == (RetryPolicy{}) {
		return DefaultRetryPolicy()
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	return p
}

// Backoff doubles after every retriable failure and never exceeds its cap.
type Backoff struct {
	current time.Duration
	max     time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{current: min(initial, max), max: max}
}

func (b *Backoff) Current() time.Duration { return b.current }

func (b *Backoff) Advance() {
	b.current = min(b.current*2, b.max)
}

// WaitFunc blocks between attempts.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Retrier runs calls under a RetryPolicy. The zero value is not usable; use NewRetrier.
type Retrier struct {
	policy RetryPolicy
	logger *zap.Logger
	wait   WaitFunc
}

func NewRetrier(policy RetryPolicy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		policy: policy.normalized(),
		logger: logger,
		wait:   utils.WaitFor,
	}
}

// SetWait replaces the blocking wait between attempts.
func (r *Retrier) SetWait(fn WaitFunc) {
	if fn == nil {
		fn = utils.WaitFor
	}
	r.wait = fn
}

func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Do calls fn until it succeeds, returns an error that is not a *RetriableError,
// or fails MaxRetries+1 times in a row.
func (r *Retrier) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	backoff := NewBackoff(r.policy.InitialBackoff, r.policy.MaxBackoff)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("call succeeded after retries", zap.String("call", label), zap.Int("attempts", attempt))
			}
			return nil
		}

		var retriable *RetriableError
		if !errors.As(err, &retriable) {
			r.logger.Error("call failed", zap.String("call", label), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		if attempt > r.policy.MaxRetries {
			r.logger.Error("call failed, no more retries",
				zap.String("call", label),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return &ExhaustedError{Label: label, Attempts: attempt, Last: err}
		}

		wait := backoff.Current()
		if retriable.RetryAfter > 0 {
			wait = retriable.RetryAfter
		}

		if r.policy.MaxRetryAfter > 0 && wait > r.policy.MaxRetryAfter {
			r.logger.Error("server asked to wait too long, not retrying",
				zap.String("call", label),
				zap.Duration("wait", wait),
				zap.Duration("limit", r.policy.MaxRetryAfter),
			)
			return errors.WithHintf(err, "server asked to wait %s, above the configured %s", wait, r.policy.MaxRetryAfter)
		}

		fields := []zap.Field{
			zap.String("call", label),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Error(retriable.Err),
		}
		if retriable.Status != 0 {
			fields = append(fields, zap.Int("status", retriable.Status))
		}
		r.logger.Warn("retrying call", fields...)

		if err := r.wait(ctx, wait); err != nil {
			return errors.Wrapf(err, "%s: waiting before retry", label)
		}
		backoff.Advance()
	}
}

// IsRetriableStatus reports whether an HTTP status is worth another attempt.
func IsRetriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var retryHintPattern = regexp.MustCompile(`(?i)(?:try again|retry) (?:in|after) ([0-9]+(?:\.[0-9]+)?)\s*(ms|milliseconds|s|sec|secs|seconds)?\b`)

// ParseRetryHint extracts a "try again in N seconds" style hint from free text.
// The returned duration is padded by one second.
func ParseRetryHint(text string) (time.Duration, bool) {
	m := retryHintPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if strings.HasPrefix(strings.ToLower(m[2]), "m") {
		unit = time.Millisecond
	}
	return time.Duration(value*float64(unit)) + retryHintPadding, true
}

// ParseRetryDelay reads a duration such as "7s" or "1.500s", the form APIs
// put in a RetryInfo error detail. The returned duration is padded by one second.
func ParseRetryDelay(value string) (time.Duration, bool) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return 0, false
	}
	return d + retryHintPadding, true
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as an
// HTTP date. The returned duration is padded by one second.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds*float64(time.Second)) + retryHintPadding, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d + retryHintPadding, true
	}
	return 0, false
}

// RateLimitWait resolves the wait for a 429 response: header first, then a
// hint in the body. Zero means "use the current backoff".
func RateLimitWait(header http.Header, body string, now time.Time) time.Duration {
	if header != nil {
		if d, ok := ParseRetryAfter(header.Get("Retry-After"), now); ok {
			return d
		}
	}
	if d, ok := ParseRetryHint(body); ok {
		return d
	}
	return 0
}
