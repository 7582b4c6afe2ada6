// Package retry wraps calls to rate-limited providers with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/sheetscan/pkg/logger"
)

var (
	// ErrRateLimited marks a provider error as a throttling response.
	ErrRateLimited = errors.New("rate limited")

	// ErrRateLimitExceeded is matched by the error returned once every attempt was throttled.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 2 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy controls how Call retries.
type Policy struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries   int           `yaml:"maxRetries"`
	InitialDelay time.Duration `yaml:"initialDelay"`

	Sleep  Sleeper       `yaml:"-"`
	Logger logger.Logger `yaml:"-"`
}

// DefaultPolicy returns three attempts starting at a two second delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
	}
}

// ExhaustedError is returned when all attempts were rate limited.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts, please try again later", e.Attempts)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRateLimitExceeded, e.Last}
}

type rateLimitedError struct {
	err error
}

func (e *rateLimitedError) Error() string { return e.err.Error() }

func (e *rateLimitedError) Unwrap() []error { return []error{ErrRateLimited, e.err} }

// MarkRateLimited tags err so IsRateLimited recognizes it.
func MarkRateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &rateLimitedError{err: err}
}

// IsRateLimited reports whether err is a throttling error from any provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

// Call runs fn until it succeeds, fails with a non rate-limit error, or runs out of attempts.
// Before attempt n (n > 0) it waits InitialDelay * 2^(n-1).
func Call[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.InitialDelay * time.Duration(1<<(attempt-1))
			log.Warn("Rate limited, backing off",
				logger.Int("attempt", attempt+1),
				logger.Int("maxRetries", p.MaxRetries),
				logger.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{Attempts: p.MaxRetries, Last: lastErr}
}

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
