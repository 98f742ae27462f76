package retry

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"optibooking/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // For exponential backoff

	// OnRetry is called before each sleep; optional
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig retries for roughly half a minute, enough for a database
// container that starts alongside the service
func DefaultConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Strategy == "" {
		c.Strategy = StrategyExponential
	}
	return c
}

// Do executes fn until it succeeds, returns a non-retryable error or runs out of attempts
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for functions that return a value
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Wrap(ctx.Err(), "retry cancelled")
		case <-timer.C:
		}
	}

	return zero, errors.Wrapf(lastErr, "max retries (%d) exceeded", cfg.MaxRetries)
}

// delay calculates the backoff delay based on the strategy
func (c Config) delay(attempt int) time.Duration {
	var d time.Duration
	switch c.Strategy {
	case StrategyLinear:
		d = c.InitialDelay * time.Duration(1+attempt)
	case StrategyFixed:
		d = c.InitialDelay
	default:
		d = time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt)))
	}
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}
	return d
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"temporary failure",
	"the database system is starting up",
	"loading the dataset in memory",
}

// Retryable reports whether err is worth another attempt.
// Context errors and invalid input never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errors.ErrInvalidInput) {
		return false
	}
	if errors.Is(err, errors.ErrUnavailable) || errors.Is(err, errors.ErrTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
