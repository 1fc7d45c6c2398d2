package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// Retry policy names used at startup.
const (
	RetryDatabaseConnect = "database_connect"
	RetryRedisConnect    = "redis_connect"
)

// DefaultRetryPolicies returns default retry policies for common operations
func DefaultRetryPolicies() map[string]RetryPolicy {
	return map[string]RetryPolicy{
		RetryDatabaseConnect: {
			MaxRetries:    5,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		RetryRedisConnect: {
			MaxRetries:    3,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}
}

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Retry runs op until it succeeds, the policy is exhausted, ctx is done or op
// returns an error wrapping ErrPermanent. It returns the last error.
func Retry(ctx context.Context, name string, policy RetryPolicy, logger *slog.Logger, op func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	delay := policy.InitialDelay
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("Operation recovered", "operation", name, "attempts", attempt+1)
			}
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) || attempt == policy.MaxRetries {
			break
		}

		wait := policy.jittered(delay)
		logger.Warn("Operation failed, retrying",
			"operation", name,
			"attempt", attempt+1,
			"error", lastErr.Error(),
			"delay", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	logger.Error("Operation failed after all retries",
		"operation", name,
		"attempts", policy.MaxRetries+1,
		"duration", time.Since(start),
		"error", lastErr.Error())
	return lastErr
}

// jittered spreads d by up to 25% either way.
func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if !p.JitterEnabled || d <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*0.25*(2*rand.Float64()-1))
}
