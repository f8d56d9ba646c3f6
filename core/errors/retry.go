package errors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the retry behavior for a specific error tier.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of retry attempts (0 means no retry).
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the starting backoff duration.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay is the maximum backoff duration.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64 `yaml:"multiplier"`

	// UseRetryAfter honors RetryAfter on rate limit errors.
	UseRetryAfter bool `yaml:"use_retry_after"`

	// JitterPercent is the jitter percentage (default: 0.1 for 10%).
	JitterPercent float64 `yaml:"jitter_percent"`
}

// DefaultRetryPolicies returns the default retry policies for each error tier.
func DefaultRetryPolicies() map[ErrorTier]*RetryPolicy {
	return map[ErrorTier]*RetryPolicy{
		TierTransient: {
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			JitterPercent: 0.1,
		},
		TierExternalRateLimit: {
			MaxAttempts:   5,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			UseRetryAfter: true,
			JitterPercent: 0.1,
		},
		TierExternalDegrading: {
			MaxAttempts:   2,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			Multiplier:    2.0,
			JitterPercent: 0.1,
		},
		TierPermanent:   {},
		TierUserFixable: {},
	}
}

// GetRetryPolicy returns the default retry policy for a given error tier.
func GetRetryPolicy(tier ErrorTier) *RetryPolicy {
	if policy, ok := DefaultRetryPolicies()[tier]; ok {
		return policy
	}
	return &RetryPolicy{}
}

// RetryExecutor executes operations with retry logic based on error tiers.
type RetryExecutor struct {
	policies map[ErrorTier]*RetryPolicy
}

// NewRetryExecutor creates a new RetryExecutor with the given policies.
func NewRetryExecutor(policies map[ErrorTier]*RetryPolicy) *RetryExecutor {
	if policies == nil {
		policies = DefaultRetryPolicies()
	}
	return &RetryExecutor{policies: policies}
}

// Do runs fn, classifying each failure by tier and retrying while that
// tier's policy allows. Returns the last error if all attempts fail.
func (e *RetryExecutor) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		policy := e.getPolicy(GetTier(lastErr))
		if attempt >= policy.MaxAttempts {
			return lastErr
		}

		delay := e.computeDelay(lastErr, attempt, policy)
		if err := waitBeforeRetry(ctx, delay); err != nil {
			return lastErr
		}
	}
}

// getPolicy returns the policy for the given tier or a no-retry policy.
func (e *RetryExecutor) getPolicy(tier ErrorTier) *RetryPolicy {
	if policy, ok := e.policies[tier]; ok && policy != nil {
		return policy
	}
	return &RetryPolicy{}
}

// computeDelay calculates the delay for the next retry attempt.
func (e *RetryExecutor) computeDelay(err error, attempt int, policy *RetryPolicy) time.Duration {
	if policy.UseRetryAfter {
		if retryAfter := extractRetryAfter(err); retryAfter > 0 {
			return retryAfter
		}
	}
	return AddJitter(CalculateDelay(attempt, policy), policy.JitterPercent)
}

func extractRetryAfter(err error) time.Duration {
	var te *TieredError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

func waitBeforeRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalculateDelay computes the exponential backoff delay for an attempt:
// initial * multiplier^attempt, capped at MaxDelay.
func CalculateDelay(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return 0
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(policy.InitialDelay) * math.Pow(multiplier, float64(attempt)))
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		return policy.MaxDelay
	}
	return delay
}

// AddJitter applies ±jitterPercent random jitter, never returning less
// than a millisecond.
func AddJitter(delay time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 {
		return delay
	}
	jitterRange := float64(delay) * jitterPercent
	offset := (rand.Float64()*2 - 1) * jitterRange
	jittered := time.Duration(float64(delay) + offset)
	if jittered < time.Millisecond {
		return time.Millisecond
	}
	return jittered
}
