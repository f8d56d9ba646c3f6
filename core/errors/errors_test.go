package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTierString(t *testing.T) {
	tests := []struct {
		tier     ErrorTier
		expected string
	}{
		{TierTransient, "transient"},
		{TierPermanent, "permanent"},
		{TierUserFixable, "user_fixable"},
		{TierExternalRateLimit, "external_rate_limit"},
		{TierExternalDegrading, "external_degrading"},
		{ErrorTier(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tier.String())
		})
	}
}

func TestTieredError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewTieredError(TierTransient, "connect", cause)

	assert.Equal(t, "[transient] connect: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[permanent] nope", NewTieredError(TierPermanent, "nope", nil).Error())
}

func TestTieredError_IsMatchesTier(t *testing.T) {
	err := NewTieredError(TierTransient, "blip", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetTier(t *testing.T) {
	assert.Equal(t, TierTransient, GetTier(ErrTimeout))
	assert.Equal(t, TierPermanent, GetTier(errors.New("plain")))
	assert.Equal(t, TierPermanent, GetTier(NewUnknownPersonaError("x", nil)))
	assert.Equal(t, TierTransient, GetTier(&TransientChannelError{Op: "set_attributes", Err: errors.New("closed")}))
	assert.Equal(t, TierTransient, GetTier(fmt.Errorf("wrapped: %w", &TransientChannelError{Op: "speak"})))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(ErrMissingAPIKey))
	assert.False(t, IsRetryable(NewUnknownPersonaError("ghost", nil)))
}

func TestTierForStatus(t *testing.T) {
	assert.Equal(t, TierExternalRateLimit, TierForStatus(http.StatusTooManyRequests))
	assert.Equal(t, TierUserFixable, TierForStatus(http.StatusUnauthorized))
	assert.Equal(t, TierExternalDegrading, TierForStatus(http.StatusBadGateway))
	assert.Equal(t, TierTransient, TierForStatus(http.StatusRequestTimeout))
	assert.Equal(t, TierPermanent, TierForStatus(http.StatusNotFound))
}

func TestWrapWithTier(t *testing.T) {
	assert.Nil(t, WrapWithTier(TierTransient, "x", nil))

	wrapped := WrapWithTier(TierPermanent, "outer", NewTieredError(TierExternalRateLimit, "slow down", nil).WithRetryAfter(time.Second))
	var te *TieredError
	require.ErrorAs(t, wrapped, &te)
	assert.Equal(t, TierExternalRateLimit, te.Tier, "existing tier is preserved")
	assert.Equal(t, time.Second, te.RetryAfter)
}

func TestConfigurationError(t *testing.T) {
	err := NewUnknownPersonaError("billing agent", []string{"voice agent", "emotional support agent"})

	assert.Contains(t, err.Error(), `"billing agent"`)
	assert.Contains(t, err.Error(), "voice agent, emotional support agent")
	assert.True(t, IsConfigurationError(fmt.Errorf("transfer: %w", err)))
	assert.False(t, IsConfigurationError(ErrTimeout))
}

func TestConnectionError_TierFollowsCause(t *testing.T) {
	degraded := &ConnectionError{Service: "coordination", Err: ErrServiceUnavailable}
	assert.Equal(t, TierExternalDegrading, GetTier(degraded))

	plain := &ConnectionError{Service: "coordination", Err: errors.New("reset")}
	assert.Equal(t, TierTransient, GetTier(plain))
	assert.Contains(t, plain.Error(), "connect coordination")
}
