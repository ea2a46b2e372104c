package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeStoreUnavailable, "store down")
	assert.Equal(t, "[STORE_UNAVAILABLE] store down", err.Error())

	withCause := NewDomainErrorWithCause(ErrCodeStoreUnavailable, "store down", errors.New("dial tcp: refused"))
	assert.Equal(t, "[STORE_UNAVAILABLE] store down: dial tcp: refused", withCause.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewDomainErrorWithCause(ErrCodeTimeout, "timed out", cause)

	assert.ErrorIs(t, err, cause)
}

func TestDomainError_Is_MatchesByCode(t *testing.T) {
	err := NewDomainErrorWithCause(ErrCodeRateLimited, "slow down", errors.New("429"))

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)

	// Matching survives message wrapping
	wrapped := fmt.Errorf("calling provider: %w", err)
	assert.ErrorIs(t, wrapped, ErrRateLimited)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"provider unavailable", ErrProviderUnavailable, true},
		{"rate limited", ErrRateLimited, true},
		{"timeout", ErrTimeout, true},
		{"wrapped transient", fmt.Errorf("attempt 1: %w", ErrRateLimited), true},
		{"content filtered", ErrContentFiltered, false},
		{"schema violation", ErrSchemaViolation, false},
		{"configuration", ErrConfiguration, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
