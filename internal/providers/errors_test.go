package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"insufficient_quota", ErrorQuota},
		{"googleapi: Error 429: RESOURCE_EXHAUSTED", ErrorQuota},
		{"groq 429: slow down", ErrorRate},
		{"Too Many Requests", ErrorRate},
		{"prompt too long for model", ErrorContext},
		{"read tcp: timeout", ErrorTransient},
		{"gemini 503 service unavailable", ErrorTransient},
		{"bad request", ErrorPermanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(errors.New(tt.msg)), tt.msg)
	}
}

func TestClassifyError_Sentinels(t *testing.T) {
	assert.Equal(t, ErrorType(""), ClassifyError(nil))
	assert.Equal(t, ErrorTransient, ClassifyError(fmt.Errorf("gemini generate: %w", gobreaker.ErrOpenState)))
	assert.Equal(t, ErrorTransient, ClassifyError(fmt.Errorf("call: %w", context.DeadlineExceeded)))
}

func TestErrorTypeRetryable(t *testing.T) {
	assert.True(t, ErrorRate.Retryable())
	assert.True(t, ErrorTransient.Retryable())
	assert.False(t, ErrorQuota.Retryable())
	assert.False(t, ErrorPermanent.Retryable())
	assert.False(t, ErrorContext.Retryable())
}
