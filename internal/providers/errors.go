package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/sony/gobreaker"
)

// ErrorType buckets provider failures for logs and the llm_calls audit table.
type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// Retryable reports whether the same request may succeed later against the
// same provider.
func (t ErrorType) Retryable() bool {
	return t == ErrorRate || t == ErrorTransient
}

// Matched in order against the lowercased error text; first hit wins.
var errorRules = []struct {
	typ     ErrorType
	needles []string
}{
	{ErrorQuota, []string{"insufficient_quota", "quota", "credit", "resource_exhausted"}},
	{ErrorRate, []string{"429", "rate limit", "rate_limit", "too many requests", "rate"}},
	{ErrorContext, []string{"context length", "context_length", "too long", "token limit", "context"}},
	{ErrorTransient, []string{"timeout", "temporarily", "unavailable", "503", "502", "connection reset", "eof"}},
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorTransient
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		for _, n := range rule.needles {
			if strings.Contains(msg, n) {
				return rule.typ
			}
		}
	}
	return ErrorPermanent
}
