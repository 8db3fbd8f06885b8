package out

import (
	"context"

	"triage_worker/core/domain"
)

// Mailbox is the outbound port to the mail provider.
// Label names are used throughout; the adapter resolves and creates provider labels as needed.
type Mailbox interface {
	// SearchThreads returns up to limit threads matching query, skipping the first offset.
	SearchThreads(ctx context.Context, query string, offset, limit int) ([]*domain.Thread, error)

	// CountMessages sums the messages of every thread matching query.
	CountMessages(ctx context.Context, query string) (int, error)

	AddLabel(ctx context.Context, messageID, label string) error
	RemoveThreadLabel(ctx context.Context, threadID, label string) error
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrServer       ProviderErrorCode = "server_error"
)

// ProviderError is a mailbox failure classified by cause.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
