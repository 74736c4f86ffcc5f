package domain

import (
	"errors"
	"fmt"
)

// Not-found and state errors fail fast and are surfaced to the caller.
var (
	ErrEntryNotFound        = errors.New("corpus entry not found")
	ErrCaseNotFound         = errors.New("resolved case not found")
	ErrEventNotFound        = errors.New("learning event not found")
	ErrAlreadyReviewed      = errors.New("learning event already reviewed")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ProviderError wraps a failure from an external embedding, generation, or
// rerank provider with the provider's name for logging and alerting.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a ProviderError from the named provider.
func NewProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
