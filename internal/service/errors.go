package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rryowa/authservice/internal/storage"
)

// Client-facing error taxonomy. Messages are short and never identify which
// part of a request was wrong.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidationFailed    = errors.New("validation failed")
	ErrTemporaryFailure    = errors.New("service temporarily unavailable, please retry")
	ErrUnexpected          = errors.New("unexpected error")
)

// ValidationError lists every rule a request broke.
type ValidationError struct {
	Messages []string
}

// NewValidationError keeps the first occurrence of each message.
func NewValidationError(messages ...string) *ValidationError {
	seen := make(map[string]bool, len(messages))
	uniq := make([]string, 0, len(messages))
	for _, m := range messages {
		if seen[m] {
			continue
		}
		seen[m] = true
		uniq = append(uniq, m)
	}
	return &ValidationError{Messages: uniq}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// classify wraps a collaborator failure into TemporaryFailure or Unexpected,
// keeping the cause for server-side logs.
func classify(op string, err error) error {
	if storage.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTemporaryFailure, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnexpected, err)
}
