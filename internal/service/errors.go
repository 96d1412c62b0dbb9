package service

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrEmailTaken            = errors.New("email already in use")
	ErrRateLimited           = errors.New("too many attempts, try again in 15 minutes")
	ErrUserNotFound          = errors.New("user not found")
)

// ValidationError reports bad input; Issues itemizes each failed rule.
type ValidationError struct {
	Message string
	Issues  []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Issues, "; ")
}

func invalid(message string, issues ...string) error {
	return &ValidationError{Message: message, Issues: issues}
}
