package service

import (
	"errors"
	"net/http"

	"github.com/gatelock/gatelock-auth/internal/domain"
)

// AuthError is the closed external error taxonomy surfaced to transports.
// Descriptions are fixed strings: no email address or other identifier ever
// enters one.
type AuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Description
}

func newAuthError(code, description string, status int) *AuthError {
	return &AuthError{Code: code, Description: description, Status: status}
}

// The unauthorized description is shared between the unknown-email and
// wrong-password branches so the two are indistinguishable from outside.
var (
	errUnauthorized = newAuthError("unauthorized", "Invalid email or password.", http.StatusUnauthorized)
	errLocked       = newAuthError("account_locked", "Account temporarily locked. Try again later.", http.StatusForbidden)
	errConflict     = newAuthError("conflict", "This email is already in use.", http.StatusConflict)
	errServer       = newAuthError("server_error", "Internal server error.", http.StatusInternalServerError)
)

// translateError maps internal failures onto the external taxonomy. An
// *AuthError passes through untouched; anything unrecognized collapses into
// server_error.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrInvalidCredentials):
		return errUnauthorized
	case errors.Is(err, domain.ErrAccountLocked):
		return errLocked
	case errors.Is(err, domain.ErrEmailTaken):
		return errConflict
	case errors.Is(err, domain.ErrEmptyPassword):
		return newAuthError("invalid_request", "Password is required.", http.StatusBadRequest)
	default:
		return errServer
	}
}
