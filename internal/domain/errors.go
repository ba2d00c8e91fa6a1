package domain

import "errors"

// Sentinel errors surfaced by the account store and credential checks.
// The service layer translates these into the external error taxonomy;
// they never reach a client directly.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmptyPassword      = errors.New("password must not be empty")
)
