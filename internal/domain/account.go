package domain

import "time"

// Role is a named role attached to an account.
type Role struct {
	ID   int64
	Name string
}

// Account represents the security-relevant state of one user. All
// time-dependent transitions take the current time as an argument so the
// state machine stays deterministic and testable without a real clock.
type Account struct {
	ID                  int64
	Email               string
	Username            string
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Roles               []Role
}

// IsLocked reports whether an active lock rejects login attempts at now.
// A lock whose expiry equals now is already released.
func (a *Account) IsLocked(now time.Time) bool {
	if a.LockedUntil == nil {
		return false
	}
	return now.Before(*a.LockedUntil)
}

// LockExpired reports whether a lock exists but its window has passed.
func (a *Account) LockExpired(now time.Time) bool {
	if a.LockedUntil == nil {
		return false
	}
	return !now.Before(*a.LockedUntil)
}

// Lock places the account in the locked state until now + duration.
func (a *Account) Lock(now time.Time, duration time.Duration) {
	until := now.Add(duration)
	a.LockedUntil = &until
}

// Unlock clears the lock state.
func (a *Account) Unlock() {
	a.LockedUntil = nil
}

// RecordFailure increments the failed login attempt counter.
func (a *Account) RecordFailure() {
	a.FailedLoginAttempts++
}

// ResetFailedAttempts zeroes the failed login attempt counter.
func (a *Account) ResetFailedAttempts() {
	a.FailedLoginAttempts = 0
}

// RecordLogin stamps the account with a successful login time.
func (a *Account) RecordLogin(now time.Time) {
	a.LastLoginAt = &now
}

// HasRole reports whether the account carries the named role.
func (a *Account) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
