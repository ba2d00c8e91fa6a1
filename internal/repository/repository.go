package repository

import (
	"context"
	"time"

	"github.com/gatelock/gatelock-auth/internal/domain"
)

// AccountRepository is the persistence boundary for accounts. The store
// owns durable state; callers hold transient copies per request.
type AccountRepository interface {
	// GetByEmail returns the account with its roles, or
	// domain.ErrAccountNotFound.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetByID returns the account with its roles, or
	// domain.ErrAccountNotFound.
	GetByID(ctx context.Context, id int64) (domain.Account, error)

	// Create inserts the account and attaches the named default role.
	// A duplicate email yields domain.ErrEmailTaken.
	Create(ctx context.Context, account domain.Account, defaultRole string) (domain.Account, error)

	// UpdateLoginStats writes the failed-attempt counter, lock expiry and
	// last-login timestamp. Idempotent full-state write of those columns.
	UpdateLoginStats(ctx context.Context, account domain.Account) error

	// ReleaseExpiredLock clears the lock and the failed-attempt counter,
	// but only while the stored lock expiry is still at or before now.
	// A lock re-acquired by a concurrent failed attempt is left in place;
	// matching no row is not an error.
	ReleaseExpiredLock(ctx context.Context, accountID int64, now time.Time) error

	// RecordFailedAttempt increments the failed-attempt counter and, when
	// the new count reaches maxAttempts, sets the lock expiry. Both happen
	// in one conditional storage-level write, so concurrent failures
	// against the same account never lose an increment. Returns the
	// updated account.
	RecordFailedAttempt(ctx context.Context, accountID int64, maxAttempts int, lockedUntil time.Time) (domain.Account, error)
}
