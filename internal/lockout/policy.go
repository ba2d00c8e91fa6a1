// Package lockout enforces the failed-attempt/lock state machine against an
// account, persisting every transition through the account store.
package lockout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gatelock/gatelock-auth/internal/domain"
	"github.com/gatelock/gatelock-auth/internal/repository"
)

const (
	// DefaultMaxAttempts locks the account on the fifth consecutive failure.
	DefaultMaxAttempts = 5
	// DefaultLockDuration is how long a triggered lock holds.
	DefaultLockDuration = 15 * time.Minute
)

// Config tunes the lockout thresholds.
type Config struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LockDuration <= 0 {
		c.LockDuration = DefaultLockDuration
	}
	return c
}

// Policy drives the lockout state machine. All methods take the current
// time explicitly; the policy never reads a wall clock.
type Policy struct {
	accounts repository.AccountRepository
	cfg      Config
	logger   *zap.Logger
}

func NewPolicy(accounts repository.AccountRepository, cfg Config, logger *zap.Logger) *Policy {
	return &Policy{accounts: accounts, cfg: cfg.withDefaults(), logger: logger}
}

// Guard rejects attempts against an actively locked account and releases
// expired locks. Release is persisted before the caller goes on to compare
// credentials, so a locked account never reaches the credential delegate.
// The store write is conditional on the expired expiry, so it cannot
// clobber a lock re-acquired by a concurrent failure.
func (p *Policy) Guard(ctx context.Context, account *domain.Account, now time.Time) error {
	if account.IsLocked(now) {
		return domain.ErrAccountLocked
	}

	if account.LockExpired(now) {
		if err := p.accounts.ReleaseExpiredLock(ctx, account.ID, now); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		account.ResetFailedAttempts()
		account.Unlock()
		p.log().Info("account lock released", zap.Int64("account_id", account.ID))
	}

	return nil
}

// OnFailure counts one failed attempt and locks the account when the count
// reaches the threshold. The increment and the conditional lock happen in a
// single store-level write, so concurrent failures never under-count.
func (p *Policy) OnFailure(ctx context.Context, account *domain.Account, now time.Time) error {
	updated, err := p.accounts.RecordFailedAttempt(ctx, account.ID, p.cfg.MaxAttempts, now.Add(p.cfg.LockDuration))
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	account.FailedLoginAttempts = updated.FailedLoginAttempts
	account.LockedUntil = updated.LockedUntil

	if account.IsLocked(now) {
		p.log().Warn("account locked after repeated failures",
			zap.Int64("account_id", account.ID),
			zap.Int("failed_attempts", account.FailedLoginAttempts),
			zap.Timep("locked_until", account.LockedUntil),
		)
	}
	return nil
}

// OnSuccess resets the counter, clears any lock and stamps the login time.
func (p *Policy) OnSuccess(ctx context.Context, account *domain.Account, now time.Time) error {
	account.ResetFailedAttempts()
	account.Unlock()
	account.RecordLogin(now)

	if err := p.accounts.UpdateLoginStats(ctx, *account); err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

func (p *Policy) log() *zap.Logger {
	if p.logger != nil {
		return p.logger
	}
	return zap.L()
}
