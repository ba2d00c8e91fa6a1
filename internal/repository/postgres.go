package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatelock/gatelock-auth/internal/domain"
)

// Compile-time interface assertion.
var _ AccountRepository = (*PostgresAccountRepo)(nil)

const uniqueViolationCode = "23505"

// PostgresAccountRepo implements AccountRepository on a pgx pool.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: pool}
}

const accountColumns = `id, email, username, password_hash, failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by email: %w", err)
	}
	if err := r.loadRoles(ctx, &account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	if err := r.loadRoles(ctx, &account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

const insertAccountSQL = `INSERT INTO accounts (email, username, password_hash, failed_login_attempts)
VALUES ($1, $2, $3, 0)
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account, defaultRole string) (domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, insertAccountSQL, account.Email, account.Username, account.PasswordHash)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.Account{}, domain.ErrEmailTaken
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	var roleID int64
	err = tx.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, defaultRole).Scan(&roleID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ensure default role: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO account_roles (account_id, role_id) VALUES ($1, $2)`, created.ID, roleID); err != nil {
		return domain.Account{}, fmt.Errorf("attach default role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("commit create account: %w", err)
	}

	created.Roles = []domain.Role{{ID: roleID, Name: defaultRole}}
	return created, nil
}

func (r *PostgresAccountRepo) UpdateLoginStats(ctx context.Context, account domain.Account) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET failed_login_attempts = $2, locked_until = $3, last_login_at = $4, updated_at = now()
WHERE id = $1`, account.ID, account.FailedLoginAttempts, account.LockedUntil, account.LastLoginAt)
	if err != nil {
		return fmt.Errorf("update login stats: %w", err)
	}
	return nil
}

// ReleaseExpiredLock keys the reset on the expired locked_until value, so a
// release racing a concurrent failed attempt that already re-locked the row
// matches nothing instead of overwriting the new lock.
func (r *PostgresAccountRepo) ReleaseExpiredLock(ctx context.Context, accountID int64, now time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts
SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= $2`, accountID, now)
	if err != nil {
		return fmt.Errorf("release expired lock: %w", err)
	}
	return nil
}

// RecordFailedAttempt performs the increment and the conditional lock set in
// one statement, so two concurrent failures against the same account both
// count.
const recordFailedAttemptSQL = `UPDATE accounts
SET failed_login_attempts = failed_login_attempts + 1,
    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
    updated_at = now()
WHERE id = $1
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) RecordFailedAttempt(ctx context.Context, accountID int64, maxAttempts int, lockedUntil time.Time) (domain.Account, error) {
	row := r.db.QueryRow(ctx, recordFailedAttemptSQL, accountID, maxAttempts, lockedUntil)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) loadRoles(ctx context.Context, account *domain.Account) error {
	rows, err := r.db.Query(ctx, `SELECT r.id, r.name FROM roles r
JOIN account_roles ar ON ar.role_id = r.id
WHERE ar.account_id = $1
ORDER BY r.id`, account.ID)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return fmt.Errorf("scan role: %w", err)
		}
		account.Roles = append(account.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate roles: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&account.FailedLoginAttempts,
		&account.LockedUntil,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}
