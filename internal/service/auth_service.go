// Package service implements the authentication decision engine: it
// composes the account store, credential delegate, lockout policy and
// response timing policy into register and login operations.
package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gatelock/gatelock-auth/internal/config"
	"github.com/gatelock/gatelock-auth/internal/domain"
	"github.com/gatelock/gatelock-auth/internal/password"
	"github.com/gatelock/gatelock-auth/internal/repository"
)

const endpointLogin = "login"

// TokenIssuer signs access tokens for an account id.
type TokenIssuer interface {
	Issue(accountID int64) (string, error)
}

// LockoutPolicy guards login attempts and records their outcomes.
type LockoutPolicy interface {
	Guard(ctx context.Context, account *domain.Account, now time.Time) error
	OnFailure(ctx context.Context, account *domain.Account, now time.Time) error
	OnSuccess(ctx context.Context, account *domain.Account, now time.Time) error
}

// ResponseTimingPolicy equalizes response latency per endpoint.
type ResponseTimingPolicy interface {
	Enforce(ctx context.Context, start time.Time, endpoint string)
}

// RegisterRequest carries the fields required to create an account.
type RegisterRequest struct {
	Email    string
	Password string
	Username string
}

// LoginRequest carries a credential pair.
type LoginRequest struct {
	Email    string
	Password string
}

// RoleView is the public shape of a role.
type RoleView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AccountView is the public shape of an account. It never carries the
// password hash, the attempt counter or the lock state.
type AccountView struct {
	ID       int64      `json:"id"`
	Email    string     `json:"email"`
	Username string     `json:"username"`
	Roles    []RoleView `json:"roles"`
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	User  AccountView `json:"user"`
	Token string      `json:"token"`
}

// AuthService orchestrates registration and login.
type AuthService struct {
	accounts repository.AccountRepository
	hasher   password.Hasher
	tokens   TokenIssuer
	lockout  LockoutPolicy
	timing   ResponseTimingPolicy
	cfg      config.Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(
	accounts repository.AccountRepository,
	hasher password.Hasher,
	tokens TokenIssuer,
	lockout LockoutPolicy,
	timing ResponseTimingPolicy,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		lockout:  lockout,
		timing:   timing,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock returns a copy of the service using the supplied clock.
// Used by tests to drive the lockout window deterministically.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	clone := *s
	clone.now = now
	return &clone
}

// Register creates an account with the default role attached and returns
// its public view plus a signed token.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (resp AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			err = translateError(err)
		}
	}()

	email := normalizeIdentifier(req.Email)
	if email == "" {
		return AuthResponse{}, newAuthError("invalid_request", "Email is required.", http.StatusBadRequest)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResponse{}, err
	}

	created, err := s.accounts.Create(ctx, domain.Account{
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
	}, s.cfg.DefaultRole)
	if err != nil {
		return AuthResponse{}, err
	}

	token, err := s.tokens.Issue(created.ID)
	if err != nil {
		return AuthResponse{}, err
	}

	s.audit("auth.register.success", "account_id", created.ID)
	return buildAuthResponse(created, token), nil
}

// Login verifies a credential pair under the lockout policy. Every exit
// path, success and failure alike, passes through the timing policy before
// control returns, and the original outcome is preserved across that wait.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (resp AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.timing.Enforce(ctx, start, endpointLogin)
			panic(r)
		}
		if err != nil {
			span.RecordError(err)
			err = translateError(err)
		}
		s.timing.Enforce(ctx, start, endpointLogin)
	}()

	account, err := s.accounts.GetByEmail(ctx, normalizeIdentifier(req.Email))
	if err != nil {
		return AuthResponse{}, err
	}

	if err = s.lockout.Guard(ctx, &account, s.now()); err != nil {
		return AuthResponse{}, err
	}

	if !s.hasher.Compare(req.Password, account.PasswordHash) {
		if ferr := s.lockout.OnFailure(ctx, &account, s.now()); ferr != nil {
			s.log().Error("failed to record login failure",
				zap.Int64("account_id", account.ID), zap.Error(ferr))
		}
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if err = s.lockout.OnSuccess(ctx, &account, s.now()); err != nil {
		return AuthResponse{}, err
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return AuthResponse{}, err
	}

	s.audit("auth.login.success", "account_id", account.ID)
	return buildAuthResponse(account, token), nil
}

// Account returns the public view for an account id. Used by the bearer
// guarded profile endpoint.
func (s *AuthService) Account(ctx context.Context, accountID int64) (AccountView, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Account")
	defer span.End()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return AccountView{}, translateError(err)
	}
	return buildAccountView(account), nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(s.cfg.ServiceName).Start(ctx, name)
}

func (s *AuthService) audit(event string, kv ...any) {
	s.log().Sugar().Infow(event, kv...)
}

func (s *AuthService) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func buildAuthResponse(account domain.Account, token string) AuthResponse {
	return AuthResponse{User: buildAccountView(account), Token: token}
}

func buildAccountView(account domain.Account) AccountView {
	roles := make([]RoleView, 0, len(account.Roles))
	for _, role := range account.Roles {
		roles = append(roles, RoleView{ID: role.ID, Name: role.Name})
	}
	return AccountView{
		ID:       account.ID,
		Email:    account.Email,
		Username: account.Username,
		Roles:    roles,
	}
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
