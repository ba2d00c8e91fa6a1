package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatelock/gatelock-auth/internal/config"
	"github.com/gatelock/gatelock-auth/internal/domain"
	httptransport "github.com/gatelock/gatelock-auth/internal/http"
	"github.com/gatelock/gatelock-auth/internal/http/handler"
	"github.com/gatelock/gatelock-auth/internal/http/middleware"
	"github.com/gatelock/gatelock-auth/internal/jwt"
	"github.com/gatelock/gatelock-auth/internal/lockout"
	"github.com/gatelock/gatelock-auth/internal/password"
	"github.com/gatelock/gatelock-auth/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		ServiceName: "gatelock-auth-test",
		DefaultRole: "user",
	}

	repo := newMemoryAccountRepo()
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	tokens := jwt.NewGenerator([]byte("test-secret-test-secret-test!!!!"), "gatelock-auth-test", time.Hour)

	svc := service.NewAuthService(
		repo,
		hasher,
		tokens,
		lockout.NewPolicy(repo, lockout.Config{}, nil),
		noopTiming{},
		cfg,
		nil,
	)

	return httptransport.NewRouter(cfg, handler.NewAuthHandler(svc), &middleware.Auth{Tokens: tokens})
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"email":"alice@x.com","password":"Passw0rd","username":"alice"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "alice@x.com", resp.User.Email)
	require.NotContains(t, strings.ToLower(rec.Body.String()), "password")
}

func TestRegisterEndpointRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", `{"email":"alice@x.com"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_request")
}

func TestRegisterEndpointDuplicateEmail(t *testing.T) {
	router := newTestRouter(t)

	body := `{"email":"alice@x.com","password":"Passw0rd","username":"alice"}`
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", body, "").Code)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", body, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "conflict")
}

func TestLoginEndpoint(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/auth/register",
		`{"email":"alice@x.com","password":"Passw0rd","username":"alice"}`, "")

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"alice@x.com","password":"Passw0rd"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
}

func TestLoginEndpointWrongPassword(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/auth/register",
		`{"email":"alice@x.com","password":"Passw0rd","username":"alice"}`, "")

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"alice@x.com","password":"nope"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "unauthorized")
	require.NotContains(t, rec.Body.String(), "alice@x.com")
}

func TestLoginEndpointMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", `{"email":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_request")
}

func TestMeEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register",
		`{"email":"alice@x.com","password":"Passw0rd","username":"alice"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodGet, "/auth/me", "", created.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	var view service.AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, created.User, view)
}

func TestMeEndpointRequiresBearer(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/auth/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_token")

	rec = doJSON(t, router, http.MethodGet, "/auth/me", "", "not-a-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

type noopTiming struct{}

func (noopTiming) Enforce(ctx context.Context, start time.Time, endpoint string) {}

type memoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]domain.Account
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[int64]domain.Account), nextID: 1}
}

func (m *memoryAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (m *memoryAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryAccountRepo) Create(ctx context.Context, account domain.Account, defaultRole string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == account.Email {
			return domain.Account{}, domain.ErrEmailTaken
		}
	}
	account.ID = m.nextID
	m.nextID++
	account.Roles = []domain.Role{{ID: 1, Name: defaultRole}}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *memoryAccountRepo) UpdateLoginStats(ctx context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	stored.FailedLoginAttempts = account.FailedLoginAttempts
	stored.LockedUntil = account.LockedUntil
	stored.LastLoginAt = account.LastLoginAt
	m.accounts[account.ID] = stored
	return nil
}

func (m *memoryAccountRepo) ReleaseExpiredLock(ctx context.Context, accountID int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	if stored.LockedUntil == nil || stored.LockedUntil.After(now) {
		return nil
	}
	stored.FailedLoginAttempts = 0
	stored.LockedUntil = nil
	m.accounts[accountID] = stored
	return nil
}

func (m *memoryAccountRepo) RecordFailedAttempt(ctx context.Context, accountID int64, maxAttempts int, lockedUntil time.Time) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	stored.FailedLoginAttempts++
	if stored.FailedLoginAttempts >= maxAttempts {
		stored.LockedUntil = &lockedUntil
	}
	m.accounts[accountID] = stored
	return stored, nil
}
