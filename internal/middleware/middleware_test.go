package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/ephemeral"
	"github.com/carechat/server/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore fails every call it overrides; the embedded nil Store panics on the rest.
type brokenStore struct {
	ephemeral.Store
}

func (brokenStore) Exists(context.Context, string) (bool, error) {
	return false, ephemeral.ErrUnavailable
}

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, ephemeral.ErrUnavailable
}

type authFixture struct {
	codec   *auth.TokenCodec
	revoked *auth.RevocationList
	clock   *ephemeral.ManualClock
	handler http.Handler
	seen    *Principal
}

func newAuthFixture(t *testing.T, store ephemeral.Store) *authFixture {
	t.Helper()
	clock := ephemeral.NewManualClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	if store == nil {
		store = ephemeral.NewMemoryStore(clock.Now)
	}
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  strings.Repeat("a", 32),
		RefreshSecret: strings.Repeat("r", 32),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	f := &authFixture{codec: codec, revoked: auth.NewRevocationList(store), clock: clock}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFrom(r.Context()); ok {
			f.seen = &p
		}
		w.WriteHeader(http.StatusNoContent)
	})
	f.handler = NewAuthenticator(codec, f.revoked).Middleware(next)
	return f
}

func (f *authFixture) do(path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, rec.Code, body.Code)
	return body.Message
}

func TestAuthenticator_PublicPathsSkipChecks(t *testing.T) {
	f := newAuthFixture(t, nil)

	for _, p := range []string{"/auth/login", "/auth/register", "/auth/refresh-accessToken", "/auth/logout", "/health"} {
		rec := f.do(p, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, p)
	}
	assert.Nil(t, f.seen)
}

func TestAuthenticator_AttachesPrincipal(t *testing.T) {
	f := newAuthFixture(t, nil)
	id := uuid.New()
	token, err := f.codec.IssueAccess(id, "doc", "DOCTOR")
	require.NoError(t, err)

	rec := f.do("/accounts/me", "Bearer "+token)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, f.seen)
	assert.Equal(t, id, f.seen.AccountID)
	assert.Equal(t, model.RoleDoctor, f.seen.Role)
}

func TestAuthenticator_Rejections(t *testing.T) {
	f := newAuthFixture(t, nil)
	token, err := f.codec.IssueAccess(uuid.New(), "alice", "USER")
	require.NoError(t, err)
	refresh, err := f.codec.IssueRefresh(uuid.New(), "alice", "USER")
	require.NoError(t, err)

	rec := f.do("/accounts/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token invalid", decodeMessage(t, rec))

	rec = f.do("/accounts/me", "Token "+token)
	assert.Equal(t, "token invalid", decodeMessage(t, rec))

	rec = f.do("/accounts/me", "Bearer "+refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decodeMessage(t, rec))

	f.clock.Advance(16 * time.Minute)
	rec = f.do("/accounts/me", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decodeMessage(t, rec))
	assert.Nil(t, f.seen)
}

func TestAuthenticator_RevokedToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	token, err := f.codec.IssueAccess(uuid.New(), "alice", "USER")
	require.NoError(t, err)
	require.NoError(t, f.revoked.Blacklist(context.Background(), token, f.codec.RemainingLifetime(token)))

	rec := f.do("/accounts/me", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token revoked", decodeMessage(t, rec))
}

func TestAuthenticator_BlacklistOutageFailsClosed(t *testing.T) {
	f := newAuthFixture(t, brokenStore{})
	token, err := f.codec.IssueAccess(uuid.New(), "alice", "USER")
	require.NoError(t, err)

	rec := f.do("/accounts/me", "Bearer "+token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, f.seen)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(model.RoleAdmin, model.RoleDoctor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(ctx context.Context) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil).WithContext(ctx))
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	assert.Equal(t, http.StatusForbidden, serve(WithPrincipal(context.Background(), Principal{Role: model.RoleUser})))
	assert.Equal(t, http.StatusNoContent, serve(WithPrincipal(context.Background(), Principal{Role: model.RoleDoctor})))
}

func TestRateLimitMiddleware(t *testing.T) {
	clock := ephemeral.NewManualClock(time.Now())
	limiter := NewRateLimiter(ephemeral.NewMemoryStore(clock.Now), time.Minute, 5)
	h := RateLimitMiddleware(limiter, "login", GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)
	}
	rec := send("10.0.0.1:5001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code)

	clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := NewRateLimiter(brokenStore{}, time.Minute, 1)
	h := RateLimitMiddleware(limiter, "login", GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestGetIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4321"
	assert.Equal(t, "192.0.2.7", GetIPKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "192.0.2.7", GetIPKey(req))
}
