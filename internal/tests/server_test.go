package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/db"
	"github.com/carechat/server/internal/ephemeral"
	httphandler "github.com/carechat/server/internal/http"
	"github.com/carechat/server/internal/http/handlers"
	"github.com/carechat/server/internal/middleware"
	"github.com/carechat/server/internal/notify"
	"github.com/carechat/server/internal/repo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testAvatar = "/static/img/default-avatar.jpg"

// testServer holds the server and its backing stores for end-to-end tests
type testServer struct {
	Server   *httptest.Server
	DB       *gorm.DB
	Redis    *miniredis.Miniredis
	Mail     *CaptureSender
	Identity *StaticIdentity
}

type serverOptions struct {
	databaseURL string
	rateLimit   int
	trustProxy  bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	if opts.databaseURL == "" {
		opts.databaseURL = "sqlite://" + filepath.Join(t.TempDir(), "auth.db") + "?_pragma=busy_timeout(5000)"
	}
	if opts.rateLimit == 0 {
		opts.rateLimit = 1000
	}

	database, err := db.OpenGorm(ctx, opts.databaseURL, log)
	require.NoError(t, err, "database open must succeed")
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := ephemeral.NewRedisStore(client)

	mail := &CaptureSender{}
	dispatcher := notify.NewDispatcher(notify.Config{QueueSize: 64, Workers: 1, SendTimeout: time.Second}, mail, log, nil)
	t.Cleanup(dispatcher.Close)

	tokens, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  strings.Repeat("a", 32),
		RefreshSecret: strings.Repeat("r", 32),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	ident := &StaticIdentity{}
	accounts := repo.NewAccountRepo(database)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	revocations := auth.NewRevocationList(store)
	svc := auth.NewAuthService(auth.Deps{
		Accounts:      accounts,
		DeviceKeys:    repo.NewDeviceKeyRepo(database),
		Credentials:   auth.NewPasswordCredentials(accounts, hasher),
		Hasher:        hasher,
		Tokens:        tokens,
		Otp:           auth.NewOtpGate(store, dispatcher, log),
		Revocations:   revocations,
		Identity:      ident,
		DefaultAvatar: testAvatar,
		Log:           log,
	})

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:     handlers.NewAuthHandler(svc),
		Accounts: handlers.NewAccountHandler(svc),
		Health: handlers.NewHealthHandler(
			handlers.HealthCheck{Name: "database", Ping: func(ctx context.Context) error { return db.Ping(ctx, database) }},
			handlers.HealthCheck{Name: "redis", Ping: store.Ping},
		),
		Authenticator: middleware.NewAuthenticator(tokens, revocations),
		Limiter:       middleware.NewRateLimiter(store, time.Minute, opts.rateLimit),
		Log:           log,

		TrustProxyHeaders: opts.trustProxy,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, DB: database, Redis: mr, Mail: mail, Identity: ident}
}

// apiResponse mirrors the JSON envelope
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type sessionData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Avatar       string `json:"avatar"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	Account      struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"account"`
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any, extra ...http.Header) (int, apiResponse, http.Header) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, h := range extra {
		for k, vs := range h {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out apiResponse
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out, resp.Header
}

func (ts *testServer) post(t *testing.T, path string, body any) (int, apiResponse) {
	t.Helper()
	status, res, _ := ts.do(t, http.MethodPost, path, "", body)
	return status, res
}

// waitCode waits for the dispatcher to deliver a code to email.
func (ts *testServer) waitCode(t *testing.T, email string, after int) string {
	t.Helper()
	require.Eventually(t, func() bool { return ts.Mail.Count(email) > after }, 2*time.Second, 10*time.Millisecond,
		"no code delivered to %s", email)
	code, ok := ts.Mail.LatestCode(email)
	require.True(t, ok)
	return code
}

// signIn runs both login steps for an existing account and returns the session.
func (ts *testServer) signIn(t *testing.T, email, password, deviceID string) sessionData {
	t.Helper()
	before := ts.Mail.Count(email)
	status, res := ts.post(t, "/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, res.Message)

	code := ts.waitCode(t, email, before)
	status, res = ts.post(t, "/auth/verify-account", map[string]string{"email": email, "otp": code, "deviceId": deviceID})
	require.Equal(t, http.StatusOK, status, res.Message)

	var s sessionData
	require.NoError(t, json.Unmarshal(res.Data, &s))
	return s
}
