package http

import (
	"net/http"

	"github.com/carechat/server/internal/http/handlers"
	"github.com/carechat/server/internal/logging"
	"github.com/carechat/server/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterDeps are the pieces the router wires together.
type RouterDeps struct {
	Auth          *handlers.AuthHandler
	Accounts      *handlers.AccountHandler
	Health        *handlers.HealthHandler
	Authenticator *middleware.Authenticator
	Limiter       *middleware.RateLimiter
	Log           *zap.Logger
	// TrustProxyHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if d.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(logging.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(d.Authenticator.Middleware)

	r.Get("/health", d.Health.ServeHTTP)

	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimitMiddleware(d.Limiter, scope, middleware.GetIPKey)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.HandleRegister)
		r.With(limited("login")).Post("/login", d.Auth.HandleLogin)
		r.With(limited("send-otp")).Post("/send-otp", d.Auth.HandleSendOTP)
		r.With(limited("verify-account")).Post("/verify-account", d.Auth.HandleVerifyAccount)
		r.With(limited("forgot-password")).Post("/forgot-password", d.Auth.HandleForgotPassword)
		r.With(limited("verify-otp")).Post("/verify-otp", d.Auth.HandleVerifyOTP)
		r.With(limited("reset-password")).Post("/reset-password", d.Auth.HandleResetPassword)
		r.Post("/updated-password", d.Auth.HandleChangePassword)
		r.Post("/refresh-accessToken", d.Auth.HandleRefresh)
		r.Post("/google", d.Auth.HandleGoogle)
		r.Post("/logout", d.Auth.HandleLogout)
	})

	r.Get("/accounts/me", d.Accounts.HandleMe)

	return r
}
