package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/logging"
	"github.com/carechat/server/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// PublicPrefixes are reachable without a bearer token.
var PublicPrefixes = []string{
	"/auth/register",
	"/auth/login",
	"/auth/google",
	"/auth/send-otp",
	"/auth/verify-account",
	"/auth/forgot-password",
	"/auth/verify-otp",
	"/auth/reset-password",
	"/auth/refresh-accessToken",
	"/auth/logout",
	"/health",
}

// Principal is the authenticated caller.
type Principal struct {
	AccountID uuid.UUID
	Role      model.Role
}

// Authenticator validates access tokens on every non-public request and attaches
// the Principal to the request context.
type Authenticator struct {
	tokens      *auth.TokenCodec
	revocations *auth.RevocationList
	public      []string
}

// NewAuthenticator creates an Authenticator that skips PublicPrefixes.
func NewAuthenticator(tokens *auth.TokenCodec, revocations *auth.RevocationList) *Authenticator {
	return &Authenticator{tokens: tokens, revocations: revocations, public: PublicPrefixes}
}

func (a *Authenticator) isPublic(path string) bool {
	for _, p := range a.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware returns the chi-compatible handler wrapper.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "token invalid")
			return
		}

		revoked, err := a.revocations.IsBlacklisted(r.Context(), token)
		if err != nil {
			logging.FromContext(r.Context()).Error("blacklist lookup failed", zap.Error(err))
			respondWithError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		if revoked {
			respondWithError(w, http.StatusUnauthorized, "token revoked")
			return
		}

		claims, err := a.tokens.VerifyAccess(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "token expired")
			return
		}
		accountID, err := claims.AccountID()
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "token invalid")
			return
		}

		p := Principal{AccountID: accountID, Role: model.Role(claims.Role)}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole rejects callers whose role is not one of roles. It must run after
// the Authenticator.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "token invalid")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondWithError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the caller attached by the Authenticator.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// respondWithError sends a JSON error envelope
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": statusCode, "message": message})
}
