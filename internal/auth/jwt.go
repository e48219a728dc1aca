package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minSecretLength = 32
)

// Claims is the claim set carried by both access and refresh tokens.
type Claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID returns the subject as a UUID.
func (c *Claims) AccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return id, nil
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// TokenCodec signs and verifies access and refresh tokens. It holds no state beyond its keys.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenCodec validates cfg and returns a codec.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) < minSecretLength || len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}, nil
}

// IssueAccess signs a short-lived access token.
func (c *TokenCodec) IssueAccess(accountID uuid.UUID, username, role string) (string, error) {
	return c.sign(accountID, username, role, tokenTypeAccess, c.accessTTL, c.accessSecret)
}

// IssueRefresh signs a long-lived refresh token.
func (c *TokenCodec) IssueRefresh(accountID uuid.UUID, username, role string) (string, error) {
	return c.sign(accountID, username, role, tokenTypeRefresh, c.refreshTTL, c.refreshSecret)
}

func (c *TokenCodec) sign(accountID uuid.UUID, username, role, typ string, ttl time.Duration, secret []byte) (string, error) {
	now := c.now()
	claims := &Claims{
		Username:  username,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// VerifyAccess parses an access token. It returns ErrTokenExpired for an elapsed token
// and ErrTokenInvalid for anything else that fails.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, c.accessSecret, tokenTypeAccess)
}

// VerifyRefresh parses a refresh token with the same rules as VerifyAccess.
func (c *TokenCodec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, c.refreshSecret, tokenTypeRefresh)
}

func (c *TokenCodec) verify(token string, secret []byte, typ string) (*Claims, error) {
	claims, err := c.parse(token, secret, true)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != typ {
		return nil, ErrTokenInvalid
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ExtractAccountIDIgnoringExpiry returns the subject of a correctly signed access token
// even when it has expired. Only logout uses it.
func (c *TokenCodec) ExtractAccountIDIgnoringExpiry(token string) (uuid.UUID, error) {
	claims, err := c.parse(token, c.accessSecret, false)
	if err != nil || claims.TokenType != tokenTypeAccess {
		return uuid.Nil, ErrTokenInvalid
	}
	id, err := claims.AccountID()
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

// RemainingLifetime is the time left before an access token expires, or zero when it
// has already expired or cannot be parsed.
func (c *TokenCodec) RemainingLifetime(token string) time.Duration {
	claims, err := c.parse(token, c.accessSecret, false)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	left := claims.ExpiresAt.Time.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

func (c *TokenCodec) parse(token string, secret []byte, validateClaims bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if validateClaims {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
