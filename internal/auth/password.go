package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/carechat/server/internal/model"
	"github.com/carechat/server/internal/repo"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash, password string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is 0.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Matches(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CredentialVerifier checks an email and password pair.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
}

// PasswordCredentials verifies local accounts against their stored bcrypt hash.
type PasswordCredentials struct {
	accounts repo.AccountRepo
	hasher   PasswordHasher
}

// NewPasswordCredentials creates a CredentialVerifier backed by accounts.
func NewPasswordCredentials(accounts repo.AccountRepo, hasher PasswordHasher) *PasswordCredentials {
	return &PasswordCredentials{accounts: accounts, hasher: hasher}
}

// Authenticate returns ErrBadCredentials for an unknown email and a wrong password alike.
func (c *PasswordCredentials) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := c.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !c.hasher.Matches(account.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return account, nil
}
