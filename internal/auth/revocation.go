package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/carechat/server/internal/ephemeral"
)

const (
	blacklistPrefix = "blacklist:"
	blacklistMarker = "1"
)

// RevocationList marks individual access tokens as no longer honoured until they
// would have expired anyway.
type RevocationList struct {
	store ephemeral.Store
}

// NewRevocationList creates a revocation list on store.
func NewRevocationList(store ephemeral.Store) *RevocationList {
	return &RevocationList{store: store}
}

// Blacklist records token for ttl. A token with nothing left to live is skipped.
func (r *RevocationList) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.store.SetWithTTL(ctx, blacklistPrefix+token, blacklistMarker, ttl); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether token has been revoked.
func (r *RevocationList) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	ok, err := r.store.Exists(ctx, blacklistPrefix+token)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return ok, nil
}
