package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carechat/server/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceKeyRepo defines the interface for per-device refresh token records
type DeviceKeyRepo interface {
	Upsert(ctx context.Context, accountID uuid.UUID, deviceID, refreshTokenHash string) (*model.DeviceKey, error)
	FindByRefreshTokenHash(ctx context.Context, refreshTokenHash string) (*model.DeviceKey, error)
	DeleteFor(ctx context.Context, accountID uuid.UUID, deviceID string) error
}

type deviceKeyRepo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDeviceKeyRepo creates a new DeviceKeyRepo instance
func NewDeviceKeyRepo(db *gorm.DB) DeviceKeyRepo {
	return &deviceKeyRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert stores refreshTokenHash as the current token of (accountID, deviceID).
// The unique index on the pair makes concurrent calls converge on one row.
func (r *deviceKeyRepo) Upsert(ctx context.Context, accountID uuid.UUID, deviceID, refreshTokenHash string) (*model.DeviceKey, error) {
	now := r.now()
	key := model.DeviceKey{
		ID:               uuid.New(),
		AccountID:        accountID,
		DeviceID:         deviceID,
		RefreshTokenHash: refreshTokenHash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"refresh_token_hash", "updated_at"}),
		}).Create(&key).Error
		if err != nil {
			return fmt.Errorf("failed to upsert device key: %w", err)
		}

		// the insert may have hit an existing row; read back the stored one
		var stored model.DeviceKey
		if err := tx.Where("account_id = ? AND device_id = ?", accountID, deviceID).First(&stored).Error; err != nil {
			return fmt.Errorf("failed to reload device key: %w", err)
		}
		key = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// FindByRefreshTokenHash returns the device key holding the given token digest
func (r *deviceKeyRepo) FindByRefreshTokenHash(ctx context.Context, refreshTokenHash string) (*model.DeviceKey, error) {
	var key model.DeviceKey
	err := r.db.WithContext(ctx).Where("refresh_token_hash = ?", refreshTokenHash).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("device key not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query device key: %w", err)
	}
	return &key, nil
}

// DeleteFor removes the pair's record. Deleting a missing pair is not an error.
func (r *deviceKeyRepo) DeleteFor(ctx context.Context, accountID uuid.UUID, deviceID string) error {
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND device_id = ?", accountID, deviceID).
		Delete(&model.DeviceKey{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete device key: %w", err)
	}
	return nil
}
