package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/carechat/server/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, account *model.Account) error
	CreateFederated(ctx context.Context, account *model.Account, avatarURL string) error
	EnsureUserDetail(ctx context.Context, accountID uuid.UUID, avatarURL string) (*model.UserDetail, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type accountRepo struct {
	db *gorm.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *gorm.DB) AccountRepo {
	return &accountRepo{db: db}
}

// FindByID loads an account with its detail rows
func (r *accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail loads an account with its detail rows
func (r *accountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *accountRepo) findOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Preload("UserDetail").
		Preload("DoctorDetail").
		Where(query, arg).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}

func (r *accountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *accountRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

func (r *accountRepo) exists(ctx context.Context, query string, arg any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Account{}).Where(query, arg).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new account. A unique violation on email or username yields ErrDuplicate.
func (r *accountRepo) Create(ctx context.Context, account *model.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit("UserDetail", "DoctorDetail").Create(account).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("failed to insert account: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// CreateFederated inserts an account and its user detail in one transaction.
func (r *accountRepo) CreateFederated(ctx context.Context, account *model.Account, avatarURL string) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("UserDetail", "DoctorDetail").Create(account).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("failed to insert account: %w", ErrDuplicate)
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}
		detail := &model.UserDetail{AccountID: account.ID, AvatarURL: avatarURL}
		if err := tx.Create(detail).Error; err != nil {
			return fmt.Errorf("failed to insert user detail: %w", err)
		}
		account.UserDetail = detail
		return nil
	})
}

// EnsureUserDetail inserts the account's user detail unless one exists and returns the stored row.
// An existing avatar is left as is.
func (r *accountRepo) EnsureUserDetail(ctx context.Context, accountID uuid.UUID, avatarURL string) (*model.UserDetail, error) {
	detail := &model.UserDetail{AccountID: accountID, AvatarURL: avatarURL}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(detail).Error
	if err != nil {
		return nil, fmt.Errorf("failed to insert user detail: %w", err)
	}

	var stored model.UserDetail
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load user detail: %w", err)
	}
	return &stored, nil
}

// UpdatePasswordHash replaces the stored bcrypt hash
func (r *accountRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account not found: %w", ErrNotFound)
	}
	return nil
}
