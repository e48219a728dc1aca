package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser   Role = "USER"
	RoleDoctor Role = "DOCTOR"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// AuthProvider records how an account was created.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
)

// Account represents a registered identity
type Account struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Email        string       `gorm:"size:255;uniqueIndex;not null"`
	Username     string       `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string       `gorm:"size:100;not null;default:''"`
	Role         Role         `gorm:"size:16;not null"`
	AuthProvider AuthProvider `gorm:"size:16;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	UserDetail   *UserDetail   `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
	DoctorDetail *DoctorDetail `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

// UserDetail holds the profile fields of a USER or ADMIN account that the auth core reads.
type UserDetail struct {
	AccountID uuid.UUID `gorm:"type:uuid;primaryKey"`
	AvatarURL string    `gorm:"size:1024"`
	UpdatedAt time.Time
}

// DoctorDetail holds the profile fields of a DOCTOR account that the auth core reads.
type DoctorDetail struct {
	AccountID uuid.UUID `gorm:"type:uuid;primaryKey"`
	AvatarURL string    `gorm:"size:1024"`
	UpdatedAt time.Time
}

// DeviceKey binds an account and a client device to the device's current refresh token.
// Only the SHA-256 digest of the token is stored.
type DeviceKey struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_device_keys_account_device"`
	DeviceID         string    `gorm:"size:255;not null;uniqueIndex:idx_device_keys_account_device"`
	RefreshTokenHash string    `gorm:"size:64;not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
