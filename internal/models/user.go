package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents application user.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	DisplayName  string `gorm:"size:64"`
	Role         string `gorm:"size:16;not null;default:user"`
	AvatarURL    string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	FailedLoginAttempts int        `gorm:"default:0"`
	LockedUntil         *time.Time `gorm:"index"` // login lockout after repeated failures
	LastLoginAt         *time.Time
	LastLoginIP         string `gorm:"size:64"`

	SubscriptionStatus string `gorm:"size:16;not null;default:trial;index"`

	// recovery tracker
	SobrietyStartDate    time.Time
	LastGambledAt        *time.Time
	GamblingWeeklyAmount float64 `gorm:"default:0"`

	// site blocking + community moderation
	BlockingEnabled bool   `gorm:"not null;default:false"`
	IsBlocked       bool   `gorm:"not null;default:false;index"`
	BlockedReason   string `gorm:"size:255"`
	BlockedByAdmin  *uint

	// recovery mode lock, written only through internal/lock
	RecoveryModeEnabled bool    `gorm:"not null;default:false"`
	LockDuration        *string `gorm:"size:16"`
	LockStartedAt       *time.Time
	LockExpiresAt       *time.Time
	UnlockState         string `gorm:"size:16;not null;default:none;index"`
	UnlockRequestedAt   *time.Time
	UnlockRequestReason *string `gorm:"size:2048"`
	UnlockApprovedAt    *time.Time
	UnlockEffectiveAt   *time.Time
	UnlockApprovedBy    *uint
	UnlockDeniedReason  *string `gorm:"size:2048"`

	// account deletion with a 7 day buffer; DeletePermanentlyAt = DeletedAt + 7 days
	DeletedAt           *time.Time `gorm:"index"`
	DeletePermanentlyAt *time.Time
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
