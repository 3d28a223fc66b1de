package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/zachsimson/Lockedin/internal/models"

	"gorm.io/gorm"
)

// GormStore keeps lock records as columns of the users table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID uint) (Record, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load lock record: %w", err)
	}
	return RecordFromUser(&u), nil
}

func (s *GormStore) Update(ctx context.Context, userID uint, r Record) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(columns(r))
	if res.Error != nil {
		return fmt.Errorf("save lock record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListPending(ctx context.Context) ([]PendingRequest, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("unlock_state = ?", string(UnlockPending)).
		Order("unlock_requested_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list pending unlock requests: %w", err)
	}

	out := make([]PendingRequest, 0, len(users))
	for _, u := range users {
		p := PendingRequest{
			UserID:   u.ID,
			Username: u.Username,
			Email:    u.Email,
		}
		if u.LockDuration != nil {
			p.LockDuration = *u.LockDuration
		}
		if u.UnlockRequestReason != nil {
			p.Reason = *u.UnlockRequestReason
		}
		if u.UnlockRequestedAt != nil {
			p.RequestedAt = u.UnlockRequestedAt.UTC()
		}
		out = append(out, p)
	}
	return out, nil
}

// RecordFromUser extracts the lock fields of u.
func RecordFromUser(u *models.User) Record {
	r := Record{
		Enabled:       u.RecoveryModeEnabled,
		StartedAt:     u.LockStartedAt,
		ExpiresAt:     u.LockExpiresAt,
		Unlock:        UnlockState(u.UnlockState),
		RequestedAt:   u.UnlockRequestedAt,
		RequestReason: u.UnlockRequestReason,
		ApprovedAt:    u.UnlockApprovedAt,
		EffectiveAt:   u.UnlockEffectiveAt,
		ApprovedBy:    u.UnlockApprovedBy,
		DeniedReason:  u.UnlockDeniedReason,
	}
	if r.Unlock == "" {
		r.Unlock = UnlockNone
	}
	if u.LockDuration != nil {
		d := Duration(*u.LockDuration)
		r.Duration = &d
	}
	return r
}

// columns uses a map so nil pointers are written as NULL instead of being skipped.
func columns(r Record) map[string]interface{} {
	var duration *string
	if r.Duration != nil {
		d := r.Duration.String()
		duration = &d
	}
	unlock := r.Unlock
	if unlock == "" {
		unlock = UnlockNone
	}
	return map[string]interface{}{
		"recovery_mode_enabled": r.Enabled,
		"lock_duration":         duration,
		"lock_started_at":       r.StartedAt,
		"lock_expires_at":       r.ExpiresAt,
		"unlock_state":          string(unlock),
		"unlock_requested_at":   r.RequestedAt,
		"unlock_request_reason": r.RequestReason,
		"unlock_approved_at":    r.ApprovedAt,
		"unlock_effective_at":   r.EffectiveAt,
		"unlock_approved_by":    r.ApprovedBy,
		"unlock_denied_reason":  r.DeniedReason,
	}
}
