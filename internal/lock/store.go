package lock

import (
	"context"
	"time"
)

// Store is the user record storage the controller reads and writes.
// Update overwrites every lock field of the record (last writer wins).
type Store interface {
	Get(ctx context.Context, userID uint) (Record, error)
	Update(ctx context.Context, userID uint, r Record) error
	ListPending(ctx context.Context) ([]PendingRequest, error)
}

// PendingRequest is one row of the admin review queue.
type PendingRequest struct {
	UserID       uint      `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	LockDuration string    `json:"lock_duration"`
	Reason       string    `json:"reason"`
	RequestedAt  time.Time `json:"requested_at"`
}
