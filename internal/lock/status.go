package lock

import "time"

// State is the computed position of a record in the lock state machine.
type State string

const (
	StateDisabled        State = "DISABLED"
	StateLocked          State = "LOCKED"
	StateUnlockRequested State = "LOCKED_UNLOCK_REQUESTED"
	StateApprovedCooling State = "LOCKED_UNLOCK_APPROVED_COOLING"
	StateApprovedReady   State = "LOCKED_UNLOCK_APPROVED_READY"
)

// Status is the external projection of a lock record.
type Status struct {
	RecoveryModeEnabled      bool    `json:"recovery_mode_enabled"`
	LockDuration             *string `json:"lock_duration"`
	LockStartedAt            *string `json:"lock_started_at"`
	LockExpiresAt            *string `json:"lock_expires_at"`
	UnlockRequested          bool    `json:"unlock_requested"`
	UnlockRequestedAt        *string `json:"unlock_requested_at"`
	UnlockRequestReason      *string `json:"unlock_request_reason"`
	UnlockApproved           bool    `json:"unlock_approved"`
	UnlockApprovedAt         *string `json:"unlock_approved_at"`
	UnlockEffectiveAt        *string `json:"unlock_effective_at"`
	UnlockDeniedReason       *string `json:"unlock_denied_reason"`
	CooldownRemainingSeconds *int64  `json:"cooldown_remaining_seconds"`
	CanDisable               bool    `json:"can_disable"`
	State                    State   `json:"state"`
}

// Project computes the status of r at now. It never mutates r.
func Project(r Record, now time.Time) Status {
	s := Status{
		RecoveryModeEnabled: r.Enabled,
		LockStartedAt:       formatTime(r.StartedAt),
		LockExpiresAt:       formatTime(r.ExpiresAt),
		UnlockRequested:     r.UnlockRequested(),
		UnlockRequestedAt:   formatTime(r.RequestedAt),
		UnlockRequestReason: copyString(r.RequestReason),
		UnlockApproved:      r.UnlockApproved(),
		UnlockApprovedAt:    formatTime(r.ApprovedAt),
		UnlockEffectiveAt:   formatTime(r.EffectiveAt),
		UnlockDeniedReason:  copyString(r.DeniedReason),
		State:               r.state(now),
	}
	if r.Duration != nil {
		d := r.Duration.String()
		s.LockDuration = &d
	}

	if r.UnlockApproved() {
		if r.EffectiveAt != nil {
			remaining := int64(r.EffectiveAt.Sub(now) / time.Second)
			if remaining < 0 {
				remaining = 0
			}
			s.CooldownRemainingSeconds = &remaining
		}
		s.CanDisable = r.EffectiveAt == nil || !now.Before(*r.EffectiveAt)
	}
	return s
}

// TimeFormat is the canonical textual form of every timestamp in a Status.
const TimeFormat = time.RFC3339

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(TimeFormat)
	return &s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
