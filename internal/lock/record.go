package lock

import "time"

// UnlockState replaces the independent requested/approved flags with one value,
// so a record can never be "approved but never requested".
type UnlockState string

const (
	UnlockNone     UnlockState = "none"
	UnlockPending  UnlockState = "pending"
	UnlockApproved UnlockState = "approved"
	UnlockDenied   UnlockState = "denied"

	// UnlockApprovedDenied is an approval whose request was later denied. The
	// approval and its cooldown still stand; only the request is gone.
	UnlockApprovedDenied UnlockState = "approved_denied"
)

// Record is the lock related subset of a user record.
type Record struct {
	Enabled   bool
	Duration  *Duration
	StartedAt *time.Time
	ExpiresAt *time.Time

	Unlock        UnlockState
	RequestedAt   *time.Time
	RequestReason *string
	ApprovedAt    *time.Time
	EffectiveAt   *time.Time
	ApprovedBy    *uint
	DeniedReason  *string
}

// UnlockRequested mirrors the historical unlock_requested flag. An approved request
// still reports true: approval never cleared the flag.
func (r Record) UnlockRequested() bool {
	return r.Unlock == UnlockPending || r.Unlock == UnlockApproved
}

func (r Record) UnlockApproved() bool {
	return r.Unlock == UnlockApproved || r.Unlock == UnlockApprovedDenied
}

// Reset returns the record to its DISABLED defaults.
func (r *Record) Reset() {
	*r = Record{Unlock: UnlockNone}
}

func (r Record) state(now time.Time) State {
	if !r.Enabled {
		return StateDisabled
	}
	switch r.Unlock {
	case UnlockApproved, UnlockApprovedDenied:
		if r.EffectiveAt == nil || !now.Before(*r.EffectiveAt) {
			return StateApprovedReady
		}
		return StateApprovedCooling
	case UnlockPending:
		return StateUnlockRequested
	default:
		return StateLocked
	}
}
