package lock

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNotLocked             = errors.New("recovery mode is not enabled")
	ErrRequestAlreadyPending = errors.New("an unlock request is already pending")
	ErrNoPendingRequest      = errors.New("no pending unlock request")
	ErrUnlockNotApproved     = errors.New("unlock has not been approved")
	ErrCooldownActive        = errors.New("unlock cooldown is still active")
	ErrNotFound              = errors.New("user not found")
)

// CooldownError is returned by Disable before the effective time. It matches
// ErrCooldownActive with errors.Is.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldownActive, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// RemainingSeconds rounds up so a caller never sees 0 while still blocked.
func (e *CooldownError) RemainingSeconds() int64 {
	s := int64(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		s++
	}
	return s
}
