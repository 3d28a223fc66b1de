package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/zachsimson/Lockedin/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultCooldown  = 24 * time.Hour
	DefaultReasonMin = 10
	DefaultReasonMax = 500
)

type Options struct {
	Cooldown  time.Duration
	ReasonMin int
	ReasonMax int
	Clock     Clock
	Logger    *zap.Logger
}

// Controller owns every transition of the recovery lock state machine.
// Mutating operations on the same user are serialized; different users
// proceed in parallel.
type Controller struct {
	store     Store
	clock     Clock
	cooldown  time.Duration
	reasonMin int
	reasonMax int
	locks     *keyedMutex
	logger    *zap.Logger
}

func NewController(store Store, opts Options) *Controller {
	c := &Controller{
		store:     store,
		clock:     opts.Clock,
		cooldown:  opts.Cooldown,
		reasonMin: opts.ReasonMin,
		reasonMax: opts.ReasonMax,
		locks:     newKeyedMutex(),
		logger:    opts.Logger,
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.cooldown < 0 {
		c.cooldown = DefaultCooldown
	}
	if c.reasonMin <= 0 {
		c.reasonMin = DefaultReasonMin
	}
	if c.reasonMax < c.reasonMin {
		c.reasonMax = DefaultReasonMax
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Cooldown is the delay between approval and the moment Disable succeeds.
func (c *Controller) Cooldown() time.Duration { return c.cooldown }

// Enable turns recovery mode on, replacing any previous lock and unlock state.
// Calling it while already enabled restarts the lock.
func (c *Controller) Enable(ctx context.Context, userID uint, d Duration) (Status, error) {
	if _, err := ParseDuration(string(d)); err != nil {
		observe("enable", err)
		return Status{}, err
	}
	return c.mutate(ctx, "enable", userID, func(r *Record, now time.Time) error {
		r.Reset()
		r.Enabled = true
		r.Duration = &d
		r.StartedAt = &now
		r.ExpiresAt = ExpiryOf(d, now)
		return nil
	})
}

// RequestUnlock opens an unlock request. A denied request may be followed by a
// new one; an approved request still counts as open. A request made after an
// approval was denied leaves that approval in place.
func (c *Controller) RequestUnlock(ctx context.Context, userID uint, reason string) (Status, error) {
	if err := c.validateReason(reason); err != nil {
		observe("request_unlock", err)
		return Status{}, err
	}
	return c.mutate(ctx, "request_unlock", userID, func(r *Record, now time.Time) error {
		if !r.Enabled {
			return ErrNotLocked
		}
		if r.UnlockRequested() {
			return ErrRequestAlreadyPending
		}
		if r.Unlock == UnlockApprovedDenied {
			r.Unlock = UnlockApproved
		} else {
			r.Unlock = UnlockPending
		}
		r.RequestedAt = &now
		r.RequestReason = &reason
		return nil
	})
}

// ApproveUnlock approves the open request and starts the cooldown. Approving an
// already approved request restarts the cooldown from now.
func (c *Controller) ApproveUnlock(ctx context.Context, userID, adminID uint) (Status, error) {
	return c.mutate(ctx, "approve_unlock", userID, func(r *Record, now time.Time) error {
		if !r.UnlockRequested() {
			return ErrNoPendingRequest
		}
		effective := now.Add(c.cooldown)
		r.Unlock = UnlockApproved
		r.ApprovedAt = &now
		r.EffectiveAt = &effective
		r.ApprovedBy = &adminID
		return nil
	})
}

// DenyUnlock closes the request and records the reason as given, empty
// included. It succeeds without a pending request. Approval fields and the
// lock itself are left alone, so an approval that is cooling down survives.
func (c *Controller) DenyUnlock(ctx context.Context, userID uint, reason string) (Status, error) {
	return c.mutate(ctx, "deny_unlock", userID, func(r *Record, _ time.Time) error {
		if r.UnlockApproved() {
			r.Unlock = UnlockApprovedDenied
		} else {
			r.Unlock = UnlockDenied
		}
		r.RequestedAt = nil
		r.RequestReason = nil
		r.DeniedReason = &reason
		return nil
	})
}

// Disable turns recovery mode off once an approved unlock has cooled down.
func (c *Controller) Disable(ctx context.Context, userID uint) (Status, error) {
	return c.mutate(ctx, "disable", userID, func(r *Record, now time.Time) error {
		if !r.Enabled {
			return ErrNotLocked
		}
		if !r.UnlockApproved() {
			return ErrUnlockNotApproved
		}
		if r.EffectiveAt != nil && now.Before(*r.EffectiveAt) {
			return &CooldownError{Remaining: r.EffectiveAt.Sub(now)}
		}
		r.Reset()
		return nil
	})
}

// GetStatus reads without taking the per-user lock.
func (c *Controller) GetStatus(ctx context.Context, userID uint) (Status, error) {
	r, err := c.store.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Project(r, c.clock.Now()), nil
}

func (c *Controller) ListPending(ctx context.Context) ([]PendingRequest, error) {
	return c.store.ListPending(ctx)
}

func (c *Controller) validateReason(reason string) error {
	n := utf8.RuneCountInString(reason)
	if n < c.reasonMin || n > c.reasonMax {
		return fmt.Errorf("%w: reason must be between %d and %d characters", ErrInvalidArgument, c.reasonMin, c.reasonMax)
	}
	return nil
}

// mutate runs one read-check-write cycle under the user's lock. The record is
// persisted only when fn succeeds.
func (c *Controller) mutate(ctx context.Context, op string, userID uint, fn func(r *Record, now time.Time) error) (Status, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	r, err := c.store.Get(ctx, userID)
	if err != nil {
		observe(op, err)
		return Status{}, err
	}

	now := c.clock.Now()
	if err := fn(&r, now); err != nil {
		observe(op, err)
		c.logger.Debug("lock transition rejected",
			zap.String("op", op),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return Status{}, err
	}

	if err := c.store.Update(ctx, userID, r); err != nil {
		observe(op, err)
		return Status{}, err
	}
	observe(op, nil)

	st := Project(r, now)
	c.logger.Info("lock transition",
		zap.String("op", op),
		zap.Uint("user_id", userID),
		zap.String("state", string(st.State)),
	)
	return st, nil
}

func observe(op string, err error) {
	metrics.LockTransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotLocked):
		return "not_locked"
	case errors.Is(err, ErrRequestAlreadyPending):
		return "already_pending"
	case errors.Is(err, ErrNoPendingRequest):
		return "no_pending_request"
	case errors.Is(err, ErrUnlockNotApproved):
		return "not_approved"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
