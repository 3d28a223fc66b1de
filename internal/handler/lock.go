package handler

import (
	"math"
	"strings"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/metrics"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/ratelimit"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LockHandler serves the recovery mode endpoints under /api/vpn.
type LockHandler struct {
	Ctrl      *lock.Controller
	Sink      notify.Sink
	Limiter   *ratelimit.Limiter
	ReasonMin int
	ReasonMax int
	Logger    *zap.Logger
}

func NewLockHandler(ctrl *lock.Controller, sink notify.Sink, limiter *ratelimit.Limiter, reasonMin, reasonMax int, logger *zap.Logger) *LockHandler {
	if reasonMin <= 0 {
		reasonMin = lock.DefaultReasonMin
	}
	if reasonMax < reasonMin {
		reasonMax = lock.DefaultReasonMax
	}
	return &LockHandler{
		Ctrl:      ctrl,
		Sink:      sink,
		Limiter:   limiter,
		ReasonMin: reasonMin,
		ReasonMax: reasonMax,
		Logger:    logger,
	}
}

type enableLockReq struct {
	LockDuration string `json:"lock_duration" binding:"required"`
}

type requestUnlockReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *LockHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	st, err := h.Ctrl.GetStatus(c.Request.Context(), user.ID)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	util.Success(c, st)
}

func (h *LockHandler) Enable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req enableLockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "lock_duration is required", err))
		return
	}
	d, err := lock.ParseDuration(strings.TrimSpace(req.LockDuration))
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}

	st, err := h.Ctrl.Enable(c.Request.Context(), user.ID, d)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	publish(c.Request.Context(), h.Sink, h.Logger, notify.EventLockEnabled, user.ID, st)

	util.Success(c, util.Response{
		"message": "Recovery mode enabled",
		"status":  st,
	})
}

func (h *LockHandler) RequestUnlock(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req requestUnlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "reason is required", err))
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if err := util.ValidateReason(reason, h.ReasonMin, h.ReasonMax); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
		return
	}

	allowed, wait, err := h.Limiter.Allow(c.Request.Context(), ratelimit.UserKey("unlock_request", user.ID))
	if err != nil {
		// limiter outage must not lock users out of the workflow
		h.Logger.Warn("unlock rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		metrics.UnlockRateLimitedTotal.Inc()
		util.Fail(c, apperr.New(apperr.ErrRateLimited, "Too many unlock requests, try again later", nil).
			WithDetail("retry_after_seconds", int64(math.Ceil(wait.Seconds()))))
		return
	}

	st, err := h.Ctrl.RequestUnlock(c.Request.Context(), user.ID, reason)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	publish(c.Request.Context(), h.Sink, h.Logger, notify.EventUnlockRequested, user.ID, st)

	util.Success(c, util.Response{
		"message": "Unlock request submitted. An admin will review it.",
		"status":  st,
	})
}

func (h *LockHandler) Disable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	st, err := h.Ctrl.Disable(c.Request.Context(), user.ID)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	publish(c.Request.Context(), h.Sink, h.Logger, notify.EventLockDisabled, user.ID, st)

	util.Success(c, util.Response{
		"message": "Recovery mode disabled",
		"status":  st,
	})
}
