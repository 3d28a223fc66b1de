package handler

import (
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBlockReason = "Admin blocked"
	maxDenyReason      = 500
)

// AdminHandler serves the admin console. Routes are guarded by AdminOnly.
type AdminHandler struct {
	DB     *gorm.DB
	Ctrl   *lock.Controller
	Sink   notify.Sink
	Logger *zap.Logger
}

func NewAdminHandler(db *gorm.DB, ctrl *lock.Controller, sink notify.Sink, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{DB: db, Ctrl: ctrl, Sink: sink, Logger: logger}
}

// ---------- users ----------

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, size, offset := pageParams(c, 50)
	q := h.DB.Model(&models.User{})
	if kw := strings.TrimSpace(c.Query("q")); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to count users"))
		return
	}
	var users []models.User
	if err := q.Order("id").Limit(size).Offset(offset).Find(&users).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load users"))
		return
	}

	items := make([]gin.H, 0, len(users))
	for i := range users {
		v := userView(&users[i])
		v["blocked_reason"] = users[i].BlockedReason
		v["unlock_state"] = users[i].UnlockState
		items = append(items, v)
	}
	util.Success(c, util.Response{"users": items, "total": total, "page": page, "size": size})
}

func (h *AdminHandler) BlockUser(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" {
		reason = defaultBlockReason
	}
	res := h.DB.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_blocked":       true,
		"blocked_reason":   reason,
		"blocked_by_admin": admin.ID,
	})
	if res.Error != nil {
		util.Fail(c, apperr.Wrap(res.Error, "Failed to block user"))
		return
	}
	if res.RowsAffected == 0 {
		util.Fail(c, apperr.New(apperr.ErrNotFound, "User not found", nil))
		return
	}
	h.Logger.Info("user blocked", zap.Uint("user_id", id), zap.Uint("admin_id", admin.ID))
	util.Success(c, util.Response{"message": "User has been blocked", "user_id": id})
}

func (h *AdminHandler) UnblockUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res := h.DB.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_blocked":       false,
		"blocked_reason":   "",
		"blocked_by_admin": nil,
	})
	if res.Error != nil {
		util.Fail(c, apperr.Wrap(res.Error, "Failed to unblock user"))
		return
	}
	if res.RowsAffected == 0 {
		util.Fail(c, apperr.New(apperr.ErrNotFound, "User not found", nil))
		return
	}
	util.Success(c, util.Response{"message": "User has been unblocked", "user_id": id})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	counts := []struct {
		key   string
		model interface{}
		where string
		args  []interface{}
	}{
		{"total_users", &models.User{}, "", nil},
		{"active_subscriptions", &models.User{}, "subscription_status = ?", []interface{}{"active"}},
		{"blocked_users", &models.User{}, "is_blocked = ?", []interface{}{true}},
		{"recovery_mode_users", &models.User{}, "recovery_mode_enabled = ?", []interface{}{true}},
		{"pending_unlock_requests", &models.User{}, "unlock_state = ?", []interface{}{string(lock.UnlockPending)}},
		{"total_messages", &models.ChatMessage{}, "", nil},
	}

	resp := util.Response{}
	for _, q := range counts {
		db := h.DB.Model(q.model)
		if q.where != "" {
			db = db.Where(q.where, q.args...)
		}
		var n int64
		if err := db.Count(&n).Error; err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to load stats"))
			return
		}
		resp[q.key] = n
	}
	util.Success(c, resp)
}

// ---------- unlock review ----------

type pendingRequestResp struct {
	UserID       uint   `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	LockDuration string `json:"lock_duration"`
	Reason       string `json:"reason"`
	RequestedAt  string `json:"requested_at"`
}

func (h *AdminHandler) ListUnlockRequests(c *gin.Context) {
	pending, err := h.Ctrl.ListPending(c.Request.Context())
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	items := make([]pendingRequestResp, 0, len(pending))
	for _, p := range pending {
		items = append(items, pendingRequestResp{
			UserID:       p.UserID,
			Username:     p.Username,
			Email:        p.Email,
			LockDuration: p.LockDuration,
			Reason:       p.Reason,
			RequestedAt:  p.RequestedAt.UTC().Format(lock.TimeFormat),
		})
	}
	util.Success(c, util.Response{
		"requests":         items,
		"cooldown_seconds": int64(h.Ctrl.Cooldown() / time.Second),
	})
}

func (h *AdminHandler) ApproveUnlock(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	st, err := h.Ctrl.ApproveUnlock(c.Request.Context(), id, admin.ID)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	publish(c.Request.Context(), h.Sink, h.Logger, notify.EventUnlockApproved, id, st)

	util.Success(c, util.Response{
		"message": "Unlock approved. It takes effect after the cooldown.",
		"status":  st,
	})
}

type denyUnlockReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) DenyUnlock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req denyUnlockReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Invalid request body", err))
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if err := util.ValidateReason(reason, 0, maxDenyReason); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
		return
	}

	st, err := h.Ctrl.DenyUnlock(c.Request.Context(), id, reason)
	if err != nil {
		util.Fail(c, lockError(err))
		return
	}
	publish(c.Request.Context(), h.Sink, h.Logger, notify.EventUnlockDenied, id, st)

	util.Success(c, util.Response{
		"message": "Unlock request denied",
		"status":  st,
	})
}
