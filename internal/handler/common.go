package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// currentUser writes a 401 and returns false when the request is anonymous.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Fail(c, apperr.New(apperr.ErrUnauthenticated, "Not authenticated", nil))
		return nil, false
	}
	return user, true
}

func pageParams(c *gin.Context, defSize int) (page, size, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defSize)))
	if size <= 0 || size > 100 {
		size = defSize
	}
	return page, size, (page - 1) * size
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Invalid "+name, err))
		return 0, false
	}
	return uint(id), true
}

// lockError translates controller errors into the HTTP taxonomy.
func lockError(err error) error {
	var cd *lock.CooldownError
	switch {
	case errors.As(err, &cd):
		return apperr.New(apperr.ErrCooldownActive,
			"Cooldown active. Changes take effect in "+formatRemaining(cd.Remaining)+".", err).
			WithDetail("remaining_seconds", cd.RemainingSeconds())
	case errors.Is(err, lock.ErrInvalidArgument):
		return apperr.New(apperr.ErrInvalidArgument, invalidArgumentMessage(err), err)
	case errors.Is(err, lock.ErrNotLocked):
		return apperr.New(apperr.ErrNotLocked, "Recovery mode is not enabled", err)
	case errors.Is(err, lock.ErrRequestAlreadyPending):
		return apperr.New(apperr.ErrRequestAlreadyPending, "Unlock request already pending", err)
	case errors.Is(err, lock.ErrNoPendingRequest):
		return apperr.New(apperr.ErrNoPendingRequest, "No pending unlock request", err)
	case errors.Is(err, lock.ErrUnlockNotApproved):
		return apperr.New(apperr.ErrUnlockNotApproved, "Unlock not approved by admin yet", err)
	case errors.Is(err, lock.ErrNotFound):
		return apperr.New(apperr.ErrNotFound, "User not found", err)
	default:
		return apperr.Wrap(err, "Lock operation failed")
	}
}

func invalidArgumentMessage(err error) string {
	msg := err.Error()
	prefix := lock.ErrInvalidArgument.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// formatRemaining renders a duration as "Xh Ym", rounding minutes up.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// publish is best effort: a failed notification never fails the request.
func publish(ctx context.Context, sink notify.Sink, logger *zap.Logger, typ string, userID uint, data interface{}) {
	if sink == nil {
		return
	}
	ev, err := notify.NewEvent(typ, userID, data)
	if err != nil {
		logger.Warn("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := sink.Publish(ctx, ev); err != nil {
		logger.Warn("publish event", zap.String("type", typ), zap.Uint("user_id", userID), zap.Error(err))
	}
}
