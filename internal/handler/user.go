package handler

import (
	"time"

	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
)

func userView(u *models.User) gin.H {
	return gin.H{
		"id":                    u.ID,
		"username":              u.Username,
		"email":                 u.Email,
		"display_name":          u.DisplayName,
		"role":                  u.Role,
		"subscription_status":   u.SubscriptionStatus,
		"is_blocked":            u.IsBlocked,
		"blocking_enabled":      u.BlockingEnabled,
		"recovery_mode_enabled": u.RecoveryModeEnabled,
		"sobriety_start_date":   u.SobrietyStartDate.UTC().Format(time.RFC3339),
		"created_at":            u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GetMe returns the current user. Must run after AuthMiddleware.
func GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{"user": userView(user)})
}
