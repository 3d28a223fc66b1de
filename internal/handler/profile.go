package handler

import (
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const deletionBuffer = 7 * 24 * time.Hour

type UpdateProfileReq struct {
	DisplayName string `json:"display_name" binding:"max=64"`
}

type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,max=128"`
}

func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req UpdateProfileReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "display_name must be at most 64 characters", err))
			return
		}
		req.DisplayName = strings.TrimSpace(req.DisplayName)

		if err := db.Model(user).Update("display_name", req.DisplayName).Error; err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to update profile"))
			return
		}
		user.DisplayName = req.DisplayName

		util.Success(c, util.Response{"user": userView(user)})
	}
}

// ChangePassword keeps the current session and revokes every other one.
func ChangePassword(db *gorm.DB, bcryptCost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req ChangePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "old_password and new_password are required", err))
			return
		}
		if !util.CheckPassword(req.OldPassword, user.PasswordHash) {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Old password is incorrect", nil))
			return
		}
		if err := util.ValidatePassword(req.NewPassword); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
			return
		}

		hash, err := util.HashPassword(req.NewPassword, bcryptCost)
		if err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to hash password"))
			return
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Update("password_hash", hash).Error; err != nil {
				return err
			}
			return revokeSessions(tx, user.ID, middleware.SessionID(c))
		})
		if err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to update password"))
			return
		}

		util.Success(c, util.Response{
			"message": "Password changed, other sessions have been signed out",
		})
	}
}

// DeleteAccount schedules deletion. Logging in again within the buffer restores the account.
func DeleteAccount(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if user.DeletedAt != nil {
			util.Fail(c, apperr.New(apperr.ErrConflict, "Account is already scheduled for deletion", nil))
			return
		}

		now := time.Now().UTC()
		permanentlyAt := now.Add(deletionBuffer)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Updates(map[string]interface{}{
				"deleted_at":            now,
				"delete_permanently_at": permanentlyAt,
			}).Error; err != nil {
				return err
			}
			return revokeSessions(tx, user.ID, "")
		})
		if err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to delete account"))
			return
		}

		util.Success(c, util.Response{
			"message":               "Account scheduled for deletion",
			"deleted_at":            now.Format(time.RFC3339),
			"delete_permanently_at": permanentlyAt.Format(time.RFC3339),
			"tip":                   "Log in within 7 days to restore the account",
		})
	}
}
