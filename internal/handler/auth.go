package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxFailedLogins = 5
	loginLockout    = 10 * time.Minute
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	DB         *gorm.DB
	JWTSecret  string
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
	Logger     *zap.Logger
}

func NewAuthHandler(db *gorm.DB, jwtSecret, issuer string, ttlHours, bcryptCost int, logger *zap.Logger) *AuthHandler {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &AuthHandler{
		DB:         db,
		JWTSecret:  jwtSecret,
		Issuer:     issuer,
		TokenTTL:   time.Duration(ttlHours) * time.Hour,
		BcryptCost: bcryptCost,
		Logger:     logger,
	}
}

// ---------- register ----------

type registerReq struct {
	Username             string  `json:"username" binding:"required"`
	Email                string  `json:"email" binding:"required"`
	Password             string  `json:"password" binding:"required"`
	GamblingWeeklyAmount float64 `json:"gambling_weekly_amount"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "username, email and password are required", err))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	for _, err := range []error{
		util.ValidateUsername(req.Username),
		util.ValidateEmail(req.Email),
		util.ValidatePassword(req.Password),
		util.ValidateWeeklyAmount(req.GamblingWeeklyAmount),
	} {
		if err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
			return
		}
	}

	var count int64
	if err := h.DB.Model(&models.User{}).
		Where("LOWER(email) = ? OR LOWER(username) = LOWER(?)", req.Email, req.Username).
		Count(&count).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to query users"))
		return
	}
	if count > 0 {
		util.Fail(c, apperr.New(apperr.ErrConflict, "Email or username already registered", nil))
		return
	}

	hash, err := util.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to hash password"))
		return
	}

	user := models.User{
		Username:             req.Username,
		Email:                req.Email,
		PasswordHash:         hash,
		DisplayName:          req.Username,
		Role:                 models.RoleUser,
		SobrietyStartDate:    time.Now().UTC(),
		GamblingWeeklyAmount: req.GamblingWeeklyAmount,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to create user"))
		return
	}

	token, expires, err := h.issueToken(c, &user)
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to issue token"))
		return
	}
	h.Logger.Info("user registered", zap.Uint("user_id", user.ID))

	util.Success(c, util.Response{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"user":       userView(&user),
	})
}

// ---------- login ----------

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "email and password are required", err))
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	badCredentials := apperr.New(apperr.ErrUnauthenticated, "Invalid credentials", nil)

	var user models.User
	if err := h.DB.Where("LOWER(email) = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Fail(c, badCredentials)
		} else {
			util.Fail(c, apperr.Wrap(err, "Failed to query user"))
		}
		return
	}

	now := time.Now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		util.Fail(c, apperr.New(apperr.ErrUnauthenticated, "Too many failed attempts, try again later", nil))
		return
	}

	if !util.CheckPassword(req.Password, user.PasswordHash) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxFailedLogins {
			until := now.Add(loginLockout)
			user.LockedUntil = &until
			user.FailedLoginAttempts = 0
		}
		if err := h.DB.Model(&user).Updates(map[string]interface{}{
			"failed_login_attempts": user.FailedLoginAttempts,
			"locked_until":          user.LockedUntil,
		}).Error; err != nil {
			h.Logger.Warn("record failed login", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		util.Fail(c, badCredentials)
		return
	}

	updates := map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
		"last_login_ip":         c.ClientIP(),
	}
	// logging in during the deletion buffer restores the account
	if user.DeletedAt != nil {
		if user.DeletePermanentlyAt == nil || !now.Before(*user.DeletePermanentlyAt) {
			util.Fail(c, apperr.New(apperr.ErrUnauthenticated, "Account has been deleted", nil))
			return
		}
		updates["deleted_at"] = nil
		updates["delete_permanently_at"] = nil
		user.DeletedAt = nil
		user.DeletePermanentlyAt = nil
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to update user"))
		return
	}

	token, expires, err := h.issueToken(c, &user)
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to issue token"))
		return
	}

	util.Success(c, util.Response{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"user":       userView(&user),
	})
}

// Logout revokes the session behind the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if sid := middleware.SessionID(c); sid != "" {
		if err := h.DB.Model(&models.Session{}).
			Where("id = ? AND user_id = ?", sid, user.ID).
			Update("revoked", true).Error; err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to revoke session"))
			return
		}
	}
	util.Success(c, util.Response{"message": "Logged out"})
}

func (h *AuthHandler) issueToken(c *gin.Context, user *models.User) (string, time.Time, error) {
	sess := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.TokenTTL),
		IP:        c.ClientIP(),
	}
	if err := h.DB.Create(&sess).Error; err != nil {
		return "", time.Time{}, err
	}
	return util.GenerateToken(util.TokenOptions{
		Secret:    h.JWTSecret,
		Issuer:    h.Issuer,
		TTL:       h.TokenTTL,
		SessionID: sess.ID,
	}, user.ID, user.Role)
}

// revokeSessions invalidates every session of the user except keep.
func revokeSessions(db *gorm.DB, userID uint, keep string) error {
	q := db.Model(&models.Session{}).Where("user_id = ? AND revoked = ?", userID, false)
	if keep != "" {
		q = q.Where("id <> ?", keep)
	}
	return q.Update("revoked", true).Error
}
