package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ctxUserKey    = "currentUser"
	ctxSessionKey = "sessionID"
	tokenCookie   = "lockedin_token"
)

// Authenticator resolves bearer tokens to users. A token is only valid while
// its session row exists, is not revoked and has not expired.
type Authenticator struct {
	secret string
	db     *gorm.DB
}

func NewAuthenticator(secret string, db *gorm.DB) *Authenticator {
	return &Authenticator{secret: secret, db: db}
}

func (a *Authenticator) UserFromToken(ctx context.Context, tokenStr string) (*models.User, error) {
	user, _, err := a.resolve(ctx, tokenStr)
	return user, err
}

func (a *Authenticator) resolve(ctx context.Context, tokenStr string) (*models.User, string, error) {
	if tokenStr == "" {
		return nil, "", apperr.New(apperr.ErrUnauthenticated, "Not authenticated", nil)
	}
	claims, err := util.ParseToken(a.secret, tokenStr)
	if err != nil {
		return nil, "", apperr.New(apperr.ErrUnauthenticated, "Invalid authentication credentials", err)
	}

	db := a.db.WithContext(ctx)
	if claims.ID != "" {
		var sess models.Session
		err := db.Where("id = ? AND user_id = ?", claims.ID, claims.UserID).First(&sess).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", apperr.New(apperr.ErrUnauthenticated, "Session not found", err)
			}
			return nil, "", apperr.New(apperr.ErrInternal, "Failed to load session", err)
		}
		if sess.Revoked || time.Now().After(sess.ExpiresAt) {
			return nil, "", apperr.New(apperr.ErrUnauthenticated, "Session expired, please log in again", nil)
		}
	}

	var user models.User
	if err := db.First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperr.New(apperr.ErrUnauthenticated, "User not found", err)
		}
		return nil, "", apperr.New(apperr.ErrInternal, "Failed to load user", err)
	}
	if user.DeletedAt != nil {
		return nil, "", apperr.New(apperr.ErrUnauthenticated, "Account is scheduled for deletion", nil)
	}
	return &user, claims.ID, nil
}

// AuthMiddleware puts the current user into the context. The token is read from
// the Authorization header, then ?token= (downloads), then a cookie.
func AuthMiddleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, sessionID, err := a.resolve(c.Request.Context(), tokenFrom(c))
		if err != nil {
			util.Fail(c, err)
			c.Abort()
			return
		}
		c.Set(ctxUserKey, user)
		c.Set(ctxSessionKey, sessionID)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin() {
			util.Fail(c, apperr.New(apperr.ErrUnauthorized, "Admin access required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func SessionID(c *gin.Context) string {
	return c.GetString(ctxSessionKey)
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if q := c.Query("token"); q != "" {
		return q
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil {
		return cookie
	}
	return ""
}
