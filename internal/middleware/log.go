package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const auditBodyLimit = 2000

// bodies of these paths carry secrets and are never logged
var auditSkipBody = []string{"/api/auth/", "/api/profile/password"}

// AuditMiddleware stores one AuditLog row per authenticated request. Path and
// action are encrypted with encryptKey when one is configured.
func AuditMiddleware(db *gorm.DB, encryptKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		var bodyBytes []byte
		if c.Request.Body != nil && !skipBody(path) {
			bodyBytes, _ = io.ReadAll(io.LimitReader(c.Request.Body, auditBodyLimit+1))
			rest, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), bytes.NewReader(rest)))
		}

		c.Next()

		user, ok := CurrentUser(c)
		if !ok {
			return
		}

		action := c.Request.Method + " " + path
		if len(bodyBytes) > 0 && len(bodyBytes) <= auditBodyLimit {
			action += " " + string(bodyBytes)
		}

		encPath, err := util.EncryptString(encryptKey, path)
		if err != nil {
			logger.Warn("encrypt audit path", zap.Error(err))
			return
		}
		encAction, err := util.EncryptString(encryptKey, action)
		if err != nil {
			logger.Warn("encrypt audit action", zap.Error(err))
			return
		}

		userID := user.ID
		entry := models.AuditLog{
			UserID:    &userID,
			PathEnc:   encPath,
			Method:    c.Request.Method,
			ActionEnc: encAction,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if err := db.WithContext(c.Request.Context()).Create(&entry).Error; err != nil {
			logger.Warn("write audit log", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
}

func skipBody(path string) bool {
	for _, p := range auditSkipBody {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
