package router

import (
	"net/http"

	"github.com/zachsimson/Lockedin/internal/config"
	"github.com/zachsimson/Lockedin/internal/handler"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/ratelimit"
	"github.com/zachsimson/Lockedin/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the long lived components the routes are built from.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *zap.Logger
	Lock    *lock.Controller
	Sink    notify.Sink
	Limiter *ratelimit.Limiter
	Hub     *realtime.Hub
	Auth    *middleware.Authenticator
}

// SetupRouter configures the Gin engine and every API route.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	sink := d.Sink
	if sink == nil {
		sink = notify.Nop
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger), gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Hub != nil {
		r.GET("/ws", d.Hub.ServeWS)
	}

	api := r.Group("/api")
	api.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Lockedin API", "status": "ok"})
	})

	encKey := cfg.Security.EncryptionKey

	authHandler := handler.NewAuthHandler(d.DB, cfg.JWT.Secret, cfg.JWT.Issuer,
		cfg.JWT.ExpireHours, cfg.Security.BcryptCost, d.Logger)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(d.Auth),
		middleware.AuditMiddleware(d.DB, encKey, d.Logger),
	)

	protected.GET("/auth/me", handler.GetMe)
	protected.POST("/auth/logout", authHandler.Logout)

	protected.POST("/profile", handler.UpdateProfile(d.DB))
	protected.POST("/profile/password", handler.ChangePassword(d.DB, cfg.Security.BcryptCost))
	protected.POST("/profile/delete", handler.DeleteAccount(d.DB))

	recovery := handler.NewRecoveryHandler(d.DB, encKey)
	protected.GET("/recovery/stats", recovery.Stats)
	protected.POST("/recovery/relapse", recovery.Relapse)
	protected.POST("/recovery/gambling-history", recovery.AddHistory)
	protected.GET("/recovery/gambling-history", recovery.ListHistory)
	protected.GET("/recovery/export/csv", recovery.ExportCSV)
	protected.GET("/recovery/export/xlsx", recovery.ExportXLSX)
	protected.POST("/recovery/import/csv", recovery.ImportCSV)

	blocking := handler.NewBlockingHandler(d.DB)
	protected.GET("/blocking/domains", blocking.Domains)
	protected.POST("/blocking/enable", blocking.Enable)
	protected.GET("/blocking/status", blocking.Status)

	lockHandler := handler.NewLockHandler(d.Lock, sink, d.Limiter, cfg.Lock.ReasonMin, cfg.Lock.ReasonMax, d.Logger)
	protected.GET("/vpn/status", lockHandler.Status)
	protected.POST("/vpn/enable", lockHandler.Enable)
	protected.POST("/vpn/request-unlock", lockHandler.RequestUnlock)
	protected.POST("/vpn/disable", lockHandler.Disable)

	logHandler := handler.NewLogHandler(d.DB, encKey)
	protected.GET("/logs", logHandler.ListLogs)
	protected.GET("/vpn/history", logHandler.ListLockHistory)

	chat := handler.NewChatHandler(d.DB)
	protected.GET("/chat/history", chat.History)

	settings := handler.NewSettingsHandler(d.DB)
	protected.GET("/settings/discord-link", settings.DiscordLink)
	protected.PUT("/settings/discord-link", middleware.AdminOnly(), settings.UpdateDiscordLink)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminOnly())
	adminHandler := handler.NewAdminHandler(d.DB, d.Lock, sink, d.Logger)
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/block-user/:id", adminHandler.BlockUser)
	admin.POST("/unblock-user/:id", adminHandler.UnblockUser)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/unlock-requests", adminHandler.ListUnlockRequests)
	admin.POST("/unlock-requests/:id/approve", adminHandler.ApproveUnlock)
	admin.POST("/unlock-requests/:id/deny", adminHandler.DenyUnlock)
	admin.GET("/logs", logHandler.AdminListLogs)

	return r
}
