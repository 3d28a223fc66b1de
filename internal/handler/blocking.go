package handler

import (
	"strconv"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type BlockingHandler struct {
	DB *gorm.DB
}

func NewBlockingHandler(db *gorm.DB) *BlockingHandler {
	return &BlockingHandler{DB: db}
}

// Domains returns the blocklist as a flat list and grouped by category.
func (h *BlockingHandler) Domains(c *gin.Context) {
	var rows []models.BlockedDomain
	if err := h.DB.Order("category, domain").Find(&rows).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load domains"))
		return
	}
	domains := make([]string, 0, len(rows))
	byCategory := make(map[string][]string)
	for _, r := range rows {
		domains = append(domains, r.Domain)
		byCategory[r.Category] = append(byCategory[r.Category], r.Domain)
	}
	util.Success(c, util.Response{
		"domains":    domains,
		"categories": byCategory,
	})
}

// Enable sets the blocking toggle from ?enabled=true|false.
func (h *BlockingHandler) Enable(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "enabled must be true or false", err))
		return
	}
	if err := h.DB.Model(user).Update("blocking_enabled", enabled).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to update blocking"))
		return
	}
	util.Success(c, util.Response{"blocking_enabled": enabled})
}

func (h *BlockingHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"blocking_enabled": user.BlockingEnabled,
		"is_blocked":       user.IsBlocked,
	})
}
