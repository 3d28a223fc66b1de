package handler

import (
	"strconv"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type ChatHandler struct {
	DB *gorm.DB
}

func NewChatHandler(db *gorm.DB) *ChatHandler {
	return &ChatHandler{DB: db}
}

// History returns the latest messages of a room in chronological order.
func (h *ChatHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "limit must be a positive integer", err))
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	room := c.DefaultQuery("room", models.CommunityRoom)

	var msgs []models.ChatMessage
	if err := h.DB.Where("room = ?", room).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load messages"))
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	util.Success(c, util.Response{"messages": msgs})
}
