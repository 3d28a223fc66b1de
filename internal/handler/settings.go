package handler

import (
	"errors"
	"net/url"
	"strings"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsHandler struct {
	DB *gorm.DB
}

func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{DB: db}
}

func (h *SettingsHandler) DiscordLink(c *gin.Context) {
	var s models.AppSettings
	err := h.DB.First(&s, "id = ?", models.SettingsID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		util.Fail(c, apperr.Wrap(err, "Failed to load settings"))
		return
	}
	util.Success(c, util.Response{"discord_link": s.DiscordLink})
}

type discordLinkReq struct {
	DiscordLink string `json:"discord_link"`
}

// UpdateDiscordLink accepts ?discord_link= or a JSON body. Admin only.
func (h *SettingsHandler) UpdateDiscordLink(c *gin.Context) {
	link := c.Query("discord_link")
	if link == "" {
		var req discordLinkReq
		_ = c.ShouldBindJSON(&req)
		link = req.DiscordLink
	}
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if link == "" || err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "discord_link must be an http(s) URL", err))
		return
	}

	s := models.AppSettings{ID: models.SettingsID, DiscordLink: link}
	if err := h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"discord_link", "updated_at"}),
	}).Create(&s).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to save settings"))
		return
	}
	util.Success(c, util.Response{
		"message":      "Discord link updated",
		"discord_link": link,
	})
}
