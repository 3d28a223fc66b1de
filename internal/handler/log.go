package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const lockPathPrefix = "/api/vpn/"

// LogHandler serves audit log queries.
type LogHandler struct {
	DB         *gorm.DB
	EncryptKey string
}

func NewLogHandler(db *gorm.DB, encryptKey string) *LogHandler {
	return &LogHandler{
		DB:         db,
		EncryptKey: encryptKey,
	}
}

type logResp struct {
	ID        uint   `json:"id"`
	UserID    *uint  `json:"user_id,omitempty"`
	Action    string `json:"action"`
	Path      string `json:"path"`
	Method    string `json:"method"`
	Status    int    `json:"status"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	CreatedAt string `json:"created_at"`
}

type decodedLog struct {
	row    *models.AuditLog
	path   string
	action string
}

func (h *LogHandler) decode(l *models.AuditLog) decodedLog {
	return decodedLog{
		row:    l,
		path:   util.DecryptString(h.EncryptKey, l.PathEnc),
		action: util.DecryptString(h.EncryptKey, l.ActionEnc),
	}
}

func (d decodedLog) resp() logResp {
	return logResp{
		ID:        d.row.ID,
		UserID:    d.row.UserID,
		Action:    d.action,
		Path:      d.path,
		Method:    d.row.Method,
		Status:    d.row.Status,
		IP:        d.row.IP,
		UserAgent: d.row.UserAgent,
		CreatedAt: d.row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// timeWindow applies start / end (YYYY-MM-DD, end inclusive).
func timeWindow(c *gin.Context, q *gorm.DB) (*gorm.DB, error) {
	if s := c.Query("start"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, "start must be YYYY-MM-DD", err)
		}
		q = q.Where("created_at >= ?", t)
	}
	if s := c.Query("end"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, "end must be YYYY-MM-DD", err)
		}
		q = q.Where("created_at < ?", t.Add(24*time.Hour))
	}
	return q, nil
}

// list pages through audit rows. Path and action are encrypted at rest, so a
// keyword filter (q) or a keep predicate is applied after decryption.
func (h *LogHandler) list(c *gin.Context, base *gorm.DB, keep func(decodedLog) bool) {
	base, err := timeWindow(c, base)
	if err != nil {
		util.Fail(c, err)
		return
	}
	page, size, offset := pageParams(c, 20)
	keyword := strings.ToLower(strings.TrimSpace(c.Query("q")))

	if keyword == "" && keep == nil {
		var total int64
		if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to count logs"))
			return
		}
		var rows []models.AuditLog
		if err := base.Order("created_at DESC, id DESC").Limit(size).Offset(offset).Find(&rows).Error; err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to load logs"))
			return
		}
		items := make([]logResp, 0, len(rows))
		for i := range rows {
			items = append(items, h.decode(&rows[i]).resp())
		}
		util.Success(c, util.Response{"items": items, "total": total, "page": page, "size": size})
		return
	}

	var rows []models.AuditLog
	if err := base.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load logs"))
		return
	}
	var matched []decodedLog
	for i := range rows {
		d := h.decode(&rows[i])
		if keep != nil && !keep(d) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(d.path), keyword) &&
			!strings.Contains(strings.ToLower(d.action), keyword) {
			continue
		}
		matched = append(matched, d)
	}

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + size
	if end > total {
		end = total
	}
	items := make([]logResp, 0, end-offset)
	for _, d := range matched[offset:end] {
		items = append(items, d.resp())
	}
	util.Success(c, util.Response{"items": items, "total": total, "page": page, "size": size})
}

// ListLogs lists the current user's own requests.
func (h *LogHandler) ListLogs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	h.list(c, h.DB.Model(&models.AuditLog{}).Where("user_id = ?", user.ID), nil)
}

// AdminListLogs lists every user's requests, optionally for one user_id.
func (h *LogHandler) AdminListLogs(c *gin.Context) {
	base := h.DB.Model(&models.AuditLog{})
	if s := c.Query("user_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Invalid user_id", err))
			return
		}
		base = base.Where("user_id = ?", id)
	}
	h.list(c, base, nil)
}

type lockHistoryResp struct {
	ID           uint   `json:"id"`
	Operation    string `json:"operation"`
	Succeeded    bool   `json:"succeeded"`
	Status       int    `json:"status"`
	LockDuration string `json:"lock_duration,omitempty"`
	Reason       string `json:"reason,omitempty"`
	IP           string `json:"ip"`
	CreatedAt    string `json:"created_at"`
}

// ListLockHistory lists the user's recovery mode changes: enable, unlock
// requests and disable attempts, successful or not.
func (h *LogHandler) ListLockHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	base, err := timeWindow(c, h.DB.Where("user_id = ? AND method = ?", user.ID, http.MethodPost))
	if err != nil {
		util.Fail(c, err)
		return
	}
	page, size, offset := pageParams(c, 50)

	var rows []models.AuditLog
	if err := base.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load logs"))
		return
	}

	var items []lockHistoryResp
	for i := range rows {
		d := h.decode(&rows[i])
		if !strings.HasPrefix(d.path, lockPathPrefix) {
			continue
		}
		item := lockHistoryResp{
			ID:        d.row.ID,
			Operation: strings.TrimPrefix(d.path, lockPathPrefix),
			Succeeded: d.row.Status < http.StatusBadRequest,
			Status:    d.row.Status,
			IP:        d.row.IP,
			CreatedAt: d.row.CreatedAt.UTC().Format(time.RFC3339),
		}
		// action is "METHOD path body"; the body carries duration or reason
		if start, end := strings.Index(d.action, "{"), strings.LastIndex(d.action, "}"); start >= 0 && end > start {
			var body map[string]interface{}
			if json.Unmarshal([]byte(d.action[start:end+1]), &body) == nil {
				item.LockDuration, _ = body["lock_duration"].(string)
				item.Reason, _ = body["reason"].(string)
			}
		}
		items = append(items, item)
	}

	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + size
	if end > total {
		end = total
	}
	pageItems := items[offset:end]
	if pageItems == nil {
		pageItems = []lockHistoryResp{}
	}
	util.Success(c, util.Response{"items": pageItems, "total": total, "page": page, "size": size})
}
