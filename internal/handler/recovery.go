package handler

import (
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecoveryHandler serves the sobriety tracker and the gambling history.
// Notes are stored encrypted with EncryptKey.
type RecoveryHandler struct {
	DB         *gorm.DB
	EncryptKey string
	now        func() time.Time
}

func NewRecoveryHandler(db *gorm.DB, encryptKey string) *RecoveryHandler {
	return &RecoveryHandler{
		DB:         db,
		EncryptKey: encryptKey,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---------- request / response ----------

type gamblingEntryReq struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
	Notes  string  `json:"notes" binding:"max=1000"`
}

type relapseReq struct {
	Amount float64 `json:"amount"`
	Notes  string  `json:"notes" binding:"max=1000"`
}

type gamblingEntryResp struct {
	ID      uint    `json:"id"`
	Amount  float64 `json:"amount"`
	Date    string  `json:"date"`
	Notes   string  `json:"notes"`
	Relapse bool    `json:"relapse"`
}

// ---------- helpers ----------

var hundred = decimal.NewFromInt(100)

func dollarsToCent(v decimal.Decimal) int64 {
	return v.Mul(hundred).Round(0).IntPart()
}

func centToDollars(c int64) float64 {
	return decimal.New(c, -2).InexactFloat64()
}

func formatCent(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}

// moneySaved is weekly * days / 7, rounded to cents.
func moneySaved(weekly float64, days int) float64 {
	return decimal.NewFromFloat(weekly).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(7)).
		Round(2).
		InexactFloat64()
}

// parseOccurredAt accepts RFC 3339, a local timestamp or a plain date.
// An empty value means now; dates after today are rejected.
func parseOccurredAt(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.UTC().Format("2006-01-02") > now.Format("2006-01-02") {
			return time.Time{}, apperr.New(apperr.ErrInvalidArgument, "date must not be in the future", nil)
		}
		return t.UTC(), nil
	}
	return time.Time{}, apperr.New(apperr.ErrInvalidArgument, "date must be YYYY-MM-DD or RFC 3339", nil)
}

func (h *RecoveryHandler) toResp(e *models.GamblingEntry) gamblingEntryResp {
	return gamblingEntryResp{
		ID:      e.ID,
		Amount:  centToDollars(e.AmountCent),
		Date:    e.OccurredAt.UTC().Format(time.RFC3339),
		Notes:   util.DecryptString(h.EncryptKey, e.NotesEnc),
		Relapse: e.Relapse,
	}
}

// ---------- stats ----------

// Stats reports whole days since the sobriety start and the money not spent at
// the user's declared weekly rate.
func (h *RecoveryHandler) Stats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	daysSober := 0
	if !user.SobrietyStartDate.IsZero() {
		if d := h.now().Sub(user.SobrietyStartDate); d > 0 {
			daysSober = int(d / (24 * time.Hour))
		}
	}

	var lastGambled *string
	if user.LastGambledAt != nil {
		s := user.LastGambledAt.UTC().Format(time.RFC3339)
		lastGambled = &s
	}
	var start *string
	if !user.SobrietyStartDate.IsZero() {
		s := user.SobrietyStartDate.UTC().Format(time.RFC3339)
		start = &s
	}

	util.Success(c, util.Response{
		"days_sober":             daysSober,
		"money_saved":            moneySaved(user.GamblingWeeklyAmount, daysSober),
		"sobriety_start_date":    start,
		"last_gambled_date":      lastGambled,
		"gambling_weekly_amount": user.GamblingWeeklyAmount,
	})
}

// ---------- relapse ----------

func (h *RecoveryHandler) Relapse(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req relapseReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Invalid relapse report", err))
			return
		}
	}
	if req.Amount != 0 {
		if err := util.ValidateAmount(req.Amount); err != nil {
			util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
			return
		}
	}
	notesEnc, err := util.EncryptString(h.EncryptKey, strings.TrimSpace(req.Notes))
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to encrypt notes"))
		return
	}

	now := h.now()
	entry := models.GamblingEntry{
		UserID:     user.ID,
		AmountCent: dollarsToCent(decimal.NewFromFloat(req.Amount)),
		NotesEnc:   notesEnc,
		Relapse:    true,
		OccurredAt: now,
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(user).Updates(map[string]interface{}{
			"sobriety_start_date": now,
			"last_gambled_at":     now,
		}).Error
	})
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to record relapse"))
		return
	}

	util.Success(c, util.Response{
		"message":        "Relapse recorded. Your sobriety timer has been reset.",
		"new_start_date": now.Format(time.RFC3339),
	})
}

// ---------- gambling history ----------

func (h *RecoveryHandler) AddHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req gamblingEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "Invalid history entry", err))
		return
	}
	if err := util.ValidateAmount(req.Amount); err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, err.Error(), err))
		return
	}
	occurredAt, err := parseOccurredAt(req.Date, h.now())
	if err != nil {
		util.Fail(c, err)
		return
	}
	notesEnc, err := util.EncryptString(h.EncryptKey, strings.TrimSpace(req.Notes))
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to encrypt notes"))
		return
	}

	entry := models.GamblingEntry{
		UserID:     user.ID,
		AmountCent: dollarsToCent(decimal.NewFromFloat(req.Amount)),
		NotesEnc:   notesEnc,
		OccurredAt: occurredAt,
	}
	if err := h.DB.Create(&entry).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to save history entry"))
		return
	}

	util.Success(c, util.Response{
		"message": "History entry added",
		"entry":   h.toResp(&entry),
	})
}

// ListHistory returns the user's history, newest first, optionally bounded by
// start and end dates (YYYY-MM-DD, end inclusive).
func (h *RecoveryHandler) ListHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	q, err := h.historyQuery(c, user.ID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	page, size, offset := pageParams(c, 50)

	var total int64
	if err := q.Model(&models.GamblingEntry{}).Count(&total).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to count history"))
		return
	}
	var entries []models.GamblingEntry
	if err := q.Order("occurred_at DESC, id DESC").Limit(size).Offset(offset).Find(&entries).Error; err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to load history"))
		return
	}

	history := make([]gamblingEntryResp, 0, len(entries))
	var totalCent int64
	for i := range entries {
		history = append(history, h.toResp(&entries[i]))
		totalCent += entries[i].AmountCent
	}

	util.Success(c, util.Response{
		"history":     history,
		"page":        page,
		"page_size":   size,
		"total":       total,
		"page_amount": formatCent(totalCent),
	})
}

func (h *RecoveryHandler) historyQuery(c *gin.Context, userID uint) (*gorm.DB, error) {
	q := h.DB.Where("user_id = ?", userID)
	if s := c.Query("start"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, "start must be YYYY-MM-DD", err)
		}
		q = q.Where("occurred_at >= ?", t)
	}
	if s := c.Query("end"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, "end must be YYYY-MM-DD", err)
		}
		q = q.Where("occurred_at < ?", t.Add(24*time.Hour))
	}
	return q, nil
}
