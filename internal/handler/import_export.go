package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	maxImportRows  = 5000
	historySheet   = "Gambling history"
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	importFormName = "file"
)

var historyHeader = []string{"Date", "Amount", "Relapse", "Notes"}

func (h *RecoveryHandler) allHistory(c *gin.Context, userID uint) ([]models.GamblingEntry, error) {
	q, err := h.historyQuery(c, userID)
	if err != nil {
		return nil, err
	}
	var entries []models.GamblingEntry
	if err := q.Order("occurred_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, apperr.Wrap(err, "Failed to load history")
	}
	return entries, nil
}

func (h *RecoveryHandler) historyRow(e *models.GamblingEntry) []string {
	return []string{
		e.OccurredAt.UTC().Format("2006-01-02"),
		formatCent(e.AmountCent),
		strconv.FormatBool(e.Relapse),
		util.DecryptString(h.EncryptKey, e.NotesEnc),
	}
}

func attachment(c *gin.Context, ext string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"gambling_history_%s.%s\"",
		time.Now().UTC().Format("20060102"), ext))
}

// ExportCSV streams the history as CSV with a UTF-8 BOM so spreadsheet tools
// pick the right encoding.
func (h *RecoveryHandler) ExportCSV(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entries, err := h.allHistory(c, user.ID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	attachment(c, "csv")
	_, _ = c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	w := csv.NewWriter(c.Writer)
	_ = w.Write(historyHeader)
	for i := range entries {
		_ = w.Write(h.historyRow(&entries[i]))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

func (h *RecoveryHandler) ExportXLSX(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entries, err := h.allHistory(c, user.ID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to create sheet"))
		return
	}

	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to write header"))
		return
	}
	for i := range entries {
		e := &entries[i]
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			e.OccurredAt.UTC().Format("2006-01-02"),
			centToDollars(e.AmountCent),
			e.Relapse,
			util.DecryptString(h.EncryptKey, e.NotesEnc),
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to write row"))
			return
		}
	}
	_ = f.SetColWidth(historySheet, "A", "A", 12)
	_ = f.SetColWidth(historySheet, "B", "C", 10)
	_ = f.SetColWidth(historySheet, "D", "D", 40)

	c.Header("Content-Type", xlsxMIME)
	attachment(c, "xlsx")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// ImportCSV reads a file in the export layout. Rows are validated first and
// inserted in one transaction, so a bad row imports nothing.
func (h *RecoveryHandler) ImportCSV(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fh, err := c.FormFile(importFormName)
	if err != nil {
		util.Fail(c, apperr.New(apperr.ErrInvalidArgument, "CSV file is required", err))
		return
	}
	file, err := fh.Open()
	if err != nil {
		util.Fail(c, apperr.Wrap(err, "Failed to open upload"))
		return
	}
	defer file.Close()

	entries, err := h.parseHistoryCSV(file, user.ID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	if len(entries) > 0 {
		err = h.DB.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&entries, 200).Error
		})
		if err != nil {
			util.Fail(c, apperr.Wrap(err, "Failed to import history"))
			return
		}
	}

	util.Success(c, util.Response{
		"message":  "History imported",
		"imported": len(entries),
	})
}

func (h *RecoveryHandler) parseHistoryCSV(r io.Reader, userID uint) ([]models.GamblingEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	now := h.now()
	var entries []models.GamblingEntry
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("line %d: malformed CSV", line), err)
		}
		if line == 1 && isHistoryHeader(rec) {
			continue
		}
		if len(rec) < 2 {
			return nil, apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("line %d: expected date and amount", line), nil)
		}
		if len(entries) >= maxImportRows {
			return nil, apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("at most %d rows per import", maxImportRows), nil)
		}

		occurredAt, err := parseOccurredAt(rec[0], now)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("line %d: invalid date", line), err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err == nil {
			err = util.ValidateAmount(amount.InexactFloat64())
		}
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("line %d: invalid amount", line), err)
		}
		e := models.GamblingEntry{
			UserID:     userID,
			AmountCent: dollarsToCent(amount),
			OccurredAt: occurredAt,
		}
		if len(rec) > 2 {
			e.Relapse, _ = strconv.ParseBool(strings.TrimSpace(rec[2]))
		}
		if len(rec) > 3 {
			if e.NotesEnc, err = util.EncryptString(h.EncryptKey, strings.TrimSpace(rec[3])); err != nil {
				return nil, apperr.Wrap(err, "Failed to encrypt notes")
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isHistoryHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	first := strings.TrimPrefix(rec[0], "\ufeff")
	return strings.EqualFold(strings.TrimSpace(first), historyHeader[0])
}
