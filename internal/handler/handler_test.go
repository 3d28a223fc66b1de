package handler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zachsimson/Lockedin/internal/apperr"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/util"
)

func TestLockError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"invalid duration", fmt.Errorf("%w: unsupported lock duration %q", lock.ErrInvalidArgument, "2w"), apperr.ErrInvalidArgument, 400},
		{"not locked", lock.ErrNotLocked, apperr.ErrNotLocked, 409},
		{"already pending", lock.ErrRequestAlreadyPending, apperr.ErrRequestAlreadyPending, 409},
		{"no pending", lock.ErrNoPendingRequest, apperr.ErrNoPendingRequest, 409},
		{"not approved", lock.ErrUnlockNotApproved, apperr.ErrUnlockNotApproved, 403},
		{"cooldown", &lock.CooldownError{Remaining: time.Hour}, apperr.ErrCooldownActive, 423},
		{"not found", lock.ErrNotFound, apperr.ErrNotFound, 404},
		{"store failure", errors.New("disk full"), apperr.ErrInternal, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var appErr *apperr.AppError
			if !errors.As(lockError(tc.err), &appErr) {
				t.Fatalf("lockError(%v) is not an AppError", tc.err)
			}
			if appErr.Code() != tc.code {
				t.Fatalf("code = %s, want %s", appErr.Code(), tc.code)
			}
			if got := apperr.HTTPStatus(appErr.Code()); got != tc.status {
				t.Fatalf("status = %d, want %d", got, tc.status)
			}
		})
	}
}

func TestLockError_Details(t *testing.T) {
	var appErr *apperr.AppError
	errors.As(lockError(&lock.CooldownError{Remaining: 90*time.Minute + 500*time.Millisecond}), &appErr)
	if got := appErr.Details()["remaining_seconds"]; got != int64(5401) {
		t.Fatalf("remaining_seconds = %v, want 5401", got)
	}
	if appErr.Message() != "Cooldown active. Changes take effect in 1h 31m." {
		t.Fatalf("message = %q", appErr.Message())
	}

	errors.As(lockError(fmt.Errorf("%w: reason must be between 10 and 500 characters", lock.ErrInvalidArgument)), &appErr)
	if appErr.Message() != "reason must be between 10 and 500 characters" {
		t.Fatalf("message = %q", appErr.Message())
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m"},
		{-time.Minute, "0h 0m"},
		{time.Second, "0h 1m"},
		{59 * time.Minute, "0h 59m"},
		{24 * time.Hour, "24h 0m"},
		{23*time.Hour + 29*time.Minute + time.Second, "23h 30m"},
	}
	for _, tc := range cases {
		if got := formatRemaining(tc.in); got != tc.want {
			t.Errorf("formatRemaining(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseOccurredAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseOccurredAt("", now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("empty: %v %v", got, err)
	}
	got, err = parseOccurredAt("2024-04-30", now)
	if err != nil || got.Format("2006-01-02") != "2024-04-30" {
		t.Fatalf("date: %v %v", got, err)
	}
	if _, err := parseOccurredAt("2024-05-01T23:00:00Z", now); err != nil {
		t.Fatalf("later today rejected: %v", err)
	}
	if _, err := parseOccurredAt("2024-05-02", now); err == nil {
		t.Fatal("future date accepted")
	}
	if _, err := parseOccurredAt("01/05/2024", now); err == nil {
		t.Fatal("unknown layout accepted")
	}
}

func TestParseHistoryCSV(t *testing.T) {
	h := &RecoveryHandler{
		EncryptKey: "csv-key",
		now:        func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	}

	input := "\ufeffDate,Amount,Relapse,Notes\n" +
		"2024-04-01,12.34,true,lost at blackjack\n" +
		"2024-04-02,5\n"
	entries, err := h.parseHistoryCSV(strings.NewReader(input), 9)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.UserID != 9 || first.AmountCent != 1234 || !first.Relapse {
		t.Fatalf("first = %+v", first)
	}
	if first.NotesEnc == "lost at blackjack" {
		t.Fatal("notes stored in plain text")
	}
	if util.DecryptString("csv-key", first.NotesEnc) != "lost at blackjack" {
		t.Fatal("notes do not decrypt")
	}
	if entries[1].AmountCent != 500 || entries[1].Relapse || entries[1].NotesEnc != "" {
		t.Fatalf("second = %+v", entries[1])
	}
}

func TestParseHistoryCSV_Rejects(t *testing.T) {
	h := &RecoveryHandler{now: func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }}

	cases := map[string]string{
		"negative amount": "2024-04-01,-3\n",
		"not a number":    "2024-04-01,ten\n",
		"future date":     "2024-06-01,3\n",
		"missing amount":  "2024-04-01\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.parseHistoryCSV(strings.NewReader(input), 1)
			var appErr *apperr.AppError
			if !errors.As(err, &appErr) || appErr.Code() != apperr.ErrInvalidArgument {
				t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestMoneySaved(t *testing.T) {
	cases := []struct {
		weekly float64
		days   int
		want   float64
	}{
		{70, 14, 140},
		{100, 10, 142.86},
		{0, 30, 0},
		{19.99, 0, 0},
	}
	for _, tc := range cases {
		if got := moneySaved(tc.weekly, tc.days); got != tc.want {
			t.Errorf("moneySaved(%v, %d) = %v, want %v", tc.weekly, tc.days, got, tc.want)
		}
	}
	if got := formatCent(1234); got != "12.34" {
		t.Errorf("formatCent(1234) = %q", got)
	}
}
