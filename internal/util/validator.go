package util

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	UsernameMin   = 3
	UsernameMax   = 50
	PasswordMin   = 6
	ChatMaxLength = 2000
)

// ValidateAmount checks a gambling amount: positive and below a sanity cap.
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}
	if amount >= 10000000 {
		return fmt.Errorf("amount too large, got %.2f", amount)
	}
	return nil
}

// ValidateWeeklyAmount allows zero, used at registration.
func ValidateWeeklyAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("weekly amount must not be negative")
	}
	if amount >= 10000000 {
		return fmt.Errorf("weekly amount too large")
	}
	return nil
}

// ValidateDate expects YYYY-MM-DD.
func ValidateDate(dateStr string) error {
	if dateStr == "" {
		return fmt.Errorf("date is empty")
	}
	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	return nil
}

func ValidateUsername(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < UsernameMin || n > UsernameMax {
		return fmt.Errorf("username must be %d-%d characters", UsernameMin, UsernameMax)
	}
	return nil
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < PasswordMin {
		return fmt.Errorf("password must be at least %d characters", PasswordMin)
	}
	return nil
}

// ValidateReason checks an unlock request reason, counted in characters.
func ValidateReason(reason string, min, max int) error {
	n := utf8.RuneCountInString(reason)
	if n < min || n > max {
		return fmt.Errorf("reason must be between %d and %d characters", min, max)
	}
	return nil
}

// NormalizeChatMessage trims the message and checks it is non-empty and short enough.
func NormalizeChatMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" || utf8.RuneCountInString(msg) > ChatMaxLength {
		return "", fmt.Errorf("message must be 1-%d characters", ChatMaxLength)
	}
	return msg, nil
}
