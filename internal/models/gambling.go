package models

import "time"

// GamblingEntry is one line of a user's gambling history. Relapse marks entries
// created through the relapse endpoint, which also resets the sobriety timer.
type GamblingEntry struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"index;not null"`
	AmountCent int64     `gorm:"not null;default:0"`
	NotesEnc   string    `gorm:"size:2048"` // AES+base64
	Relapse    bool      `gorm:"not null;default:false"`
	OccurredAt time.Time `gorm:"index;not null"`
	CreatedAt  time.Time
}
