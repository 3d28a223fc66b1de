package models

import "time"

const CommunityRoom = "community"

// ChatMessage is a community chat line.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"message_id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Username  string    `gorm:"size:64;not null" json:"username"`
	Message   string    `gorm:"size:2000;not null" json:"message"`
	Room      string    `gorm:"size:64;index;not null;default:community" json:"room"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}
