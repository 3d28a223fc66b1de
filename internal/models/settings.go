package models

import "time"

const SettingsID = "app_settings"

// AppSettings is a single row of global settings.
type AppSettings struct {
	ID          string `gorm:"primaryKey;size:32"`
	DiscordLink string `gorm:"size:255"`
	UpdatedAt   time.Time
}

// BlockedDomain is an entry of the gambling site blocklist pushed to devices.
type BlockedDomain struct {
	ID        uint   `gorm:"primaryKey"`
	Domain    string `gorm:"size:255;uniqueIndex;not null"`
	Category  string `gorm:"size:64;index"`
	CreatedAt time.Time
}
