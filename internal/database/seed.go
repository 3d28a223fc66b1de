package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/zachsimson/Lockedin/internal/config"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultDomains is the blocklist installed on first start, keyed by category.
var defaultDomains = map[string][]string{
	"sportsbook": {
		"draftkings.com", "fanduel.com", "bet365.com", "caesars.com", "betmgm.com",
		"pointsbet.com", "unibet.com", "williamhill.com", "betrivers.com", "wynnbet.com",
		"hardrock.bet", "betway.com", "bovada.lv", "mybookie.ag", "betonline.ag",
	},
	"casino": {
		"888casino.com", "pokerstars.com", "partypoker.com", "pulsz.com", "stake.us",
		"chumba.com", "luckyland.com", "ignition.casino", "slots.lv", "bodog.com",
	},
	"social_casino": {
		"doubledowncasino.com", "slotomania.com", "jackpotparty.com", "wsop.com", "playtika.com",
	},
	"international": {
		"bwin.com", "paddypower.com", "betfair.com", "ladbrokes.com", "skybet.com",
		"1xbet.com", "22bet.com", "parimatch.com", "betano.com", "tipico.com",
	},
	"crypto": {
		"stake.com", "roobet.com", "bc.game", "duelbits.com", "bitstarz.com",
		"cloudbet.com", "sportsbet.io", "thunderpick.io", "metaspins.com",
	},
	"fantasy": {
		"underdog.com", "prizepicks.com", "sleeper.app", "dabble.com", "parlayplay.com",
	},
	"lottery": {
		"jackpocket.com", "lottoland.com", "thelotter.com", "bingo.com",
	},
	"prediction_market": {
		"kalshi.com", "futuur.com",
	},
}

// Seed installs default settings, the domain blocklist and the bootstrap admin.
// It is safe to run on every start.
func Seed(db *gorm.DB, cfg *config.Config) error {
	settings := models.AppSettings{ID: models.SettingsID, DiscordLink: cfg.App.DiscordLink}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	var count int64
	if err := db.Model(&models.BlockedDomain{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count blocked domains: %w", err)
	}
	if count == 0 {
		var rows []models.BlockedDomain
		for category, domains := range defaultDomains {
			for _, d := range domains {
				rows = append(rows, models.BlockedDomain{Domain: d, Category: category})
			}
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("seed blocked domains: %w", err)
		}
	}

	return seedAdmin(db, cfg)
}

func seedAdmin(db *gorm.DB, cfg *config.Config) error {
	a := cfg.Admin
	if a.Email == "" || a.Password == "" {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", a.Email).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			return db.Model(&existing).Update("role", models.RoleAdmin).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := util.HashPassword(a.Password, cfg.Security.BcryptCost)
	if err != nil {
		return err
	}
	username := a.Username
	if username == "" {
		username = "admin"
	}
	admin := models.User{
		Username:          username,
		Email:             a.Email,
		PasswordHash:      hash,
		DisplayName:       username,
		Role:              models.RoleAdmin,
		SobrietyStartDate: time.Now().UTC(),
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}
