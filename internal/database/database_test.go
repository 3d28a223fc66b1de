package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zachsimson/Lockedin/internal/config"
	"github.com/zachsimson/Lockedin/internal/models"
	"github.com/zachsimson/Lockedin/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "nested", "test.db"),
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
		Admin:    config.AdminConfig{Username: "root", Email: "admin@lockedin.app", Password: "changeme"},
		App:      config.AppSubConfig{DiscordLink: "https://discord.gg/test"},
	}
}

func TestInit_UnsupportedDriver(t *testing.T) {
	if _, err := Init(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSeed_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()

	for i := 0; i < 2; i++ {
		if err := Seed(db, cfg); err != nil {
			t.Fatalf("Seed run %d: %v", i+1, err)
		}
	}

	var settings models.AppSettings
	if err := db.First(&settings, "id = ?", models.SettingsID).Error; err != nil {
		t.Fatalf("settings row: %v", err)
	}
	if settings.DiscordLink != "https://discord.gg/test" {
		t.Fatalf("discord link = %q", settings.DiscordLink)
	}

	want := 0
	for _, d := range defaultDomains {
		want += len(d)
	}
	var domains int64
	db.Model(&models.BlockedDomain{}).Count(&domains)
	if int(domains) != want {
		t.Fatalf("blocked domains = %d, want %d", domains, want)
	}

	var admins []models.User
	db.Where("role = ?", models.RoleAdmin).Find(&admins)
	if len(admins) != 1 || admins[0].Username != "root" {
		t.Fatalf("unexpected admins: %+v", admins)
	}
	if !util.CheckPassword("changeme", admins[0].PasswordHash) {
		t.Fatal("admin password not hashed with the configured value")
	}
}

func TestSeed_PromotesExistingAdminEmail(t *testing.T) {
	db := setupTestDB(t)
	u := models.User{Username: "someone", Email: "admin@lockedin.app", PasswordHash: "x", SobrietyStartDate: time.Now()}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := Seed(db, testConfig()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	var got models.User
	db.First(&got, u.ID)
	if got.Role != models.RoleAdmin {
		t.Fatalf("role = %q, want admin", got.Role)
	}
}

func TestUserDefaults(t *testing.T) {
	db := setupTestDB(t)
	u := models.User{Username: "fresh", Email: "fresh@example.com", PasswordHash: "x", SobrietyStartDate: time.Now()}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var got models.User
	db.First(&got, u.ID)
	if got.Role != models.RoleUser || got.UnlockState != "none" || got.SubscriptionStatus != "trial" {
		t.Fatalf("unexpected defaults: role=%q unlock=%q sub=%q", got.Role, got.UnlockState, got.SubscriptionStatus)
	}
	if got.RecoveryModeEnabled || got.LockDuration != nil {
		t.Fatal("new user should not be locked")
	}
}

func TestGamblingNotesEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	key := "notes-key"

	u := models.User{Username: "notes", Email: "notes@example.com", PasswordHash: "x", SobrietyStartDate: time.Now()}
	db.Create(&u)

	enc, err := util.EncryptString(key, "lost it all on a parlay")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	entry := models.GamblingEntry{UserID: u.ID, AmountCent: 12500, NotesEnc: enc, OccurredAt: time.Now()}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("create entry: %v", err)
	}

	var got models.GamblingEntry
	db.First(&got, entry.ID)
	if got.NotesEnc == "lost it all on a parlay" {
		t.Fatal("notes stored in plain text")
	}
	if util.DecryptString(key, got.NotesEnc) != "lost it all on a parlay" {
		t.Fatal("notes did not decrypt")
	}
	if util.DecryptString("other-key", got.NotesEnc) == "lost it all on a parlay" {
		t.Fatal("notes decrypted with the wrong key")
	}
}
