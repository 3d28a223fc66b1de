package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zachsimson/Lockedin/internal/config"
	"github.com/zachsimson/Lockedin/internal/database"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-pass"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type testApp struct {
	r      *gin.Engine
	db     *gorm.DB
	clock  *lock.FakeClock
	events *recordingSink
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "app.db")},
		JWT:      config.JWTConfig{Secret: "router-secret", Issuer: "lockedin-test", ExpireHours: 1},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost, EncryptionKey: "router-test-key"},
		Lock: config.LockConfig{
			Cooldown:  24 * time.Hour,
			ReasonMin: lock.DefaultReasonMin,
			ReasonMax: lock.DefaultReasonMax,
		},
		Admin: config.AdminConfig{Username: "admin", Email: adminEmail, Password: adminPassword},
		App:   config.AppSubConfig{PageSize: 20, DiscordLink: "https://discord.gg/start"},
	}
}

func newTestApp(t *testing.T, limiter *ratelimit.Limiter) *testApp {
	t.Helper()
	cfg := testConfig(t.TempDir())

	db, err := database.Init(cfg.Database)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.Seed(db, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}

	clock := lock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	ctrl := lock.NewController(lock.NewGormStore(db), lock.Options{
		Cooldown:  cfg.Lock.Cooldown,
		ReasonMin: cfg.Lock.ReasonMin,
		ReasonMax: cfg.Lock.ReasonMax,
		Clock:     clock,
	})
	events := &recordingSink{}

	r := SetupRouter(Deps{
		Config:  cfg,
		DB:      db,
		Logger:  zap.NewNop(),
		Lock:    ctrl,
		Sink:    events,
		Limiter: limiter,
		Auth:    middleware.NewAuthenticator(cfg.JWT.Secret, db),
	})
	return &testApp{r: r, db: db, clock: clock, events: events}
}

type apiResp struct {
	Code    int                    `json:"code"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Data    map[string]interface{} `json:"data"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiResp) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	var resp apiResp
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func (a *testApp) register(t *testing.T, name string) (string, uint) {
	t.Helper()
	w, resp := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"username":               name,
		"email":                  name + "@example.com",
		"password":               "secret-" + name,
		"gambling_weekly_amount": 70,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	user := resp.Data["user"].(map[string]interface{})
	return resp.Data["token"].(string), uint(user["id"].(float64))
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	w, resp := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: %d %s", w.Code, w.Body.String())
	}
	return resp.Data["token"].(string)
}

func status(t *testing.T, resp apiResp) map[string]interface{} {
	t.Helper()
	st, ok := resp.Data["status"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no status: %+v", resp)
	}
	return st
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)
	w := httptest.NewRecorder()
	app.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.register(t, "alice")

	w, resp := app.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	if got := resp.Data["user"].(map[string]interface{})["email"]; got != "alice@example.com" {
		t.Fatalf("me email = %v", got)
	}

	w, resp = app.do(t, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"username": "alice2",
		"email":    "ALICE@example.com",
		"password": "another",
	})
	if w.Code != http.StatusConflict || resp.Error != "CONFLICT" {
		t.Fatalf("duplicate email: %d %+v", w.Code, resp)
	}

	w, _ = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", w.Code)
	}

	w, resp = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret-alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	second := resp.Data["token"].(string)

	if w, _ := app.do(t, http.MethodPost, "/api/auth/logout", second, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodGet, "/api/auth/me", second, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodGet, "/api/auth/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("other session was revoked: %d", w.Code)
	}
}

func TestRecoveryModeFlow(t *testing.T) {
	app := newTestApp(t, nil)
	token, userID := app.register(t, "bob")
	admin := app.adminToken(t)

	w, resp := app.do(t, http.MethodGet, "/api/vpn/status", token, nil)
	if w.Code != http.StatusOK || resp.Data["state"] != string(lock.StateDisabled) {
		t.Fatalf("initial status: %d %+v", w.Code, resp.Data)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/enable", token, map[string]string{"lock_duration": "2w"})
	if w.Code != http.StatusBadRequest || resp.Error != "INVALID_ARGUMENT" {
		t.Fatalf("invalid duration: %d %+v", w.Code, resp)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "I am doing much better now"})
	if w.Code != http.StatusConflict || resp.Error != "NOT_LOCKED" {
		t.Fatalf("request while disabled: %d %+v", w.Code, resp)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/enable", token, map[string]string{"lock_duration": "7d"})
	if w.Code != http.StatusOK {
		t.Fatalf("enable: %d %s", w.Code, w.Body.String())
	}
	st := status(t, resp)
	if st["state"] != string(lock.StateLocked) || st["lock_expires_at"] != "2024-05-08T08:00:00Z" {
		t.Fatalf("after enable: %+v", st)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "too short"})
	if w.Code != http.StatusBadRequest || resp.Error != "INVALID_ARGUMENT" {
		t.Fatalf("short reason: %d %+v", w.Code, resp)
	}

	app.clock.Advance(time.Hour)
	w, resp = app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "I am doing much better now"})
	if w.Code != http.StatusOK || status(t, resp)["state"] != string(lock.StateUnlockRequested) {
		t.Fatalf("request unlock: %d %s", w.Code, w.Body.String())
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "asking a second time"})
	if w.Code != http.StatusConflict || resp.Error != "REQUEST_ALREADY_PENDING" {
		t.Fatalf("duplicate request: %d %+v", w.Code, resp)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/disable", token, nil)
	if w.Code != http.StatusForbidden || resp.Error != "UNLOCK_NOT_APPROVED" {
		t.Fatalf("disable before approval: %d %+v", w.Code, resp)
	}

	if w, _ := app.do(t, http.MethodGet, "/api/admin/unlock-requests", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin reached admin route: %d", w.Code)
	}
	w, resp = app.do(t, http.MethodGet, "/api/admin/unlock-requests", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list requests: %d %s", w.Code, w.Body.String())
	}
	reqs := resp.Data["requests"].([]interface{})
	if len(reqs) != 1 || reqs[0].(map[string]interface{})["username"] != "bob" {
		t.Fatalf("pending requests = %+v", reqs)
	}

	w, resp = app.do(t, http.MethodPost, "/api/admin/unlock-requests/"+itoa(userID)+"/approve", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}
	st = status(t, resp)
	if st["state"] != string(lock.StateApprovedCooling) || st["cooldown_remaining_seconds"] != float64(86400) {
		t.Fatalf("after approve: %+v", st)
	}

	app.clock.Advance(30 * time.Minute)
	w, resp = app.do(t, http.MethodPost, "/api/vpn/disable", token, nil)
	if w.Code != http.StatusLocked || resp.Error != "COOLDOWN_ACTIVE" {
		t.Fatalf("disable during cooldown: %d %+v", w.Code, resp)
	}
	if resp.Details["remaining_seconds"] != float64(23*3600+30*60) {
		t.Fatalf("remaining_seconds = %v", resp.Details["remaining_seconds"])
	}
	if !strings.Contains(resp.Message, "23h 30m") {
		t.Fatalf("cooldown message = %q", resp.Message)
	}

	app.clock.Advance(23*time.Hour + 30*time.Minute)
	w, resp = app.do(t, http.MethodGet, "/api/vpn/status", token, nil)
	if resp.Data["can_disable"] != true || resp.Data["state"] != string(lock.StateApprovedReady) {
		t.Fatalf("status after cooldown: %+v", resp.Data)
	}

	w, resp = app.do(t, http.MethodPost, "/api/vpn/disable", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: %d %s", w.Code, w.Body.String())
	}
	st = status(t, resp)
	if st["state"] != string(lock.StateDisabled) || st["lock_duration"] != nil || st["unlock_approved"] != false {
		t.Fatalf("after disable: %+v", st)
	}

	want := []string{
		notify.EventLockEnabled,
		notify.EventUnlockRequested,
		notify.EventUnlockApproved,
		notify.EventLockDisabled,
	}
	if got := app.events.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	w, resp = app.do(t, http.MethodGet, "/api/vpn/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lock history: %d %s", w.Code, w.Body.String())
	}
	var sawReason bool
	for _, it := range resp.Data["items"].([]interface{}) {
		item := it.(map[string]interface{})
		if item["operation"] == "request-unlock" && item["succeeded"] == true &&
			item["reason"] == "I am doing much better now" {
			sawReason = true
		}
	}
	if !sawReason {
		t.Fatalf("lock history missing the unlock request: %+v", resp.Data["items"])
	}
}

func TestAdminDenyUnlock(t *testing.T) {
	app := newTestApp(t, nil)
	token, userID := app.register(t, "carol")
	admin := app.adminToken(t)

	app.do(t, http.MethodPost, "/api/vpn/enable", token, map[string]string{"lock_duration": "permanent"})
	app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "please unlock my account"})

	w, resp := app.do(t, http.MethodPost, "/api/admin/unlock-requests/"+itoa(userID)+"/deny", admin,
		map[string]string{"reason": "Talk to your sponsor first"})
	if w.Code != http.StatusOK {
		t.Fatalf("deny: %d %s", w.Code, w.Body.String())
	}
	st := status(t, resp)
	if st["state"] != string(lock.StateLocked) || st["unlock_denied_reason"] != "Talk to your sponsor first" ||
		st["lock_expires_at"] != nil {
		t.Fatalf("after deny: %+v", st)
	}

	// denial closes the request, so the user may ask again
	w, _ = app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "asking again after a week"})
	if w.Code != http.StatusOK {
		t.Fatalf("request after deny: %d %s", w.Code, w.Body.String())
	}

	w, resp = app.do(t, http.MethodPost, "/api/admin/unlock-requests/999/approve", admin, nil)
	if w.Code != http.StatusNotFound || resp.Error != "NOT_FOUND" {
		t.Fatalf("approve unknown user: %d %+v", w.Code, resp)
	}
	w, _ = app.do(t, http.MethodPost, "/api/admin/unlock-requests/abc/deny", admin, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
}

func TestAdminDenyAfterApproval(t *testing.T) {
	app := newTestApp(t, nil)
	token, userID := app.register(t, "frank")
	admin := app.adminToken(t)

	app.do(t, http.MethodPost, "/api/vpn/enable", token, map[string]string{"lock_duration": "7d"})
	app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "please unlock my account"})
	app.do(t, http.MethodPost, "/api/admin/unlock-requests/"+itoa(userID)+"/approve", admin, nil)

	w, resp := app.do(t, http.MethodPost, "/api/admin/unlock-requests/"+itoa(userID)+"/deny", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deny: %d %s", w.Code, w.Body.String())
	}
	st := status(t, resp)
	if st["unlock_requested"] != false || st["unlock_approved"] != true ||
		st["unlock_effective_at"] == nil || st["unlock_denied_reason"] != "" {
		t.Fatalf("after deny: %+v", st)
	}

	app.clock.Advance(24*time.Hour + time.Minute)
	w, resp = app.do(t, http.MethodPost, "/api/vpn/disable", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disable after cooldown: %d %s", w.Code, w.Body.String())
	}
	if st := status(t, resp); st["recovery_mode_enabled"] != false {
		t.Fatalf("still enabled: %+v", st)
	}
}

func TestUnlockRequestRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := newTestApp(t, ratelimit.New(rdb, "test", 1.0/3600, 1))
	token, userID := app.register(t, "dave")
	admin := app.adminToken(t)

	app.do(t, http.MethodPost, "/api/vpn/enable", token, map[string]string{"lock_duration": "24h"})
	if w, _ := app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "first unlock request"}); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	app.do(t, http.MethodPost, "/api/admin/unlock-requests/"+itoa(userID)+"/deny", admin, nil)

	w, resp := app.do(t, http.MethodPost, "/api/vpn/request-unlock", token, map[string]string{"reason": "second unlock request"})
	if w.Code != http.StatusTooManyRequests || resp.Error != "RATE_LIMITED" {
		t.Fatalf("second request: %d %+v", w.Code, resp)
	}
	if secs, _ := resp.Details["retry_after_seconds"].(float64); secs <= 0 {
		t.Fatalf("retry_after_seconds = %v", resp.Details["retry_after_seconds"])
	}
}

func TestAdminBlockAndStats(t *testing.T) {
	app := newTestApp(t, nil)
	token, userID := app.register(t, "erin")
	admin := app.adminToken(t)

	w, resp := app.do(t, http.MethodPost, "/api/admin/block-user/4242", admin, nil)
	if w.Code != http.StatusNotFound || resp.Error != "NOT_FOUND" {
		t.Fatalf("block unknown: %d %+v", w.Code, resp)
	}
	if w, _ := app.do(t, http.MethodPost, "/api/admin/block-user/"+itoa(userID)+"?reason=spam", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("block: %d", w.Code)
	}

	_, resp = app.do(t, http.MethodGet, "/api/blocking/status", token, nil)
	if resp.Data["is_blocked"] != true {
		t.Fatalf("blocking status = %+v", resp.Data)
	}

	_, resp = app.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
	if resp.Data["total_users"] != float64(2) || resp.Data["blocked_users"] != float64(1) {
		t.Fatalf("stats = %+v", resp.Data)
	}

	if w, _ := app.do(t, http.MethodPost, "/api/admin/unblock-user/"+itoa(userID), admin, nil); w.Code != http.StatusOK {
		t.Fatalf("unblock: %d", w.Code)
	}
	_, resp = app.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
	if resp.Data["blocked_users"] != float64(0) {
		t.Fatalf("stats after unblock = %+v", resp.Data)
	}
}

func TestRecoveryTracker(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.register(t, "frank")

	w, resp := app.do(t, http.MethodPost, "/api/recovery/gambling-history", token, map[string]interface{}{
		"amount": 25.5,
		"date":   "2024-01-15",
		"notes":  "poker night",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add history: %d %s", w.Code, w.Body.String())
	}

	w, resp = app.do(t, http.MethodPost, "/api/recovery/relapse", token, nil)
	if w.Code != http.StatusOK || resp.Data["new_start_date"] == nil {
		t.Fatalf("relapse: %d %s", w.Code, w.Body.String())
	}

	_, resp = app.do(t, http.MethodGet, "/api/recovery/stats", token, nil)
	if resp.Data["days_sober"] != float64(0) || resp.Data["last_gambled_date"] == nil {
		t.Fatalf("stats after relapse = %+v", resp.Data)
	}

	_, resp = app.do(t, http.MethodGet, "/api/recovery/gambling-history", token, nil)
	history := resp.Data["history"].([]interface{})
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	oldest := history[1].(map[string]interface{})
	if oldest["notes"] != "poker night" || oldest["amount"] != 25.5 {
		t.Fatalf("oldest entry = %+v", oldest)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/recovery/export/csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "2024-01-15,25.50,false,poker night") {
		t.Fatalf("csv export: %d %q", rec.Code, rec.Body.String())
	}
}

func TestDiscordLink(t *testing.T) {
	app := newTestApp(t, nil)
	token, _ := app.register(t, "gina")
	admin := app.adminToken(t)

	_, resp := app.do(t, http.MethodGet, "/api/settings/discord-link", token, nil)
	if resp.Data["discord_link"] != "https://discord.gg/start" {
		t.Fatalf("seeded link = %+v", resp.Data)
	}

	if w, _ := app.do(t, http.MethodPut, "/api/settings/discord-link?discord_link=https://discord.gg/new", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user update: %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodPut, "/api/settings/discord-link?discord_link=not-a-url", admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid link: %d", w.Code)
	}
	if w, _ := app.do(t, http.MethodPut, "/api/settings/discord-link?discord_link=https://discord.gg/new", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("admin update: %d", w.Code)
	}

	_, resp = app.do(t, http.MethodGet, "/api/settings/discord-link", token, nil)
	if resp.Data["discord_link"] != "https://discord.gg/new" {
		t.Fatalf("updated link = %+v", resp.Data)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
