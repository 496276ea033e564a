package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/mailer"
	"github.com/bgbm/dnastore/internal/security"
	"github.com/bgbm/dnastore/internal/settings"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type adminServer struct {
	router   *gin.Engine
	accounts *account.Service
}

func newAdminServer(t *testing.T) *adminServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	security.SetHashCost(bcrypt.MinCost)

	dsn := fmt.Sprintf("file:admin_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn, db.Options{MaxOpenConns: 1})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	accounts := account.NewService(conn, &mailer.Outbox{}, mailer.Composer{SiteName: "DNA Store"}, account.Options{SecretKey: "test-secret"})
	r := gin.New()
	RegisterAdminRoutes(r, conn, accounts)
	return &adminServer{router: r, accounts: accounts}
}

func (s *adminServer) staffLogin(t *testing.T, username string, staff bool) (uint64, string) {
	t.Helper()
	ctx := context.Background()
	identity, errCreate := s.accounts.CreateStaff(ctx, account.StaffInput{Username: username, Email: username + "@bgbm.test", Password: "secret-pass"})
	if errCreate != nil {
		t.Fatalf("create %s: %v", username, errCreate)
	}
	if !staff {
		viewer := "viewer"
		notStaff := false
		if _, errUpdate := s.accounts.UpdateAccess(ctx, identity.User.ID, account.AccessUpdate{Role: &viewer, IsStaff: &notStaff}); errUpdate != nil {
			t.Fatalf("demote %s: %v", username, errUpdate)
		}
	}
	result, errLogin := s.accounts.Login(ctx, username, "secret-pass")
	if errLogin != nil {
		t.Fatalf("login %s: %v", username, errLogin)
	}
	return identity.User.ID, result.Token
}

func (s *adminServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	raw := []byte(nil)
	if body != nil {
		var errMarshal error
		if raw, errMarshal = json.Marshal(body); errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	out := map[string]any{}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), errDecode)
	}
	return rec.Code, out
}

func TestHealthz(t *testing.T) {
	s := newAdminServer(t)
	code, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: status %d body %v", code, body)
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	s := newAdminServer(t)
	_, viewerToken := s.staffLogin(t, "viewer", false)

	if code, _ := s.do(t, http.MethodGet, "/api/admin/users", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", code)
	}
	code, body := s.do(t, http.MethodGet, "/api/admin/users", viewerToken, nil)
	if code != http.StatusForbidden || body["code"] != "not_authorized" {
		t.Fatalf("viewer: status %d body %v", code, body)
	}
}

func TestDisableRevokesSessionAndEnableRestores(t *testing.T) {
	s := newAdminServer(t)
	staffID, staffToken := s.staffLogin(t, "curator", true)
	userID, userToken := s.staffLogin(t, "member", false)

	code, body := s.do(t, http.MethodGet, "/api/admin/users?username=MEM", staffToken, nil)
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("filtered list: status %d body %v", code, body)
	}
	code, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/admin/users?page=%d", math.MaxInt), staffToken, nil)
	if rows, _ := body["results"].([]any); code != http.StatusOK || body["page"] != float64(100000) || len(rows) != 0 {
		t.Fatalf("huge page: status %d body %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/disable", userID), staffToken, nil)
	if code != http.StatusOK || body["is_active"] != false {
		t.Fatalf("disable: status %d body %v", code, body)
	}
	if code, _ = s.do(t, http.MethodGet, "/api/admin/users", userToken, nil); code != http.StatusUnauthorized {
		t.Fatalf("revoked session status = %d, want 401", code)
	}
	if _, errLogin := s.accounts.Login(context.Background(), "member", "secret-pass"); errLogin == nil {
		t.Fatalf("disabled account must not log in")
	}

	if code, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/enable", userID), staffToken, nil); code != http.StatusOK || body["is_active"] != true {
		t.Fatalf("enable: status %d body %v", code, body)
	}
	if _, errLogin := s.accounts.Login(context.Background(), "member", "secret-pass"); errLogin != nil {
		t.Fatalf("enabled account login: %v", errLogin)
	}

	code, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/disable", staffID), staffToken, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("self disable: status %d body %v", code, body)
	}
}

func TestUpdateUserAccess(t *testing.T) {
	s := newAdminServer(t)
	_, staffToken := s.staffLogin(t, "curator", true)
	userID, _ := s.staffLogin(t, "member", false)

	code, body := s.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d", userID), staffToken, map[string]any{
		"role":       "researcher",
		"department": "Herbarium",
	})
	if code != http.StatusOK || body["role"] != "researcher" || body["department"] != "Herbarium" {
		t.Fatalf("update: status %d body %v", code, body)
	}
	code, body = s.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d", userID), staffToken, map[string]any{"role": "overlord"})
	if code != http.StatusBadRequest || body["code"] != "validation" {
		t.Fatalf("invalid role: status %d body %v", code, body)
	}
	if code, _ = s.do(t, http.MethodGet, "/api/admin/users/999999", staffToken, nil); code != http.StatusNotFound {
		t.Fatalf("missing user status = %d, want 404", code)
	}
}

func TestSettingsUpdate(t *testing.T) {
	s := newAdminServer(t)
	_, staffToken := s.staffLogin(t, "curator", true)

	code, body := s.do(t, http.MethodPut, "/api/admin/settings/"+settings.SiteNameKey, staffToken, map[string]any{"value": "BGBM DNA Bank"})
	if code != http.StatusOK {
		t.Fatalf("update: status %d body %v", code, body)
	}
	if got := settings.String(settings.SiteNameKey, "fallback"); got != "BGBM DNA Bank" {
		t.Fatalf("snapshot value = %q", got)
	}
	code, body = s.do(t, http.MethodGet, "/api/admin/settings", staffToken, nil)
	if _, ok := body["snapshot_updated_at"].(string); !ok {
		t.Fatalf("expected snapshot_updated_at in settings list, got %v", body)
	}
	if rows, _ := body["settings"].([]any); code != http.StatusOK || len(rows) != 1 {
		t.Fatalf("list: status %d body %v", code, body)
	}
	if code, _ = s.do(t, http.MethodPut, "/api/admin/settings/UNKNOWN", staffToken, map[string]any{"value": 1}); code != http.StatusNotFound {
		t.Fatalf("unknown key status = %d, want 404", code)
	}
}
