package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/config"
	"github.com/gin-gonic/gin"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = fmt.Sprintf("file:app_%d?mode=memory&cache=shared", time.Now().UnixNano())
	cfg.Database.MaxOpenConns = 1
	cfg.Auth.SecretKey = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Server.AllowedOrigins = []string{"http://frontend.test"}
	return cfg
}

func TestRouterServesHealthAndUnknownRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	svc, errBuild := Build(context.Background(), cfg)
	if errBuild != nil {
		t.Fatalf("build: %v", errBuild)
	}
	t.Cleanup(func() { _ = svc.Close() })
	router := NewRouter(cfg, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID response header")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", rec.Code)
	}
	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil || body["code"] != "not_found" {
		t.Fatalf("unknown route body %q", rec.Body.String())
	}
}

func TestStaffCanReachAdminThroughRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	svc, errBuild := Build(context.Background(), cfg)
	if errBuild != nil {
		t.Fatalf("build: %v", errBuild)
	}
	t.Cleanup(func() { _ = svc.Close() })

	ctx := context.Background()
	if _, errCreate := svc.Accounts.CreateStaff(ctx, account.StaffInput{Username: "curator", Email: "curator@bgbm.test", Password: "curator-pass"}); errCreate != nil {
		t.Fatalf("create staff: %v", errCreate)
	}
	login, errLogin := svc.Accounts.Login(ctx, "curator", "curator-pass")
	if errLogin != nil {
		t.Fatalf("login: %v", errLogin)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	NewRouter(cfg, svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin users status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestBuildWithDocumentStorage(t *testing.T) {
	cfg := testConfig(t)
	if cfg.StorageEnabled() {
		t.Fatalf("default config must not enable storage")
	}
	cfg.Storage.Bucket = "dna-documents"
	cfg.Storage.Endpoint = "http://127.0.0.1:9000"
	cfg.Storage.AccessKey = "minio"
	cfg.Storage.SecretKey = "minio-secret"
	cfg.Storage.UsePathStyle = true
	svc, errBuild := Build(context.Background(), cfg)
	if errBuild != nil {
		t.Fatalf("build with storage: %v", errBuild)
	}
	_ = svc.Close()
}
