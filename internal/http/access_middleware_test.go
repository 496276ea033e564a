package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/gin-gonic/gin"
)

type stubAuthenticator struct {
	identities map[string]*account.Identity
	err        error
	seen       []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, rawKey string) (*account.Identity, error) {
	s.seen = append(s.seen, rawKey)
	if s.err != nil {
		return nil, s.err
	}
	identity, ok := s.identities[rawKey]
	if !ok {
		return nil, apperr.New(apperr.KindNotAuthenticated, "invalid token")
	}
	return identity, nil
}

func newStubAuthenticator() *stubAuthenticator {
	return &stubAuthenticator{identities: map[string]*account.Identity{
		"researcher-key": {User: models.User{ID: 7, IsActive: true}, Profile: models.Profile{Role: models.RoleResearcher}},
		"admin-key":      {User: models.User{ID: 9, IsActive: true}, Profile: models.Profile{Role: models.RoleAdmin}},
	}}
}

func runRequestWithMiddleware(t *testing.T, header string, middleware ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(middleware...)
	router.GET("/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint64(ContextUserID), "staff": CurrentCaller(c).Staff})
	})

	responseRecorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(responseRecorder, req)
	return responseRecorder
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), errDecode)
	}
	return body
}

func TestTokenAuthMiddlewareRequiresHeader(t *testing.T) {
	rec := runRequestWithMiddleware(t, "", TokenAuthMiddleware(newStubAuthenticator()))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if code := decodeBody(t, rec)["code"]; code != string(apperr.KindNotAuthenticated) {
		t.Fatalf("unexpected code %v", code)
	}
}

func TestTokenAuthMiddlewareAcceptsTokenAndBearer(t *testing.T) {
	for _, header := range []string{"Token researcher-key", "Bearer researcher-key", "token   researcher-key "} {
		rec := runRequestWithMiddleware(t, header, TokenAuthMiddleware(newStubAuthenticator()))
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected status 200, got %d", header, rec.Code)
		}
		if got := decodeBody(t, rec)["user_id"]; got != float64(7) {
			t.Fatalf("%q: user_id = %v", header, got)
		}
	}
}

func TestTokenAuthMiddlewareRejectsUnknownScheme(t *testing.T) {
	stub := newStubAuthenticator()
	rec := runRequestWithMiddleware(t, "Basic researcher-key", TokenAuthMiddleware(stub))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if len(stub.seen) != 0 {
		t.Fatalf("authenticator should not be called, saw %v", stub.seen)
	}
}

func TestTokenAuthMiddlewareMapsDisabledAccount(t *testing.T) {
	stub := newStubAuthenticator()
	stub.err = apperr.New(apperr.KindAccountDisabled, "user inactive or deleted")
	rec := runRequestWithMiddleware(t, "Token researcher-key", TokenAuthMiddleware(stub))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestRequireStaffMiddleware(t *testing.T) {
	stub := newStubAuthenticator()
	rec := runRequestWithMiddleware(t, "Token researcher-key", TokenAuthMiddleware(stub), RequireStaffMiddleware())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	rec = runRequestWithMiddleware(t, "Token admin-key", TokenAuthMiddleware(stub), RequireStaffMiddleware())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if staff := decodeBody(t, rec)["staff"]; staff != true {
		t.Fatalf("admin role should be staff, got %v", staff)
	}
}
