package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware in this package.
const (
	ContextUserID    = "userID"
	ContextIdentity  = "identity"
	ContextRequestID = "requestID"
)

// Authenticator resolves a raw session key to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*account.Identity, error)
}

// TokenAuthMiddleware authenticates "Authorization: Token <key>" (or Bearer) and loads the identity into context.
func TokenAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := sessionKey(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, apperr.New(apperr.KindNotAuthenticated, "authentication credentials were not provided"))
			return
		}
		identity, errAuth := auth.Authenticate(c.Request.Context(), key)
		if errAuth != nil {
			abortWithError(c, errAuth)
			return
		}
		c.Set(ContextUserID, identity.User.ID)
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// RequireStaffMiddleware rejects callers without unrestricted registry access.
func RequireStaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		identity := CurrentIdentity(c)
		if identity == nil {
			abortWithError(c, apperr.New(apperr.KindNotAuthenticated, "authentication credentials were not provided"))
			return
		}
		if !identity.IsStaff() {
			abortWithError(c, apperr.New(apperr.KindNotAuthorized, "permission denied"))
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the authenticated identity, or nil.
func CurrentIdentity(c *gin.Context) *account.Identity {
	value, exists := c.Get(ContextIdentity)
	if !exists {
		return nil
	}
	identity, _ := value.(*account.Identity)
	return identity
}

// CurrentCaller returns the registry caller of the authenticated identity.
func CurrentCaller(c *gin.Context) scope.Caller {
	identity := CurrentIdentity(c)
	if identity == nil {
		return scope.Caller{}
	}
	return identity.Caller()
}

// sessionKey extracts the key from an Authorization header value.
func sessionKey(header string) (string, bool) {
	header = strings.TrimSpace(header)
	for _, scheme := range []string{"Token ", "Bearer "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			key := strings.TrimSpace(header[len(scheme):])
			return key, key != ""
		}
	}
	return "", false
}
