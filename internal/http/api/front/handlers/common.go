package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/apperr"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/gin-gonic/gin"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get(apihttp.ContextUserID)
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// requireUserID returns the authenticated user ID or writes a 401.
func requireUserID(c *gin.Context) (uint64, bool) {
	userID := getUserID(c)
	if userID == 0 {
		apihttp.RespondError(c, apperr.New(apperr.KindNotAuthenticated, "authentication credentials were not provided"))
		return 0, false
	}
	return userID, true
}

// parseIDParam reads a positive numeric path parameter or writes a 404.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		apihttp.RespondError(c, apperr.New(apperr.KindNotFound, "not found"))
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body into dst or writes a 400.
func bindJSON(c *gin.Context, dst any) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": string(apperr.KindValidation)})
		return false
	}
	return true
}

// userSummary renders the public part of an identity.
func userSummary(identity *account.Identity) gin.H {
	return gin.H{
		"id":             identity.User.ID,
		"username":       identity.User.Username,
		"email":          identity.User.Email,
		"first_name":     identity.User.FirstName,
		"last_name":      identity.User.LastName,
		"is_staff":       identity.IsStaff(),
		"is_active":      identity.User.IsActive,
		"email_verified": identity.Profile.EmailVerified,
		"role":           identity.Profile.Role,
	}
}

// userDetail renders the full profile of an identity.
func userDetail(identity *account.Identity) gin.H {
	detail := userSummary(identity)
	detail["phone"] = identity.Profile.Phone
	detail["department"] = identity.Profile.Department
	detail["date_joined"] = identity.User.DateJoined
	detail["last_login"] = identity.User.LastLogin
	return detail
}
