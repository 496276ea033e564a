package handlers

import (
	"net/http"

	"github.com/bgbm/dnastore/internal/account"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/gin-gonic/gin"
)

// ProfileHandler handles user profile endpoints.
type ProfileHandler struct {
	accounts *account.Service
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(accounts *account.Service) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// Get returns the current user's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	identity, errProfile := h.accounts.Profile(c.Request.Context(), userID)
	if errProfile != nil {
		apihttp.RespondError(c, errProfile)
		return
	}
	c.JSON(http.StatusOK, userDetail(identity))
}

// updateProfileRequest defines the request body for profile updates; omitted fields are kept.
type updateProfileRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Department *string `json:"department"`
}

// Update applies a partial profile update.
func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body updateProfileRequest
	if !bindJSON(c, &body) {
		return
	}
	result, errUpdate := h.accounts.UpdateProfile(c.Request.Context(), userID, account.ProfileUpdate{
		FirstName:  body.FirstName,
		LastName:   body.LastName,
		Email:      body.Email,
		Phone:      body.Phone,
		Department: body.Department,
	})
	if errUpdate != nil {
		apihttp.RespondError(c, errUpdate)
		return
	}
	response := gin.H{
		"message": "profile updated",
		"user":    userDetail(&result.Identity),
	}
	if result.EmailChanged {
		response["requires_verification"] = true
		response["email_sent"] = result.EmailSent
	}
	c.JSON(http.StatusOK, response)
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword verifies the old password and sets a new one.
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	errChange := h.accounts.ChangePassword(c.Request.Context(), userID, body.OldPassword, body.NewPassword, body.ConfirmPassword)
	if errChange != nil {
		apihttp.RespondError(c, errChange)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
