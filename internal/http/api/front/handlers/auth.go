package handlers

import (
	"net/http"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/apperr"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves the credential lifecycle endpoints.
type AuthHandler struct {
	accounts *account.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *account.Service) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// registerRequest defines the request body for self-service registration.
type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Register creates a pending account and sends the verification email.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindJSON(c, &body) {
		return
	}
	result, errRegister := h.accounts.Register(c.Request.Context(), account.RegisterInput{
		Username:        body.Username,
		Email:           body.Email,
		FirstName:       body.FirstName,
		LastName:        body.LastName,
		Password:        body.Password,
		PasswordConfirm: body.PasswordConfirm,
	})
	if errRegister != nil {
		apihttp.RespondError(c, errRegister)
		return
	}

	message := "registration successful, check your email to verify your account"
	if !result.EmailSent {
		message = "registration successful, but the verification email could not be sent"
	}
	identity := &account.Identity{User: result.User, Profile: result.Profile}
	c.JSON(http.StatusCreated, gin.H{
		"message":               message,
		"user":                  userSummary(identity),
		"requires_verification": true,
		"email_sent":            result.EmailSent,
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates credentials and issues a fresh session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	result, errLogin := h.accounts.Login(c.Request.Context(), body.Username, body.Password)
	if errLogin != nil {
		apihttp.RespondError(c, errLogin)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"user":    userSummary(&result.Identity),
		"token":   result.Token,
	})
}

// Logout revokes the caller's session token.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if errLogout := h.accounts.Logout(c.Request.Context(), userID); errLogout != nil {
		apihttp.RespondError(c, errLogout)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
}

// verifyEmailRequest defines the request body for email verification.
type verifyEmailRequest struct {
	Token string `json:"token"`
}

// VerifyEmail consumes a verification token and activates the account.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body verifyEmailRequest
	if !bindJSON(c, &body) {
		return
	}
	identity, errVerify := h.accounts.VerifyEmail(c.Request.Context(), body.Token)
	if errVerify != nil {
		apihttp.RespondError(c, errVerify)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "email verified, you can now log in",
		"user":    userSummary(identity),
	})
}

// emailRequest defines a request body carrying only an email address.
type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification issues a new verification token for an unverified account.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var body emailRequest
	if !bindJSON(c, &body) {
		return
	}
	if errResend := h.accounts.ResendVerification(c.Request.Context(), body.Email); errResend != nil {
		apihttp.RespondError(c, errResend)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
}

// PasswordReset sends a password reset link.
func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var body emailRequest
	if !bindJSON(c, &body) {
		return
	}
	if errReset := h.accounts.RequestPasswordReset(c.Request.Context(), body.Email); errReset != nil {
		apihttp.RespondError(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset email sent"})
}

// passwordResetConfirmRequest defines the request body for completing a reset.
type passwordResetConfirmRequest struct {
	UID             string `json:"uid"`
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// PasswordResetConfirm sets a new password from a signed reset token.
func (h *AuthHandler) PasswordResetConfirm(c *gin.Context) {
	var body passwordResetConfirmRequest
	if !bindJSON(c, &body) {
		return
	}
	errConfirm := h.accounts.ConfirmPasswordReset(c.Request.Context(), body.UID, body.Token, body.NewPassword, body.ConfirmPassword)
	if errConfirm != nil {
		apihttp.RespondError(c, errConfirm)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

// VerifyToken reports that the presented session token is valid.
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	identity := apihttp.CurrentIdentity(c)
	if identity == nil {
		apihttp.RespondError(c, apperr.New(apperr.KindNotAuthenticated, "authentication credentials were not provided"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": userSummary(identity)})
}
