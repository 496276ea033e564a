package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/apperr"
	dbutil "github.com/bgbm/dnastore/internal/db"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Paging bounds of the user list.
const (
	defaultUserLimit = 20
	maxUserLimit     = 100
	maxUserPage      = 100000
)

// UserHandler manages accounts on behalf of staff.
type UserHandler struct {
	db       *gorm.DB
	accounts *account.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, accounts *account.Service) *UserHandler {
	return &UserHandler{db: db, accounts: accounts}
}

// List returns accounts filtered by username, email or active state.
func (h *UserHandler) List(c *gin.Context) {
	var (
		usernameQ = strings.TrimSpace(c.Query("username"))
		emailQ    = strings.TrimSpace(c.Query("email"))
		activeQ   = strings.TrimSpace(c.Query("is_active"))
	)
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	if page > maxUserPage {
		page = maxUserPage
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > maxUserLimit {
		limit = defaultUserLimit
	}

	filtered := func() *gorm.DB {
		q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
		if usernameQ != "" {
			pattern := dbutil.NormalizeLikePattern(h.db, "%"+usernameQ+"%")
			q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), pattern)
		}
		if emailQ != "" {
			pattern := dbutil.NormalizeLikePattern(h.db, "%"+emailQ+"%")
			q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "email"), pattern)
		}
		if activeQ != "" {
			if active, errParse := strconv.ParseBool(activeQ); errParse == nil {
				q = q.Where("is_active = ?", active)
			}
		}
		return q
	}

	var count int64
	if errCount := filtered().Count(&count).Error; errCount != nil {
		apihttp.RespondError(c, apperr.Internal("count users", errCount))
		return
	}
	var rows []models.User
	if errFind := filtered().Preload("Profile").Order("date_joined DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; errFind != nil {
		apihttp.RespondError(c, apperr.Internal("list users", errFind))
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		profile := models.Profile{}
		if rows[i].Profile != nil {
			profile = *rows[i].Profile
		}
		out = append(out, userView(&account.Identity{User: rows[i], Profile: profile}))
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": count, "page": page, "limit": limit})
}

// Get returns a single account by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity, errProfile := h.accounts.Profile(c.Request.Context(), id)
	if errProfile != nil {
		apihttp.RespondError(c, errProfile)
		return
	}
	c.JSON(http.StatusOK, userView(identity))
}

// updateUserRequest defines the request body for access updates.
type updateUserRequest struct {
	Role       *string `json:"role"`
	IsStaff    *bool   `json:"is_staff"`
	Department *string `json:"department"`
}

// Update changes role, staff flag or department of an account.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": string(apperr.KindValidation)})
		return
	}
	identity, errUpdate := h.accounts.UpdateAccess(c.Request.Context(), id, account.AccessUpdate{
		Role:       body.Role,
		IsStaff:    body.IsStaff,
		Department: body.Department,
	})
	if errUpdate != nil {
		apihttp.RespondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, userView(identity))
}

// Disable deactivates an account and revokes its session.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable reactivates an account.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// setActive applies an active state change requested by staff.
func (h *UserHandler) setActive(c *gin.Context, active bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !active && id == apihttp.CurrentCaller(c).UserID {
		apihttp.RespondError(c, apperr.Field("non_field_errors", "you cannot disable your own account"))
		return
	}
	identity, errSet := h.accounts.SetActive(c.Request.Context(), id, active)
	if errSet != nil {
		apihttp.RespondError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, userView(identity))
}

// parseID reads the :id path parameter.
func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		apihttp.RespondError(c, apperr.New(apperr.KindNotFound, "not found"))
		return 0, false
	}
	return id, true
}

// userView renders an account for staff.
func userView(identity *account.Identity) gin.H {
	return gin.H{
		"id":             identity.User.ID,
		"username":       identity.User.Username,
		"email":          identity.User.Email,
		"first_name":     identity.User.FirstName,
		"last_name":      identity.User.LastName,
		"is_active":      identity.User.IsActive,
		"is_staff":       identity.User.IsStaff,
		"role":           identity.Profile.Role,
		"department":     identity.Profile.Department,
		"phone":          identity.Profile.Phone,
		"email_verified": identity.Profile.EmailVerified,
		"date_joined":    identity.User.DateJoined,
		"last_login":     identity.User.LastLogin,
	}
}
