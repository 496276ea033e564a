// Package admin registers the staff-only account and settings endpoints.
package admin

import (
	"github.com/bgbm/dnastore/internal/account"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/http/api/admin/handlers"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers /api/admin and the health endpoint.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, accounts *account.Service) {
	if r == nil || db == nil || accounts == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	admin := r.Group("/api/admin")
	admin.Use(apihttp.TokenAuthMiddleware(accounts), apihttp.RequireStaffMiddleware())

	userHandler := handlers.NewUserHandler(db, accounts)
	admin.GET("/users", userHandler.List)
	admin.GET("/users/:id", userHandler.Get)
	admin.PUT("/users/:id", userHandler.Update)
	admin.POST("/users/:id/disable", userHandler.Disable)
	admin.POST("/users/:id/enable", userHandler.Enable)

	settingsHandler := handlers.NewSettingsHandler(db)
	admin.GET("/settings", settingsHandler.List)
	admin.PUT("/settings/:key", settingsHandler.Update)
}
