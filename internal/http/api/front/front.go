package front

import (
	"github.com/bgbm/dnastore/internal/account"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/http/api/front/handlers"
	"github.com/bgbm/dnastore/internal/registry"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/gin-gonic/gin"
)

// entityPaths maps URL segments to registry entities.
var entityPaths = []struct {
	path   string
	entity scope.Entity
}{
	{"requesters", scope.Requesters},
	{"requests", scope.Requests},
	{"metadata", scope.Metadata},
	{"shipments", scope.Shipments},
	{"tissues", scope.Tissues},
	{"dna-aliquots", scope.DnaAliquots},
}

// RegisterFrontRoutes registers the authentication and registry routes under /api.
func RegisterFrontRoutes(r *gin.Engine, accounts *account.Service, reg *registry.Service) {
	if r == nil || accounts == nil || reg == nil {
		return
	}

	api := r.Group("/api")
	authRequired := apihttp.TokenAuthMiddleware(accounts)

	authHandler := handlers.NewAuthHandler(accounts)
	profileHandler := handlers.NewProfileHandler(accounts)
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/verify-email", authHandler.VerifyEmail)
	auth.POST("/resend-verification", authHandler.ResendVerification)
	auth.POST("/password-reset", authHandler.PasswordReset)
	auth.POST("/password-reset-confirm", authHandler.PasswordResetConfirm)

	authed := auth.Group("")
	authed.Use(authRequired)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/verify-token", authHandler.VerifyToken)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile", profileHandler.Update)
	authed.PUT("/profile/update", profileHandler.Update)
	authed.POST("/change-password", profileHandler.ChangePassword)

	samples := api.Group("")
	samples.Use(authRequired)
	for _, entry := range entityPaths {
		resource, ok := reg.Resource(entry.entity)
		if !ok {
			continue
		}
		h := handlers.NewRegistryHandler(resource)
		group := samples.Group("/" + entry.path)
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/stats", h.Stats)
		group.GET("/:id", h.Get)
		group.PUT("/:id", h.Update)
		group.PATCH("/:id", h.Update)
		group.DELETE("/:id", h.Delete)
	}

	sampleHandler := handlers.NewSampleHandler(reg)
	samples.GET("/requesters/:id/requests", sampleHandler.RequesterRequests)
	samples.GET("/requests/:id/metadata", sampleHandler.RequestMetadata)
	samples.GET("/requests/:id/shipments", sampleHandler.RequestShipments)
	samples.POST("/requests/:id/documents", sampleHandler.UploadDocument)
	samples.GET("/requests/:id/documents/:kind", sampleHandler.DownloadDocument)
	samples.GET("/stats", sampleHandler.Summary)
}
