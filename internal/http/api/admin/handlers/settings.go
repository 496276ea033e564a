package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsHandler reads and writes runtime settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns every stored setting and the timestamp of the loaded snapshot.
func (h *SettingsHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		apihttp.RespondError(c, apperr.Internal("list settings", errFind))
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": rows, "snapshot_updated_at": settings.DBConfigUpdatedAt()})
}

// updateSettingRequest defines the request body for a setting update.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Update stores one setting and refreshes the in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.IsKnownKey(key) {
		apihttp.RespondError(c, apperr.New(apperr.KindNotFound, "unknown setting"))
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		apihttp.RespondError(c, apperr.Field("value", "this field is required"))
		return
	}
	if errUpsert := settings.Upsert(c.Request.Context(), h.db, key, body.Value); errUpsert != nil {
		apihttp.RespondError(c, apperr.Internal("update setting", errUpsert))
		return
	}
	log.WithFields(log.Fields{"key": key, "user_id": apihttp.CurrentCaller(c).UserID}).Info("settings: updated by staff")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
