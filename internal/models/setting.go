package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores a runtime setting editable by staff, such as the site name used in emails.
type Setting struct {
	Key       string         `gorm:"type:varchar(100);primaryKey" json:"key"` // Setting key.
	Value     datatypes.JSON `gorm:"not null" json:"value"`                   // JSON-encoded value.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
