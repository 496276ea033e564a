package registry

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/bgbm/dnastore/internal/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Document kinds attached to a request.
const (
	DocumentManifest = "manifest"
	DocumentMTA      = "mta"
)

// Longest object keys the request columns hold.
const (
	maxManifestKey = 400
	maxMTAKey      = 200
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentURL is a presigned URL for one request document.
type DocumentURL struct {
	Kind string `json:"kind"`
	storage.PresignedURL
}

// RequestDocumentUpload presigns an upload for a request document and records its object key.
func (s *Service) RequestDocumentUpload(ctx context.Context, caller scope.Caller, requestID uint64, kind, filename, contentType string) (*DocumentURL, error) {
	if s.docs == nil {
		return nil, apperr.New(apperr.KindNotFound, "document storage is not configured")
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	fields := apperr.FieldErrors{}
	if kind != DocumentManifest && kind != DocumentMTA {
		fields.Add("kind", "must be one of: manifest, mta")
	}
	name := sanitizeFilename(filename)
	if name == "" {
		fields.Add("filename", "this field is required")
	}
	if errFields := fields.Err(); errFields != nil {
		return nil, errFields
	}

	if _, errLoad := s.requests.load(ctx, s.requests.scoped(ctx, s.db, caller), requestID); errLoad != nil {
		return nil, errLoad
	}

	prefix := fmt.Sprintf("requests/%d/%s/%s-", requestID, kind, uuid.NewString())
	limit := maxManifestKey
	if kind == DocumentMTA {
		limit = maxMTAKey
	}
	if room := limit - len(prefix); len(name) > room {
		name = name[len(name)-room:]
	}
	key := prefix + name

	signed, errPresign := s.docs.PresignUpload(ctx, key, contentType)
	if errPresign != nil {
		return nil, apperr.Internal("presign upload", errPresign)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"mta_storage_path": key}
		if kind == DocumentManifest {
			updates = map[string]any{"manifest_storage_path": key, "has_manifest_file": true}
		}
		return tx.Model(&models.Request{}).Where("id = ?", requestID).Updates(updates).Error
	})
	if errTx != nil {
		return nil, apperr.Internal("record document key", errTx)
	}
	log.WithFields(log.Fields{"request_id": requestID, "kind": kind, "user_id": caller.UserID}).Info("registry: document upload issued")
	return &DocumentURL{Kind: kind, PresignedURL: *signed}, nil
}

// RequestDocumentDownload presigns a download of a previously uploaded request document.
func (s *Service) RequestDocumentDownload(ctx context.Context, caller scope.Caller, requestID uint64, kind string) (*DocumentURL, error) {
	if s.docs == nil {
		return nil, apperr.New(apperr.KindNotFound, "document storage is not configured")
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != DocumentManifest && kind != DocumentMTA {
		return nil, apperr.Field("kind", "must be one of: manifest, mta")
	}

	row, errLoad := s.requests.load(ctx, s.requests.scoped(ctx, s.db, caller), requestID)
	if errLoad != nil {
		return nil, errLoad
	}
	key := row.MTAStoragePath
	if kind == DocumentManifest {
		key = row.ManifestStoragePath
	}
	if key == nil || *key == "" {
		return nil, apperr.New(apperr.KindNotFound, "no "+kind+" document uploaded")
	}

	signed, errPresign := s.docs.PresignDownload(ctx, *key)
	if errPresign != nil {
		return nil, apperr.Internal("presign download", errPresign)
	}
	return &DocumentURL{Kind: kind, PresignedURL: *signed}, nil
}

// sanitizeFilename keeps the base name and replaces characters unsafe in object keys.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "_")
}
