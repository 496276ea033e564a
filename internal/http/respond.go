package http

import (
	"errors"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// tokenErrorMessage is shown for both invalid and expired one-time tokens.
const tokenErrorMessage = "invalid or expired token"

// ErrorBody renders err as a response status and JSON body.
func ErrorBody(c *gin.Context, err error) (int, gin.H) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || kind == apperr.KindInternal {
		entry := log.WithError(err).WithFields(log.Fields{
			"request_id": RequestID(c),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
		})
		entry.Error("request failed")
		return status, gin.H{"error": "internal server error", "request_id": RequestID(c)}
	}

	switch kind {
	case apperr.KindInvalidToken, apperr.KindExpiredToken:
		return status, gin.H{"error": tokenErrorMessage, "code": string(apperr.KindInvalidToken)}
	case apperr.KindDispatchFailure:
		log.WithError(err).WithField("request_id", RequestID(c)).Warn("email dispatch failed")
	}

	message := appErr.Message
	if message == "" {
		message = string(kind)
	}
	body := gin.H{"error": message, "code": string(kind)}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	return status, body
}

// RespondError writes err as a JSON error response.
func RespondError(c *gin.Context, err error) {
	status, body := ErrorBody(c, err)
	c.JSON(status, body)
}

// abortWithError writes err and stops the handler chain.
func abortWithError(c *gin.Context, err error) {
	status, body := ErrorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}
