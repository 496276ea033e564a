package account

import (
	"context"
	"errors"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RequestPasswordReset emails a signed reset link to an active account.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	fields := apperr.FieldErrors{}
	checkEmail(fields, email)
	if errFields := fields.Err(); errFields != nil {
		return errFields
	}
	if errLimit := throttle(ctx, s.opts.EmailLimiter, "reset:"+strings.ToLower(email)); errLimit != nil {
		return errLimit
	}

	user, errFind := findUserByEmail(ctx, s.db, email)
	if errFind != nil {
		return errFind
	}
	if user == nil || !user.IsActive {
		return apperr.Field("email", "no active account is registered with this email")
	}

	token, errToken := security.GenerateResetToken(s.opts.SecretKey, user.ID, user.Password, s.now(), s.opts.ResetTTL)
	if errToken != nil {
		return apperr.Internal("sign reset token", errToken)
	}
	msg, errCompose := s.composer.PasswordReset(user.Email, user.Username, security.EncodeUID(user.ID), token, s.opts.ResetTTL.String())
	if errCompose != nil {
		return apperr.Internal("compose reset email", errCompose)
	}
	if errSend := s.send(ctx, msg); errSend != nil {
		return apperr.Wrap(apperr.KindDispatchFailure, "could not send password reset email", errSend)
	}
	log.WithField("user_id", user.ID).Info("account: password reset requested")
	return nil
}

// ConfirmPasswordReset validates a reset token and sets the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword, confirmPassword string) error {
	fields := apperr.FieldErrors{}
	checkNewPassword(fields, "new_password", newPassword, confirmPassword, "confirm_password")
	if errFields := fields.Err(); errFields != nil {
		return errFields
	}

	userID, errUID := security.DecodeUID(strings.TrimSpace(uid))
	if errUID != nil {
		return apperr.New(apperr.KindInvalidToken, "reset link is invalid")
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindInvalidToken, "reset link is invalid")
		}
		return apperr.Internal("find account", errFind)
	}
	if _, errParse := security.ParseResetToken(s.opts.SecretKey, strings.TrimSpace(uid), user.Password, strings.TrimSpace(token), s.now()); errParse != nil {
		if errors.Is(errParse, security.ErrExpiredToken) {
			return apperr.New(apperr.KindExpiredToken, "reset link has expired")
		}
		return apperr.New(apperr.KindInvalidToken, "reset link is invalid")
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return apperr.Internal("hash password", errHash)
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ? AND password = ?", user.ID, user.Password).Update("password", hash)
		if res.Error != nil {
			return apperr.Internal("update password", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindInvalidToken, "reset link is invalid")
		}
		if errDelete := tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error; errDelete != nil {
			return apperr.Internal("revoke session", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}
	log.WithField("user_id", user.ID).Info("account: password reset completed")
	return nil
}

// ChangePassword replaces the password of an authenticated account.
func (s *Service) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword, confirmPassword string) error {
	fields := apperr.FieldErrors{}
	if oldPassword == "" {
		fields.Add("old_password", "this field is required")
	}
	checkNewPassword(fields, "new_password", newPassword, confirmPassword, "confirm_password")
	if errFields := fields.Err(); errFields != nil {
		return errFields
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindNotAuthenticated, "account not found")
		}
		return apperr.Internal("find account", errFind)
	}
	if !security.CheckPassword(user.Password, oldPassword) {
		return &apperr.Error{
			Kind:    apperr.KindInvalidCredentials,
			Message: "current password is incorrect",
			Fields:  map[string][]string{"old_password": {"current password is incorrect"}},
		}
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return apperr.Internal("hash password", errHash)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("password", hash).Error; errUpdate != nil {
		return apperr.Internal("update password", errUpdate)
	}
	log.WithField("user_id", user.ID).Info("account: password changed")
	return nil
}
