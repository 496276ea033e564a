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

// LoginResult carries the authenticated identity and its raw session key.
type LoginResult struct {
	Identity
	Token string
}

// Login checks credentials and state, then rotates the account's session token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		fields := apperr.FieldErrors{}
		if username == "" {
			fields.Add("username", "this field is required")
		}
		if password == "" {
			fields.Add("password", "this field is required")
		}
		return nil, fields.Err()
	}
	if errLimit := throttle(ctx, s.opts.LoginLimiter, "login:"+strings.ToLower(username)); errLimit != nil {
		return nil, errLimit
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("find account", errFind)
		}
		security.EqualizeTiming(password)
		return nil, apperr.New(apperr.KindInvalidCredentials, "unable to log in with provided credentials")
	}
	if !security.CheckPassword(user.Password, password) {
		return nil, apperr.New(apperr.KindInvalidCredentials, "unable to log in with provided credentials")
	}

	profile, errProfile := loadProfile(ctx, s.db, user.ID)
	if errProfile != nil {
		return nil, errProfile
	}
	if !user.IsActive {
		if !profile.EverVerified {
			return nil, apperr.New(apperr.KindAccountUnverified, "email address has not been verified")
		}
		return nil, apperr.New(apperr.KindAccountDisabled, "account is disabled")
	}

	key, errKey := security.GenerateSessionKey()
	if errKey != nil {
		return nil, apperr.Internal("generate session key", errKey)
	}
	now := s.now()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error; errDelete != nil {
			return errDelete
		}
		if errCreate := tx.Create(&models.AuthToken{UserID: user.ID, KeyDigest: security.DigestSessionKey(key)}).Error; errCreate != nil {
			return errCreate
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now).Error
	})
	if errTx != nil {
		return nil, apperr.Internal("rotate session token", errTx)
	}
	user.LastLogin = &now

	log.WithField("user_id", user.ID).Info("account: logged in")
	return &LoginResult{Identity: Identity{User: user, Profile: *profile}, Token: key}, nil
}

// Logout deletes the account's session token.
func (s *Service) Logout(ctx context.Context, userID uint64) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.AuthToken{})
	if res.Error != nil {
		return apperr.Internal("delete session token", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotAuthenticated, "not logged in")
	}
	return nil
}

// Authenticate resolves a raw session key to its identity.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, apperr.New(apperr.KindNotAuthenticated, "authentication credentials were not provided")
	}
	var token models.AuthToken
	errFind := s.db.WithContext(ctx).Where("key_digest = ?", security.DigestSessionKey(rawKey)).First(&token).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotAuthenticated, "invalid token")
		}
		return nil, apperr.Internal("find session token", errFind)
	}
	identity, errLoad := loadIdentity(ctx, s.db, token.UserID)
	if errLoad != nil {
		if apperr.KindOf(errLoad) == apperr.KindNotFound {
			return nil, apperr.New(apperr.KindNotAuthenticated, "invalid token")
		}
		return nil, errLoad
	}
	if !identity.User.IsActive {
		return nil, apperr.New(apperr.KindAccountDisabled, "user inactive or deleted")
	}
	return identity, nil
}
