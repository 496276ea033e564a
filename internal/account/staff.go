package account

import (
	"context"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccessUpdate changes role related attributes of an account; nil fields are left unchanged.
type AccessUpdate struct {
	Role       *string
	IsStaff    *bool
	Department *string
}

// SetActive enables or disables an account. Disabling revokes the session
// token and any pending verification token.
func (s *Service) SetActive(ctx context.Context, userID uint64, active bool) (*Identity, error) {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, errLoad := loadIdentity(ctx, tx, userID)
		if errLoad != nil {
			return errLoad
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).Update("is_active", active).Error; errUpdate != nil {
			return apperr.Internal("update account state", errUpdate)
		}
		if active {
			return nil
		}
		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.AuthToken{}).Error; errDelete != nil {
			return apperr.Internal("revoke session", errDelete)
		}
		return tx.Model(&models.Profile{}).Where("id = ?", current.Profile.ID).Updates(map[string]any{
			"verification_token":            nil,
			"verification_token_created_at": nil,
		}).Error
	})
	if errTx != nil {
		if apperr.KindOf(errTx) != apperr.KindInternal {
			return nil, errTx
		}
		return nil, apperr.Internal("set account state", errTx)
	}
	log.WithFields(log.Fields{"user_id": userID, "active": active}).Info("account: state changed by staff")
	return loadIdentity(ctx, s.db, userID)
}

// UpdateAccess changes role, staff flag or department of an account.
func (s *Service) UpdateAccess(ctx context.Context, userID uint64, in AccessUpdate) (*Identity, error) {
	fields := apperr.FieldErrors{}
	profileChanges := map[string]any{}
	if in.Role != nil {
		role := strings.TrimSpace(*in.Role)
		if !models.ValidRole(role) {
			fields.Add("role", "must be one of admin, researcher, viewer")
		}
		profileChanges["role"] = role
	}
	if in.Department != nil {
		v := strings.TrimSpace(*in.Department)
		checkLength(fields, "department", v, 100)
		profileChanges["department"] = v
	}
	if errFields := fields.Err(); errFields != nil {
		return nil, errFields
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, errLoad := loadIdentity(ctx, tx, userID)
		if errLoad != nil {
			return errLoad
		}
		if in.IsStaff != nil {
			if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).Update("is_staff", *in.IsStaff).Error; errUpdate != nil {
				return apperr.Internal("update staff flag", errUpdate)
			}
		}
		if len(profileChanges) > 0 {
			if errUpdate := tx.Model(&models.Profile{}).Where("id = ?", current.Profile.ID).Updates(profileChanges).Error; errUpdate != nil {
				return apperr.Internal("update profile", errUpdate)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return loadIdentity(ctx, s.db, userID)
}

// StaffInput is the payload of CreateStaff.
type StaffInput struct {
	Username string
	Email    string
	Password string
}

// CreateStaff creates an active, verified staff account with the admin role.
func (s *Service) CreateStaff(ctx context.Context, in StaffInput) (*Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	fields := apperr.FieldErrors{}
	checkUsername(fields, in.Username)
	checkEmail(fields, in.Email)
	checkNewPassword(fields, "password", in.Password, in.Password, "password")
	if errFields := fields.Err(); errFields != nil {
		return nil, errFields
	}
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, apperr.Internal("hash password", errHash)
	}

	var userID uint64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errTaken := checkIdentifiersFree(ctx, tx, in.Username, in.Email, 0); errTaken != nil {
			return errTaken
		}
		user, errCreate := createAccount(tx, RegisterInput{Username: in.Username, Email: in.Email}, hash, s.now())
		if errCreate != nil {
			return errCreate
		}
		profile, errProfile := createProfile(tx, user.ID)
		if errProfile != nil {
			return errProfile
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"is_active": true,
			"is_staff":  true,
		}).Error; errUpdate != nil {
			return errUpdate
		}
		if errUpdate := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
			"role":           models.RoleAdmin,
			"email_verified": true,
			"ever_verified":  true,
		}).Error; errUpdate != nil {
			return errUpdate
		}
		userID = user.ID
		return nil
	})
	if errTx != nil {
		if db.IsUniqueViolation(errTx) {
			return nil, apperr.Field("username", "a user with that username or email already exists")
		}
		if apperr.KindOf(errTx) != apperr.KindInternal {
			return nil, errTx
		}
		return nil, apperr.Internal("create staff", errTx)
	}
	log.WithField("user_id", userID).Info("account: staff account created")
	return loadIdentity(ctx, s.db, userID)
}
