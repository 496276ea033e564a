package account

import (
	"context"
	"strings"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProfileUpdate is a partial profile update; nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName  *string
	LastName   *string
	Email      *string
	Phone      *string
	Department *string
}

// UpdateProfileResult reports the updated identity and the outcome of a re-verification email.
type UpdateProfileResult struct {
	Identity
	EmailChanged bool
	EmailSent    bool
}

// Profile returns the identity of userID.
func (s *Service) Profile(ctx context.Context, userID uint64) (*Identity, error) {
	return loadIdentity(ctx, s.db, userID)
}

// UpdateProfile applies a partial update. Changing the email marks it unverified
// and sends a new verification link; the account stays active.
func (s *Service) UpdateProfile(ctx context.Context, userID uint64, in ProfileUpdate) (*UpdateProfileResult, error) {
	fields := apperr.FieldErrors{}
	userChanges := map[string]any{}
	profileChanges := map[string]any{}

	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		checkLength(fields, "first_name", v, 150)
		userChanges["first_name"] = v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		checkLength(fields, "last_name", v, 150)
		userChanges["last_name"] = v
	}
	if in.Phone != nil {
		v := strings.TrimSpace(*in.Phone)
		checkLength(fields, "phone", v, 20)
		profileChanges["phone"] = v
	}
	if in.Department != nil {
		v := strings.TrimSpace(*in.Department)
		checkLength(fields, "department", v, 100)
		profileChanges["department"] = v
	}
	newEmail := ""
	if in.Email != nil {
		newEmail = strings.TrimSpace(*in.Email)
		checkEmail(fields, newEmail)
	}
	if errFields := fields.Err(); errFields != nil {
		return nil, errFields
	}

	result := &UpdateProfileResult{}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, errLoad := loadIdentity(ctx, tx, userID)
		if errLoad != nil {
			return errLoad
		}
		if newEmail != "" && !strings.EqualFold(newEmail, current.User.Email) {
			if errTaken := checkIdentifiersFree(ctx, tx, "", newEmail, userID); errTaken != nil {
				return errTaken
			}
			userChanges["email"] = newEmail
			profileChanges["email_verified"] = false
			result.EmailChanged = true
		} else if newEmail != "" && newEmail != current.User.Email {
			userChanges["email"] = newEmail
		}

		if len(userChanges) > 0 {
			if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).Updates(userChanges).Error; errUpdate != nil {
				return errUpdate
			}
		}
		if len(profileChanges) > 0 {
			if errUpdate := tx.Model(&models.Profile{}).Where("id = ?", current.Profile.ID).Updates(profileChanges).Error; errUpdate != nil {
				return errUpdate
			}
		}
		if result.EmailChanged {
			if errIssue := issueVerificationToken(tx, &current.Profile, s.now()); errIssue != nil {
				return errIssue
			}
		}

		updated, errReload := loadIdentity(ctx, tx, userID)
		if errReload != nil {
			return errReload
		}
		result.Identity = *updated
		return nil
	})
	if errTx != nil {
		if db.IsUniqueViolation(errTx) {
			return nil, apperr.Field("email", "a user with this email already exists")
		}
		if apperr.KindOf(errTx) != apperr.KindInternal {
			return nil, errTx
		}
		return nil, apperr.Internal("update profile", errTx)
	}

	if result.EmailChanged {
		log.WithField("user_id", userID).Info("account: email changed, re-verification required")
		result.EmailSent = s.sendVerification(ctx, &result.User, &result.Profile) == nil
	}
	return result, nil
}
