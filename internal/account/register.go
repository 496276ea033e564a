package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/security"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
}

// RegisterResult reports the created account and whether the verification email went out.
type RegisterResult struct {
	User        models.User
	Profile     models.Profile
	EmailSent   bool
	DispatchErr error
}

// Register creates an inactive, unverified account and sends the verification email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	fields := apperr.FieldErrors{}
	checkUsername(fields, in.Username)
	checkEmail(fields, in.Email)
	checkLength(fields, "first_name", in.FirstName, 150)
	checkLength(fields, "last_name", in.LastName, 150)
	checkNewPassword(fields, "password", in.Password, in.PasswordConfirm, "password_confirm")
	if errFields := fields.Err(); errFields != nil {
		return nil, errFields
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, apperr.Internal("hash password", errHash)
	}

	now := s.now()
	var (
		user    *models.User
		profile *models.Profile
	)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errTaken := checkIdentifiersFree(ctx, tx, in.Username, in.Email, 0); errTaken != nil {
			return errTaken
		}
		var errStep error
		if user, errStep = createAccount(tx, in, hash, now); errStep != nil {
			return errStep
		}
		if profile, errStep = createProfile(tx, user.ID); errStep != nil {
			return errStep
		}
		return issueVerificationToken(tx, profile, now)
	})
	if errTx != nil {
		if db.IsUniqueViolation(errTx) {
			if errTaken := checkIdentifiersFree(ctx, s.db, in.Username, in.Email, 0); errTaken != nil {
				return nil, errTaken
			}
			return nil, apperr.Field("username", "a user with that username or email already exists")
		}
		if apperr.KindOf(errTx) != apperr.KindInternal {
			return nil, errTx
		}
		return nil, apperr.Internal("register", errTx)
	}

	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("account: registered")

	result := &RegisterResult{User: *user, Profile: *profile, EmailSent: true}
	if errSend := s.sendVerification(ctx, user, profile); errSend != nil {
		result.EmailSent = false
		result.DispatchErr = errSend
	}
	return result, nil
}

// checkIdentifiersFree reports a validation error when username or email belong to
// another account. exceptID excludes the caller's own row.
func checkIdentifiersFree(ctx context.Context, tx *gorm.DB, username, email string, exceptID uint64) error {
	fields := apperr.FieldErrors{}
	if username != "" {
		var count int64
		if errCount := tx.WithContext(ctx).Model(&models.User{}).
			Where("username = ? AND id <> ?", username, exceptID).
			Count(&count).Error; errCount != nil {
			return apperr.Internal("check username", errCount)
		}
		if count > 0 {
			fields.Add("username", "a user with that username already exists")
		}
	}
	if email != "" {
		var count int64
		if errCount := tx.WithContext(ctx).Model(&models.User{}).
			Where("LOWER(email) = ? AND id <> ?", strings.ToLower(email), exceptID).
			Count(&count).Error; errCount != nil {
			return apperr.Internal("check email", errCount)
		}
		if count > 0 {
			fields.Add("email", "a user with this email already exists")
		}
	}
	return fields.Err()
}

// createAccount inserts the inactive account row.
func createAccount(tx *gorm.DB, in RegisterInput, hash string, now time.Time) (*models.User, error) {
	user := &models.User{
		Username:   in.Username,
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Password:   hash,
		IsActive:   false,
		IsStaff:    false,
		DateJoined: now,
	}
	if errCreate := tx.Create(user).Error; errCreate != nil {
		return nil, errCreate
	}
	return user, nil
}

// createProfile inserts the viewer profile of a new account.
func createProfile(tx *gorm.DB, userID uint64) (*models.Profile, error) {
	profile := &models.Profile{
		UserID:        userID,
		Role:          models.RoleViewer,
		EmailVerified: false,
	}
	if errCreate := tx.Create(profile).Error; errCreate != nil {
		return nil, errCreate
	}
	return profile, nil
}

// issueVerificationToken replaces the profile's verification token. Any previous token stops working.
func issueVerificationToken(tx *gorm.DB, profile *models.Profile, now time.Time) error {
	token := uuid.NewString()
	issuedAt := now
	if errUpdate := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(map[string]any{
		"verification_token":            token,
		"verification_token_created_at": issuedAt,
	}).Error; errUpdate != nil {
		return errUpdate
	}
	profile.VerificationToken = &token
	profile.VerificationTokenCreatedAt = &issuedAt
	return nil
}

// sendVerification composes and dispatches the verification email.
func (s *Service) sendVerification(ctx context.Context, user *models.User, profile *models.Profile) error {
	if profile.VerificationToken == nil {
		return errors.New("account: no verification token to send")
	}
	msg, errCompose := s.composer.Verification(user.Email, user.Username, *profile.VerificationToken, s.opts.VerificationTTL.String())
	if errCompose != nil {
		return errCompose
	}
	return s.send(ctx, msg)
}

// VerifyEmail consumes a verification token and activates the account.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.KindInvalidToken, "verification token is invalid")
	}
	now := s.now()
	var userID uint64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if errFind := tx.Where("verification_token = ?", token).First(&profile).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindInvalidToken, "verification token is invalid")
			}
			return apperr.Internal("find verification token", errFind)
		}
		if profile.VerificationTokenCreatedAt == nil || now.Sub(*profile.VerificationTokenCreatedAt) > s.opts.VerificationTTL {
			return apperr.New(apperr.KindExpiredToken, "verification token has expired")
		}

		res := tx.Model(&models.Profile{}).
			Where("id = ? AND verification_token = ?", profile.ID, token).
			Updates(map[string]any{
				"email_verified":                true,
				"ever_verified":                 true,
				"verification_token":            nil,
				"verification_token_created_at": nil,
			})
		if res.Error != nil {
			return apperr.Internal("consume verification token", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindInvalidToken, "verification token is invalid")
		}
		// Only a pending registration is activated here. Re-verifying a changed
		// email leaves is_active untouched so a staff disable sticks.
		if !profile.EverVerified {
			if errActivate := tx.Model(&models.User{}).Where("id = ?", profile.UserID).Update("is_active", true).Error; errActivate != nil {
				return apperr.Internal("activate account", errActivate)
			}
		}
		userID = profile.UserID
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	log.WithField("user_id", userID).Info("account: email verified")
	return loadIdentity(ctx, s.db, userID)
}

// ResendVerification issues a fresh verification token and emails it.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	fields := apperr.FieldErrors{}
	checkEmail(fields, email)
	if errFields := fields.Err(); errFields != nil {
		return errFields
	}
	if errLimit := throttle(ctx, s.opts.EmailLimiter, "resend:"+strings.ToLower(email)); errLimit != nil {
		return errLimit
	}

	user, errFind := findUserByEmail(ctx, s.db, email)
	if errFind != nil {
		return errFind
	}
	if user == nil {
		return apperr.Field("email", "no account is registered with this email")
	}

	var profile *models.Profile
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errLoad error
		if profile, errLoad = loadProfile(ctx, tx, user.ID); errLoad != nil {
			return errLoad
		}
		if profile.EmailVerified {
			return apperr.Field("email", "this email is already verified")
		}
		if profile.EverVerified && !user.IsActive {
			return apperr.New(apperr.KindAccountDisabled, "account is disabled")
		}
		if errIssue := issueVerificationToken(tx, profile, s.now()); errIssue != nil {
			return apperr.Internal("issue verification token", errIssue)
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}

	if errSend := s.sendVerification(ctx, user, profile); errSend != nil {
		return apperr.Wrap(apperr.KindDispatchFailure, "could not send verification email", errSend)
	}
	return nil
}
