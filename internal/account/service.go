// Package account implements the credential lifecycle: registration, email
// verification, sessions, password reset and profile maintenance.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/mailer"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/ratelimit"
	"github.com/bgbm/dnastore/internal/scope"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options configures a Service.
type Options struct {
	SecretKey       string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	LoginLimiter    ratelimit.Limiter // keyed by username; nil disables
	EmailLimiter    ratelimit.Limiter // keyed by email; nil disables
}

// Service owns every account state transition.
type Service struct {
	db       *gorm.DB
	mailer   mailer.Mailer
	composer mailer.Composer
	opts     Options
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, m mailer.Mailer, composer mailer.Composer, opts Options) *Service {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if m == nil {
		m = mailer.LogMailer{}
	}
	return &Service{
		db:       db,
		mailer:   m,
		composer: composer,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Identity is an authenticated account with its profile.
type Identity struct {
	User    models.User
	Profile models.Profile
}

// Caller converts the identity into the registry caller.
func (i *Identity) Caller() scope.Caller {
	return scope.Caller{UserID: i.User.ID, Staff: i.IsStaff()}
}

// IsStaff reports whether the identity has unrestricted registry access.
func (i *Identity) IsStaff() bool {
	return i.User.IsStaff || i.Profile.IsStaff()
}

// loadIdentity reads the account and its profile. A missing profile is an invariant violation.
func loadIdentity(ctx context.Context, db *gorm.DB, userID uint64) (*Identity, error) {
	var user models.User
	if errFind := db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "account not found")
		}
		return nil, apperr.Internal("load account", errFind)
	}
	profile, errProfile := loadProfile(ctx, db, user.ID)
	if errProfile != nil {
		return nil, errProfile
	}
	return &Identity{User: user, Profile: *profile}, nil
}

// loadProfile reads the profile of userID.
func loadProfile(ctx context.Context, db *gorm.DB, userID uint64) (*models.Profile, error) {
	var profile models.Profile
	errFind := db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errFind == nil {
		return &profile, nil
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		log.WithField("user_id", userID).Error("account: profile missing for existing account")
		return nil, apperr.Internal("profile missing", errFind)
	}
	return nil, apperr.Internal("load profile", errFind)
}

// findUserByEmail looks an account up by case-insensitive email.
func findUserByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	errFind := db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Internal("find account by email", errFind)
	}
	return &user, nil
}

// throttle applies limiter to key. Limiter failures let the request through.
func throttle(ctx context.Context, limiter ratelimit.Limiter, key string) error {
	if limiter == nil {
		return nil
	}
	allowed, errAllow := limiter.Allow(ctx, key)
	if errAllow != nil {
		log.WithError(errAllow).WithField("key", key).Warn("account: rate limiter unavailable")
		return nil
	}
	if !allowed {
		return apperr.New(apperr.KindRateLimited, "too many attempts, try again later")
	}
	return nil
}

// send dispatches msg and logs failures.
func (s *Service) send(ctx context.Context, msg mailer.Message) error {
	if errSend := s.mailer.Send(ctx, msg); errSend != nil {
		log.WithError(errSend).WithFields(log.Fields{"to": msg.To, "subject": msg.Subject}).Error("account: email dispatch failed")
		return errSend
	}
	return nil
}
