// Package app wires configuration, storage and services into the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/config"
	"github.com/bgbm/dnastore/internal/db"
	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/http/api/admin"
	"github.com/bgbm/dnastore/internal/http/api/front"
	"github.com/bgbm/dnastore/internal/mailer"
	"github.com/bgbm/dnastore/internal/ratelimit"
	"github.com/bgbm/dnastore/internal/registry"
	"github.com/bgbm/dnastore/internal/security"
	"github.com/bgbm/dnastore/internal/settings"
	"github.com/bgbm/dnastore/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Services bundles the components shared by the server and the CLI.
type Services struct {
	DB       *gorm.DB
	Accounts *account.Service
	Registry *registry.Service

	closers []io.Closer
}

// Close releases connections opened by Build.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if errClose := s.closers[i].Close(); errClose != nil {
			errs = append(errs, errClose)
		}
	}
	if sqlDB, errDB := s.DB.DB(); errDB == nil {
		if errClose := sqlDB.Close(); errClose != nil {
			errs = append(errs, errClose)
		}
	}
	return errors.Join(errs...)
}

// closerFunc adapts a func to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openDatabase opens and migrates the configured database.
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	conn, errOpen := db.Open(cfg.DSN, db.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		SlowThreshold:   cfg.SlowThreshold,
	})
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	return conn, nil
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, errOpen := openDatabase(cfg.Database)
	if errOpen != nil {
		return errOpen
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	log.WithContext(ctx).Info("database migrated")
	return nil
}

// Build opens the database and constructs every service from cfg.
func Build(ctx context.Context, cfg config.Config) (*Services, error) {
	security.SetHashCost(cfg.Auth.BcryptCost)

	conn, errOpen := openDatabase(cfg.Database)
	if errOpen != nil {
		return nil, errOpen
	}
	svc := &Services{DB: conn}

	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings: initial load failed, using config defaults")
	}

	m, errMailer := buildMailer(cfg.Mail, svc)
	if errMailer != nil {
		_ = svc.Close()
		return nil, errMailer
	}

	redisClient := buildRedis(ctx, cfg.Redis, svc)
	opts := account.Options{
		SecretKey:       cfg.Auth.SecretKey,
		VerificationTTL: cfg.Auth.VerificationTokenTTL,
		ResetTTL:        cfg.Auth.PasswordResetTokenTTL,
		LoginLimiter:    ratelimit.New(redisClient, "dnastore:ratelimit:login:", ratelimit.Policy(cfg.Auth.LoginLimit)),
		EmailLimiter:    ratelimit.New(redisClient, "dnastore:ratelimit:email:", ratelimit.Policy(cfg.Auth.EmailLimit)),
	}
	composer := mailer.Composer{SiteName: cfg.Mail.SiteName, FrontendURL: cfg.Mail.FrontendURL, From: cfg.Mail.From}
	svc.Accounts = account.NewService(conn, m, composer, opts)

	var docs storage.DocumentStore
	if cfg.StorageEnabled() {
		presigner, errPresigner := storage.NewPresigner(ctx, cfg.Storage)
		if errPresigner != nil {
			_ = svc.Close()
			return nil, errPresigner
		}
		docs = presigner
	} else {
		log.Info("storage: bucket not configured, request documents disabled")
	}
	svc.Registry = registry.NewService(conn, docs)
	return svc, nil
}

// buildMailer selects the mail transport.
func buildMailer(cfg config.MailConfig, svc *Services) (mailer.Mailer, error) {
	if cfg.Driver != "nats" {
		return mailer.LogMailer{}, nil
	}
	nc, errDial := mailer.DialNATS(cfg.NATSURL)
	if errDial != nil {
		return nil, errDial
	}
	svc.closers = append(svc.closers, closerFunc(nc.Drain))
	m, errMailer := mailer.NewNATSMailer(nc, cfg.Subject)
	if errMailer != nil {
		return nil, errMailer
	}
	log.WithField("subject", cfg.Subject).Info("mailer: publishing to nats")
	return m, nil
}

// buildRedis connects the shared rate limiter backend, or returns nil for the in-process limiter.
func buildRedis(ctx context.Context, cfg config.RedisConfig, svc *Services) redis.Cmdable {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	svc.closers = append(svc.closers, client)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		log.WithError(errPing).WithField("addr", cfg.Addr).Warn("ratelimit: redis unreachable, limits fail open until it recovers")
	}
	return client
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg config.Config, svc *Services) *gin.Engine {
	engine := gin.New()
	engine.Use(
		apihttp.RequestIDMiddleware(),
		apihttp.RecoveryMiddleware(),
		apihttp.AccessLogMiddleware(),
		apihttp.CORSMiddleware(cfg.Server.AllowedOrigins),
	)
	admin.RegisterAdminRoutes(engine, svc.DB, svc.Accounts)
	front.RegisterFrontRoutes(engine, svc.Accounts, svc.Registry)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	})
	return engine
}

// RunServer serves the API until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg config.Config) error {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	svc, errBuild := Build(ctx, cfg)
	if errBuild != nil {
		return errBuild
	}
	defer func() {
		if errClose := svc.Close(); errClose != nil {
			log.WithError(errClose).Warn("shutdown: close services")
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           NewRouter(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("dnastore listening on %s", cfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info("shutting down")
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("http shutdown: %w", errShutdown)
	}
	return nil
}

// CreateStaff creates an active staff account from the command line.
func CreateStaff(ctx context.Context, cfg config.Config, in account.StaffInput) (*account.Identity, error) {
	svc, errBuild := Build(ctx, cfg)
	if errBuild != nil {
		return nil, errBuild
	}
	defer func() { _ = svc.Close() }()
	return svc.Accounts.CreateStaff(ctx, in)
}
