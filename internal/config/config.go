// Package config loads the service configuration from a YAML file overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config file resolution.
const (
	// DefaultConfigPath is used when neither a flag nor DNASTORE_CONFIG names a file.
	DefaultConfigPath = "config.yaml"
	// ConfigPathEnv names the environment variable holding the config path.
	ConfigPathEnv = "DNASTORE_CONFIG"
)

// AppConfig carries command-line level options.
type AppConfig struct {
	ConfigPath string
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release or test.
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the gorm connection.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
}

// AuthConfig configures the credential lifecycle.
type AuthConfig struct {
	SecretKey             string        `yaml:"secret_key"`
	VerificationTokenTTL  time.Duration `yaml:"verification_token_ttl"`
	PasswordResetTokenTTL time.Duration `yaml:"password_reset_token_ttl"`
	BcryptCost            int           `yaml:"bcrypt_cost"`
	LoginLimit            LimitConfig   `yaml:"login_limit"`
	EmailLimit            LimitConfig   `yaml:"email_limit"`
}

// LimitConfig is a fixed-window rate limit.
type LimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// MailConfig configures outbound email.
type MailConfig struct {
	Driver      string `yaml:"driver"` // log or nats.
	From        string `yaml:"from"`
	SiteName    string `yaml:"site_name"`
	FrontendURL string `yaml:"frontend_url"`
	NATSURL     string `yaml:"nats_url"`
	Subject     string `yaml:"subject"`
}

// RedisConfig configures the shared rate limiter backend. Empty Addr selects the in-process limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig configures S3-compatible document storage. Empty Bucket disables documents.
type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Region        string        `yaml:"region"`
	Bucket        string        `yaml:"bucket"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			Mode:            "release",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "file:data/dnastore.db",
		},
		Auth: AuthConfig{
			VerificationTokenTTL:  24 * time.Hour,
			PasswordResetTokenTTL: time.Hour,
			BcryptCost:            12,
			LoginLimit:            LimitConfig{Max: 10, Window: 15 * time.Minute},
			EmailLimit:            LimitConfig{Max: 5, Window: time.Hour},
		},
		Mail: MailConfig{
			Driver:      "log",
			From:        "noreply@localhost",
			SiteName:    "DNA Store",
			FrontendURL: "http://localhost:3000",
			Subject:     "dnastore.mail",
		},
		Storage: StorageConfig{
			Region:        "us-east-1",
			PresignExpiry: 15 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// ResolveConfigPath picks the config file path from the flag value, the environment or the default.
func ResolveConfigPath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(ConfigPathEnv)); v != "" {
		return v
	}
	return DefaultConfigPath
}

// ConfigExists reports whether the config file exists.
func ConfigExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads the YAML file at path (a missing file is not an error), loads .env
// and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", errEnv)
	}
	applyEnv(&cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"DATABASE_URL": &cfg.Database.DSN,
		"SECRET_KEY":   &cfg.Auth.SecretKey,
		"HTTP_ADDR":    &cfg.Server.Addr,
		"LOG_LEVEL":    &cfg.Log.Level,
		"REDIS_ADDR":   &cfg.Redis.Addr,
		"NATS_URL":     &cfg.Mail.NATSURL,
		"FRONTEND_URL": &cfg.Mail.FrontendURL,
	}
	for key, target := range overrides {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	if cfg.Mail.NATSURL != "" && cfg.Mail.Driver == "log" {
		if _, ok := os.LookupEnv("NATS_URL"); ok {
			cfg.Mail.Driver = "nats"
		}
	}
}

// Validate checks required values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database.dsn is required")
	}
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		return errors.New("config: auth.secret_key (or SECRET_KEY) is required")
	}
	if c.Auth.VerificationTokenTTL <= 0 || c.Auth.PasswordResetTokenTTL <= 0 {
		return errors.New("config: token ttls must be positive")
	}
	switch c.Mail.Driver {
	case "log":
	case "nats":
		if strings.TrimSpace(c.Mail.NATSURL) == "" {
			return errors.New("config: mail.nats_url is required for the nats driver")
		}
	default:
		return fmt.Errorf("config: unknown mail driver %q", c.Mail.Driver)
	}
	return nil
}

// StorageEnabled reports whether document storage is configured.
func (c Config) StorageEnabled() bool {
	return strings.TrimSpace(c.Storage.Bucket) != ""
}
