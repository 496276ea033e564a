package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

// withDefaults fills unset pool options per dialect.
func (o Options) withDefaults(dialect string) Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
		if dialect == DialectSQLite {
			o.MaxOpenConns = 10
		}
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.SlowThreshold <= 0 {
		o.SlowThreshold = 500 * time.Millisecond
	}
	return o
}

// newGormLogger routes gorm's logger through logrus.
func newGormLogger(slow time.Duration) logger.Interface {
	return logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// sqlitePragmas are applied by the driver on every pooled connection.
var sqlitePragmas = []string{"foreign_keys(1)", "busy_timeout(5000)", "synchronous(NORMAL)"}

// Open opens a GORM connection based on the provided DSN.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	dialect, err := detectDialectFromDSN(trimmed)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults(dialect)

	var conn *gorm.DB
	switch dialect {
	case DialectPostgres:
		conn, err = openPostgres(trimmed, opts)
	default:
		conn, err = openSQLite(trimmed, opts)
	}
	if err != nil {
		return nil, err
	}
	if errPool := configurePool(conn, opts); errPool != nil {
		return nil, errPool
	}
	log.WithField("dialect", dialect).Debug("db: connection opened")
	return conn, nil
}

// detectDialectFromDSN infers the dialect from a DSN string.
func detectDialectFromDSN(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "user=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"),
		strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "sqlite3://"),
		!strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db: unsupported dsn: %s", dsn)
	}
}

// openPostgres opens PostgreSQL through pgx with sessions pinned to UTC.
func openPostgres(dsn string, opts Options) (*gorm.DB, error) {
	cfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", errParse)
	}
	cfg.RuntimeParams["timezone"] = "UTC"
	sqlDB := stdlib.OpenDB(*cfg, stdlib.OptionAfterConnect(func(_ context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamptz",
			OID:   pgtype.TimestamptzOID,
			Codec: &pgtype.TimestamptzCodec{ScanLocation: time.UTC},
		})
		return nil
	}))

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         newGormLogger(opts.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return conn, nil
}

// openSQLite opens a SQLite database, creating the parent directory of file databases.
func openSQLite(dsn string, opts Options) (*gorm.DB, error) {
	source, path := sqliteSource(dsn)
	if path != "" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
				return nil, fmt.Errorf("db: create sqlite dir: %w", errMkdir)
			}
		}
	}

	conn, err := gorm.Open(sqlite.Open(source), &gorm.Config{
		Logger:         newGormLogger(opts.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	return conn, nil
}

// sqliteSource rewrites sqlite:// URLs to file: DSNs and appends the driver
// pragmas. It also returns the on-disk path, empty for in-memory databases.
func sqliteSource(dsn string) (string, string) {
	source := strings.TrimSpace(dsn)
	lower := strings.ToLower(source)
	for _, scheme := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(lower, scheme) {
			source = "file:" + source[len(scheme):]
			lower = strings.ToLower(source)
			break
		}
	}

	base, query, _ := strings.Cut(source, "?")
	path := strings.TrimPrefix(strings.TrimPrefix(base, "file:"), "//")
	memory := path == "" || path == ":memory:" || strings.Contains(lower, "mode=memory")
	if memory {
		path = ""
	}

	params := []string{}
	if query != "" {
		params = append(params, query)
	}
	if !strings.Contains(lower, "_pragma=") {
		for _, pragma := range sqlitePragmas {
			params = append(params, "_pragma="+pragma)
		}
		if !memory {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
	}
	if len(params) == 0 {
		return base, path
	}
	return base + "?" + strings.Join(params, "&"), path
}

// configurePool applies pool limits and checks the connection.
func configurePool(conn *gorm.DB, opts Options) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return ping(sqlDB)
}

// ping verifies the database answers within five seconds.
func ping(sqlDB *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("db: ping: %w", errPing)
	}
	return nil
}
