package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/careplus-reminders/internal/appointments"
	"github.com/wolfman30/careplus-reminders/internal/audit"
	appconfig "github.com/wolfman30/careplus-reminders/internal/config"
	"github.com/wolfman30/careplus-reminders/internal/dispatch"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildIdempotencyGuard wraps the Redis client, or returns nil when Redis is off.
func BuildIdempotencyGuard(client *redis.Client, cfg *appconfig.Config) *dispatch.IdempotencyGuard {
	if client == nil {
		return nil
	}
	ttl := time.Duration(0)
	if cfg != nil {
		ttl = cfg.IdempotencyTTL
	}
	return dispatch.NewIdempotencyGuard(client, ttl)
}

// Storage bundles the reminder ledger and the audit log.
type Storage struct {
	Pool         *pgxpool.Pool
	SQL          *sql.DB
	Appointments appointments.Repository
	Audit        *audit.Service
	MemoryAudit  *audit.MemoryLog
}

// AuditLogger returns whichever audit backend is active.
func (s *Storage) AuditLogger() audit.Logger {
	if s.Audit != nil {
		return s.Audit
	}
	return s.MemoryAudit
}

// AuditReader returns whichever audit backend is active.
func (s *Storage) AuditReader() audit.Reader {
	if s.Audit != nil {
		return s.Audit
	}
	return s.MemoryAudit
}

// Ping checks the database; it is a no-op for in-memory storage.
func (s *Storage) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases database handles.
func (s *Storage) Close() {
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// BuildStorage connects to Postgres when DATABASE_URL is set and falls back to
// in-memory stores otherwise.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory reminder ledger and audit log")
		return &Storage{
			Appointments: appointments.NewInMemoryRepository(),
			MemoryAudit:  audit.NewMemoryLog(),
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)

	logger.Info("connected to postgres")
	return &Storage{
		Pool:         pool,
		SQL:          sqlDB,
		Appointments: appointments.NewPostgresRepository(pool),
		Audit:        audit.NewService(sqlDB),
	}, nil
}
