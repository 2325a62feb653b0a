package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-provisioner/internal/appointments"
	appconfig "github.com/wolfman30/telehealth-provisioner/internal/config"
	"github.com/wolfman30/telehealth-provisioner/internal/provisioning"
	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
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

// BuildTickLocker returns a cross-replica tick lock, or nil when Redis is not configured.
// A nil locker means this replica scans on every tick.
func BuildTickLocker(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) provisioning.Locker {
	if redisClient == nil || cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	locker, err := provisioning.NewRedisLocker(redisClient, cfg.MeetingLockKey)
	if err != nil {
		logger.Warn("tick lock disabled", "error", err)
		return nil
	}
	logger.Info("tick lock enabled", "key", cfg.MeetingLockKey)
	return locker
}

// BuildStore opens Postgres when DATABASE_URL is set and falls back to the in-memory store.
// The returned close func is never nil.
func BuildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (provisioning.Store, func(), error) {
	if cfg == nil {
		return nil, func() {}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
		return appointments.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return appointments.NewPostgresStore(pool), pool.Close, nil
}
