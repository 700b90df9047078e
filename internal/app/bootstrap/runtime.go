// Package bootstrap wires the clinic services from configuration so the API,
// the worker binaries and the sweep function share one assembly.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
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

// BuildPostgres opens the pgx pool used by the audit trail and the
// database/sql handle used by the sweep history. Both are nil when no
// DATABASE_URL is configured.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open pgx pool: %w", err)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not reachable at startup", "error", err)
	}
	return pool, db, nil
}

// BuildRecordBackend picks the in-memory store for local runs and DynamoDB
// otherwise.
func BuildRecordBackend(awsCfg aws.Config, cfg *appconfig.Config, m *metrics.StoreMetrics, logger *logging.Logger) records.Backend {
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory record store; data is lost on restart")
		return records.NewMemoryBackend()
	}
	return records.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), "", m, logger)
}

// BuildEmailSender returns the configured provider, falling back to the
// logging stub.
func BuildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			logger.Warn("sendgrid selected without api key; using stub email sender")
			break
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}
