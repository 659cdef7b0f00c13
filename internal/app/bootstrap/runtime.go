package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/locks"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
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
		return nil
	}
	return client
}

// BuildPostgresPool opens a pgx pool for DATABASE_URL. It returns nil when no
// URL is configured.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildStore selects the document backend named by STORE_BACKEND and bounds
// every call with STORE_TIMEOUT. The returned func releases backend
// resources the store owns.
func BuildStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, pool *pgxpool.Pool, logger *logging.Logger) (docstore.Store, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var (
		store docstore.Store
		closeFn = func() {}
	)
	switch cfg.StoreBackend {
	case appconfig.StoreMemory, "":
		if cfg.IsProduction() {
			return nil, nil, fmt.Errorf("bootstrap: memory store is not allowed in production")
		}
		logger.Warn("using in-memory document store; data is lost on restart")
		store = docstore.NewMemoryStore()
	case appconfig.StoreDynamo:
		if strings.TrimSpace(cfg.DynamoDBTable) == "" {
			return nil, nil, fmt.Errorf("bootstrap: DYNAMODB_TABLE is required for the dynamodb backend")
		}
		store = docstore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger)
	case appconfig.StorePostgres:
		if pool == nil {
			return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres backend")
		}
		store = docstore.NewPostgresStore(pool)
	case appconfig.StoreMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return nil, nil, fmt.Errorf("bootstrap: MONGODB_URI is required for the mongo backend")
		}
		db, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		store = docstore.NewMongoStore(db, logger)
		closeFn = func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect failed", "error", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}

	logger.Info("document store ready", "backend", backendName(cfg.StoreBackend), "timeout", cfg.StoreTimeout)
	return docstore.WithTimeout(store, cfg.StoreTimeout), closeFn, nil
}

func backendName(b string) string {
	if b == "" {
		return appconfig.StoreMemory
	}
	return b
}

// BuildLocker returns a Redis-backed locker when a client is available and
// an in-process one otherwise. The in-process locker only serialises callers
// inside one API instance; the store's unique claim still holds across them.
func BuildLocker(redisClient *redis.Client) locks.Locker {
	if redisClient == nil {
		return locks.NewMemoryLocker()
	}
	return locks.NewRedisLocker(redisClient)
}

// BuildDirectoryCache returns the registry cache for the directory service.
func BuildDirectoryCache(redisClient *redis.Client) directory.Cache {
	if redisClient == nil {
		return directory.NewMemoryCache()
	}
	return directory.NewRedisCache(redisClient)
}
