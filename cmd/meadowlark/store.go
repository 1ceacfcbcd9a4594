package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/config"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/database"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/repository"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// backend is an opened document store plus whatever owns its connection.
type backend struct {
	store repository.Store
	close func(ctx context.Context) error
}

// withRetry retries open with doubling backoff to tolerate startup races.
func withRetry[T any](ctx context.Context, name string, attempts int, backoff time.Duration, open func(ctx context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = open(ctx)
		if err == nil {
			return v, nil
		}
		logger.Warnf("attempt %d/%d: failed to connect to %s: %v", attempt, attempts, name, err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return v, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return v, fmt.Errorf("could not connect to %s after %d attempts: %w", name, attempts, err)
}

func redisShared(cfg *config.Config) *database.Shared[*redis.Client] {
	return database.NewShared(
		func(ctx context.Context) (*redis.Client, error) {
			return database.ConnectRedis(ctx, database.RedisOptions{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Timeout:  5 * time.Second,
			})
		},
		func(_ context.Context, c *redis.Client) error { return c.Close() },
	)
}

// openBackend opens the configured store. redisConn is shared with the rate
// limiter and token revocations when the backend is redis.
func openBackend(ctx context.Context, cfg *config.Config, redisConn *database.Shared[*redis.Client], attempts int, backoff time.Duration) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warnf("using in-memory document store; data is lost on restart")
		return &backend{store: repository.NewMemoryRepo(), close: func(context.Context) error { return nil }}, nil

	case config.BackendMongoDB:
		conn := database.NewShared(
			func(ctx context.Context) (*mongo.Client, error) {
				return database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			},
			func(ctx context.Context, c *mongo.Client) error { return c.Disconnect(ctx) },
		)
		client, err := withRetry(ctx, "MongoDB", attempts, backoff, conn.Get)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database).Collection(repository.DocumentCollection))
		if err != nil {
			_ = conn.Close(ctx)
			return nil, err
		}
		return &backend{store: repo, close: conn.Close}, nil

	case config.BackendRedis:
		client, err := withRetry(ctx, "Redis", attempts, backoff, redisConn.Get)
		if err != nil {
			return nil, err
		}
		return &backend{store: repository.NewRedisRepository(client, cfg.Redis.Prefix), close: redisConn.Close}, nil

	case config.BackendBadger:
		conn := database.NewShared(
			func(context.Context) (*badger.DB, error) { return database.OpenBadger(cfg.Badger.Path, cfg.Badger.InMemory) },
			func(_ context.Context, db *badger.DB) error { return db.Close() },
		)
		db, err := conn.Get(ctx)
		if err != nil {
			return nil, err
		}
		return &backend{store: repository.NewBadgerRepo(db), close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
