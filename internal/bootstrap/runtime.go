// Package bootstrap wires the post store and Redis for the commands in cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"codezen/internal/cache"
	"codezen/internal/config"
	"codezen/internal/database"
	"codezen/internal/repository"
	"codezen/internal/seed"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemo bool
	Seed     seed.Options
}

// Runtime holds the connections a server or tool runs on.
type Runtime struct {
	Driver   string
	PostRepo repository.PostRepository
	Redis    *redis.Client

	db    *gorm.DB
	mongo *mongo.Client
}

// InitRuntime connects the configured post store and Redis and optionally
// seeds demo threads. A missing or unreachable Redis is not an error.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Driver: cfg.StoreDriver}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.db = db
		rt.PostRepo = repository.NewPostRepository(db)
	case config.StoreDriverMongo:
		client, mdb, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		rt.mongo = client
		rt.PostRepo = repository.NewMongoPostRepository(mdb)
	case config.StoreDriverMemory:
		log.Println("Using in-memory post store; data is lost on restart")
		rt.PostRepo = repository.NewMemoryPostRepository()
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	if opts.SeedDemo {
		if _, err := seed.DemoIfEmpty(ctx, rt.PostRepo, opts.Seed); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to seed demo threads: %w", err)
		}
	}

	return rt, nil
}

// NewMemoryRuntime returns a Runtime over an in-memory store and the given
// Redis client, which may be nil.
func NewMemoryRuntime(rdb *redis.Client) *Runtime {
	return &Runtime{
		Driver:   config.StoreDriverMemory,
		PostRepo: repository.NewMemoryPostRepository(),
		Redis:    rdb,
	}
}

// PingStore checks that the post store is reachable.
func (r *Runtime) PingStore(ctx context.Context) error {
	switch {
	case r.db != nil:
		return database.Ping(ctx, r.db)
	case r.mongo != nil:
		return r.mongo.Ping(ctx, nil)
	default:
		return nil
	}
}

// Close releases the store and Redis connections.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.db != nil {
		if err := database.Close(r.db); err != nil {
			errs = append(errs, fmt.Errorf("close sql DB: %w", err))
		}
	}
	if r.mongo != nil {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.mongo.Disconnect(dctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
