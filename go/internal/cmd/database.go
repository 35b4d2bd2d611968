package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/archive"
	"github.com/mcdev12/gambit/go/internal/config"
	"github.com/mcdev12/gambit/go/internal/dbconfig"
	"github.com/mcdev12/gambit/go/internal/stream"
)

// Resources are the external connections the server holds. Each may be nil
// when its backend is disabled.
type Resources struct {
	DB        *sql.DB
	Redis     *redis.Client
	Publisher *stream.JetStreamPublisher
}

func setupResources(ctx context.Context, cfg *config.Config) (*Resources, error) {
	res := &Resources{}

	if cfg.Env.DatabaseEnabled {
		database, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		res.DB = database
	} else {
		log.Warn().Msg("database disabled, game results will not be archived")
	}

	if cfg.Env.RedisAddr != "" {
		res.Redis = setupRedis(ctx, cfg)
	}

	if cfg.Env.NATSURL != "" {
		streamCfg := stream.DefaultConfig()
		streamCfg.URL = cfg.Env.NATSURL
		publisher, err := stream.NewJetStreamPublisher(ctx, streamCfg, nil)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to connect event stream: %w", err)
		}
		res.Publisher = publisher
	}
	return res, nil
}

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	dbConfig, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}

	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	database.SetMaxOpenConns(20)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := archive.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, err
	}

	log.Info().Str("dsn", dbConfig.Redacted()).Msg("connected to database")
	return database, nil
}

// setupRedis never fails: the rate limiter fails open while Redis is down.
func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Env.RedisAddr,
		Password: cfg.Env.RedisPassword,
		DB:       cfg.Env.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Env.RedisAddr).Msg("redis unreachable, rate limits fail open until it recovers")
	} else {
		log.Info().Str("addr", cfg.Env.RedisAddr).Msg("connected to redis")
	}
	return client
}

// Close releases every resource that was opened.
func (r *Resources) Close() {
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to drain event stream")
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
