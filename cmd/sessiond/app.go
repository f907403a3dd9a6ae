package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/identity"
	"github.com/MrEthical07/sessioncap/internal/config"
	"github.com/MrEthical07/sessioncap/internal/db"
	"github.com/MrEthical07/sessioncap/internal/db/migrate"
	"github.com/MrEthical07/sessioncap/session"
)

// app owns every long-lived dependency of the server.
type app struct {
	log        *slog.Logger
	engine     *sessioncap.Engine
	posts      identity.Posts
	purger     session.IdlePurger
	refreshTTL time.Duration
	cookie     cookieConfig

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	engCfg := cfg.Engine()
	a := &app{
		log:        log,
		refreshTTL: engCfg.JWT.RefreshTTL,
		cookie:     cookieConfig{secure: cfg.CookieSecure, maxAge: engCfg.JWT.RefreshTTL},
	}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	rdb, err := a.openRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err = db.Open(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
	}

	hasher, err := engCfg.Password.NewHasher()
	if err != nil {
		return nil, err
	}

	var dir sessioncap.Directory
	if pool != nil {
		dir, err = identity.NewPostgresDirectory(pool, hasher, identity.WithSchema(engCfg.Session.PostgresSchema))
		if err != nil {
			return nil, err
		}
		a.posts, err = identity.NewPostgresPosts(pool, identity.WithSchema(engCfg.Session.PostgresSchema))
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("DATABASE_URL not set; users and posts are kept in memory")
		dir, err = identity.NewMemoryDirectory(hasher)
		if err != nil {
			return nil, err
		}
		a.posts = identity.NewMemoryPosts()
	}

	b := sessioncap.New().
		WithConfig(engCfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithPosts(a.posts).
		WithLogger(log).
		WithAuditSink(sessioncap.NewSlogSink(log.With("component", "audit")))

	switch cfg.SessionBackend {
	case config.BackendRedis:
		// Builder default for a Redis client.
	case config.BackendPostgres:
		store, err := session.NewPostgresStore(pool, session.WithSchema(engCfg.Session.PostgresSchema))
		if err != nil {
			return nil, err
		}
		a.purger = store
		b = b.WithSessionStore(store)
	default:
		store := session.NewMemoryStore()
		a.purger = store
		b = b.WithSessionStore(store)
	}

	a.engine, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	a.closers = append(a.closers, a.engine.Close)
	ready = true
	return a, nil
}

// openRedis connects to addr, or starts an embedded server when addr is
// empty so the login throttle still works in single-process runs.
func (a *app) openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("embedded redis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		a.log.Warn("REDIS_ADDR not set; login throttle uses an embedded in-process redis")
		addr = mr.Addr()
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb, nil
}

// runJanitor purges sessions idle for longer than the refresh lifetime from
// stores that have no native expiry. Redis keys expire on their own.
func (a *app) runJanitor(ctx context.Context, every time.Duration) {
	if a.purger == nil {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := a.purger.PurgeIdleBefore(ctx, now.Add(-a.refreshTTL))
			if err != nil {
				a.log.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Info("purged idle sessions", "count", n)
			}
		}
	}
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
