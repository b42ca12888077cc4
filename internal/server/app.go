// Package server wires the auth service together: configuration, signing
// key, database and migrations, the refresh token store, and the HTTP and
// gRPC front ends. Run blocks until a signal arrives or a server fails.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	servers map[string]runner
}

// openDB and newRedisClient are replaced in tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRedisClient = func(addr string) *redis.Client {
		return redis.NewClient(&redis.Options{Addr: addr})
	}
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	return newApp(ctx, c, logger, repomanager.NewPostgresRepositoryManager())
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, rm repomanager.RepositoryManager) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	key, err := keys.Load(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	codec, err := auth.NewCodec(key, c.AccessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app = &App{config: c, logger: logger, db: db}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	store, err := app.newStore(ctx, rm)
	if err != nil {
		return nil, err
	}

	us := services.NewUserService(db, rm, logger)
	cf := cookies.NewFactory(cookies.Config{Path: c.CookiePath, Secure: c.CookieSecure})
	ss := services.NewSessionService(us, us, codec, store, cf, logger)

	h := httpapi.NewHandler(ss, us, codec, metrics.New(), logger)

	app.servers = map[string]runner{
		"http": httpapi.NewServer(c.HTTPAddr, h.Routes(), logger),
		"grpc": gs.NewGRPCServer(c.GRPCAddr, logger, codec),
	}

	return app, nil
}

func (app *App) newStore(ctx context.Context, rm repomanager.RepositoryManager) (refreshtokens.Store, error) {
	ttl := app.config.RefreshTokenValidityDuration

	switch app.config.RefreshStore {
	case config.RefreshStoreRedis:
		rdb := newRedisClient(app.config.RedisAddr)
		app.redis = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		app.logger.Info(ctx, "refresh tokens in redis", "address", app.config.RedisAddr)
		return refreshtokens.NewRedisStore(rdb, rm.Users(app.db), app.config.RedisPrefix, ttl, app.logger), nil
	default:
		app.logger.Info(ctx, "refresh tokens in postgres")
		return refreshtokens.NewSQLStore(app.db, rm, ttl, app.logger), nil
	}
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}
}

// Run starts every server and waits. The first server error, SIGINT,
// SIGTERM or SIGQUIT stops all of them.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, s := range app.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")

	return errors.Join(errs...)
}
