package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatelock/gatelock-auth/internal/config"
	httptransport "github.com/gatelock/gatelock-auth/internal/http"
	"github.com/gatelock/gatelock-auth/internal/http/handler"
	httpmiddleware "github.com/gatelock/gatelock-auth/internal/http/middleware"
	"github.com/gatelock/gatelock-auth/internal/jwt"
	"github.com/gatelock/gatelock-auth/internal/lockout"
	"github.com/gatelock/gatelock-auth/internal/migrations"
	"github.com/gatelock/gatelock-auth/internal/password"
	"github.com/gatelock/gatelock-auth/internal/repository"
	"github.com/gatelock/gatelock-auth/internal/server"
	"github.com/gatelock/gatelock-auth/internal/service"
	"github.com/gatelock/gatelock-auth/internal/telemetry"
	"github.com/gatelock/gatelock-auth/internal/timing"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newAccountRepository,
			newPasswordHasher,
			newTokenGenerator,
			newLockoutPolicy,
			newTimingPolicy,
			newAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return repository.NewPostgresAccountRepo(pool)
}

func newPasswordHasher() password.Hasher {
	return password.NewBcryptHasher(bcrypt.DefaultCost)
}

func newTokenGenerator(cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator([]byte(cfg.JWTSecret), cfg.TokenIssuer, cfg.AccessTokenTTL)
}

func newLockoutPolicy(accounts repository.AccountRepository, cfg config.Config, logger *zap.Logger) *lockout.Policy {
	return lockout.NewPolicy(accounts, lockout.Config{
		MaxAttempts:  cfg.MaxLoginAttempts,
		LockDuration: cfg.LockoutDuration,
	}, logger)
}

func newTimingPolicy(cfg config.Config) *timing.Policy {
	return timing.NewPolicy(cfg.MinResponseTime, cfg.EndpointMinResponseTimes)
}

func newAuthService(
	accounts repository.AccountRepository,
	hasher password.Hasher,
	tokens *jwt.Generator,
	lockoutPolicy *lockout.Policy,
	timingPolicy *timing.Policy,
	cfg config.Config,
	logger *zap.Logger,
) *service.AuthService {
	return service.NewAuthService(accounts, hasher, tokens, lockoutPolicy, timingPolicy, cfg, logger)
}

func newAuthMiddleware(tokens *jwt.Generator) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Tokens: tokens}
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
