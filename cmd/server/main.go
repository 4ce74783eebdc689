// Command server runs the vault-agents HTTP API.
//
// @title                       Vault Agents API
// @version                     1.0
// @description                 Multi-agent access to a shared vault: accounts, agents, auth tokens and sessions.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/api"
	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/api/handler"
	"github.com/99minutos/vault-agents/internal/core/ports"
	"github.com/99minutos/vault-agents/internal/core/service"
	"github.com/99minutos/vault-agents/internal/infrastructure/config"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/memory"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/mongo"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/redis"
	"github.com/99minutos/vault-agents/internal/infrastructure/queue"
	"github.com/99minutos/vault-agents/internal/infrastructure/vault"
	"github.com/99minutos/vault-agents/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Development(),
		Service: "vault-agents",
	})

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	dispatcher := queue.NewDispatcher(cfg.ActivityWorkers, service.NewActivityRecorder(b.agents), logger.Component("activity"))
	dispatcher.Start(ctx)

	gw := service.NewGateway(service.Deps{
		Accounts:   b.accounts,
		Agents:     b.agents,
		Tokens:     b.tokens,
		Locker:     b.locker,
		Vaults:     vault.NewMemory(),
		Activity:   dispatcher,
		BcryptCost: cfg.BcryptCost,
		Logger:     logger.Get(),
	})

	sessions := auth.NewRegistry(cfg.SessionTTL, logger.Component("sessions"))
	go sessions.Run(ctx, cfg.TokenSweepInterval)
	if b.sweeper != nil {
		go b.sweeper.RunSweeper(ctx, cfg.TokenSweepInterval, logger.Component("tokens"))
	}

	e := api.NewRouter(api.RouterConfig{
		Gateway:  gw,
		Sessions: sessions,
		Tokens:   auth.DefaultTokenConfig(cfg.JWTSecret, cfg.SessionTTL),
		Checks:   b.checks,
		Logger:   logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store).
			Str("tokens", cfg.Tokens).
			Str("locker", cfg.Locker).
			Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// backends are the storage adapters selected by configuration.
type backends struct {
	accounts ports.AccountRepository
	agents   ports.AgentRepository
	tokens   ports.TokenStore
	locker   ports.AccountLocker
	// sweeper is set when tokens live in process memory.
	sweeper *memory.TokenStore
	checks  map[string]handler.Check
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]handler.Check)}

	switch cfg.Store {
	case config.BackendMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		})
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			b.close()
			return nil, err
		}
		b.accounts = mongo.NewAccountRepository(db)
		b.agents = mongo.NewAgentRepository(db)
		b.checks["mongodb"] = handler.MongoCheck(db)
	default:
		b.accounts = memory.NewAccountRepository()
		b.agents = memory.NewAgentRepository()
	}

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		client, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			b.close()
			return nil, err
		}
		rdb = client
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks["redis"] = handler.RedisCheck(client)
	}

	if cfg.Tokens == config.BackendRedis {
		b.tokens = redis.NewTokenStore(rdb)
	} else {
		store := memory.NewTokenStore()
		b.tokens = store
		b.sweeper = store
	}

	if cfg.Locker == config.BackendRedis {
		b.locker = redis.NewLocker(rdb, cfg.LockTTL, logger.Component("locker"))
	} else {
		b.locker = memory.NewLocker()
	}

	return b, nil
}
