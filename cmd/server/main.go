package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lalith-99/studybuddy/internal/api"
	"github.com/lalith-99/studybuddy/internal/auth"
	"github.com/lalith-99/studybuddy/internal/config"
	"github.com/lalith-99/studybuddy/internal/db"
	"github.com/lalith-99/studybuddy/internal/observ"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/realtime/ws"
	"github.com/lalith-99/studybuddy/internal/repository"
	"github.com/lalith-99/studybuddy/internal/repository/memory"
	"github.com/lalith-99/studybuddy/internal/repository/postgres"
	"github.com/lalith-99/studybuddy/internal/service"
	"github.com/lalith-99/studybuddy/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]api.HealthCheck)

	// ---------------------------------------------------------------
	// 3. Storage: Postgres, or the in-process store for local runs
	// ---------------------------------------------------------------
	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, db.PoolSize{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		store = postgres.NewStore(database.Pool())
		checks["postgres"] = database.Health
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New().Repositories()
	}

	// ---------------------------------------------------------------
	// 4. Realtime bus, presence and the token denylist. Without Redis
	//    they live in process, which only works for a single instance.
	// ---------------------------------------------------------------
	var (
		bus      realtime.Bus
		presence realtime.Presence
		revoked  auth.RevocationStore
	)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()

		bus = realtime.NewRedisBus(rdb, cfg.EventBacklog, logger)
		presence = realtime.NewRedisPresence(rdb)
		revoked = auth.NewRedisRevocations(rdb)
		checks["redis"] = func(ctx context.Context) error { return ping(ctx, rdb) }
	} else {
		logger.Warn("REDIS_URL not set; realtime and sign-out are local to this process")
		bus = realtime.NewMemoryBus(cfg.EventBacklog)
		presence = realtime.NewMemoryPresence()
		revoked = auth.NewMemoryRevocations()
	}
	defer bus.Close()

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL, revoked)
	adapter := realtime.NewAdapter(bus, presence)

	// ---------------------------------------------------------------
	// 5. Services, realtime endpoint, HTTP routes
	// ---------------------------------------------------------------
	services := service.New(store, tokens, adapter, logger)
	hub := ws.NewHub(adapter, services.Access, logger)

	router := api.NewRouter(api.RouterConfig{
		Services: services,
		Tokens:   tokens,
		Realtime: hub.Serve,
		Checks:   checks,
		Logger:   logger,
	})

	sweeper, err := worker.NewSweeper(cfg.CascadeSweepSchedule, services.Cascade, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// ---------------------------------------------------------------
	// 6. Run until a signal arrives or something fails, then drain.
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting StudyBuddy",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func ping(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
