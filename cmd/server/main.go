package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := config.LoadConfig()
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		postRepo    repository.PostRepository
		accountRepo repository.SocialAccountRepository
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store, nothing survives a restart")
		postRepo = repository.NewMemoryStore()
		accountRepo = repository.NewMemoryAccountStore()
	default:
		db, err := sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB(db)

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database is unreachable: %w", err)
		}
		postRepo = repository.NewPostRepository(db)
		accountRepo = repository.NewSocialAccountRepository(db)
	}

	mediaService, err := service.NewMediaService(ctx, cfg.R2, cfg.Platforms.RequestTimeout)
	if err != nil {
		return fmt.Errorf("media storage: %w", err)
	}
	credentialService := service.NewCredentialService(cfg, accountRepo)
	executor := service.NewPublishService(postRepo, credentialService, service.NewAdapters(cfg.Platforms, mediaService), log)

	pool := queue.NewPool(executor, cfg.Scheduler.WorkerConcurrent, log)

	var (
		backend     queue.Backend
		asynqServer *asynq.Server
		worker      *queue.Worker
	)
	if cfg.Scheduler.Backend == "asynq" {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURI)
		if err != nil {
			return fmt.Errorf("parsing REDIS_URI: %w", err)
		}
		backend = queue.NewAsynqBackend(redisOpt, log)
		asynqServer = queue.NewServer(redisOpt, cfg.Scheduler.WorkerConcurrent, log)
		worker = queue.NewWorker(executor, log)
	} else {
		log.Info("no durable queue configured, using in-process timers")
		backend = queue.NewTimerBackend(pool.Submit)
	}
	defer backend.Close()

	scheduler := queue.NewScheduler(postRepo, backend, pool, log)
	postService := service.NewPostService(postRepo, scheduler, executor)
	recurringService := service.NewRecurringService(postRepo)

	var locker job.Locker
	if cfg.Scheduler.DistributedLock && cfg.RedisURI != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			return fmt.Errorf("parsing REDIS_URI: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		locker = job.NewRedisLocker(rdb)
	}

	ticks := job.NewManager(locker, log)
	retryJob := job.NewRetryJob(postRepo, scheduler, cfg.Scheduler, log)
	recurrenceJob := job.NewRecurrenceJob(postRepo, scheduler, cfg.Scheduler, log)
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, credentialService, log)
	sweep := func(ctx context.Context) error {
		_, err := scheduler.Sweep(ctx, cfg.Scheduler.DueSweepEvery)
		return err
	}
	for _, t := range []struct {
		name  string
		every time.Duration
		run   func(context.Context) error
	}{
		{"retry", cfg.Scheduler.RetryEvery, retryJob.Run},
		{"recurrence", cfg.Scheduler.RecurringEvery, recurrenceJob.Run},
		{"due-sweep", cfg.Scheduler.DueSweepEvery, sweep},
		{"token-refresh", cfg.Scheduler.TokenRefreshEvery, refreshTokenJob.RefreshTokens},
	} {
		if err := ticks.Register(t.name, t.every, t.run); err != nil {
			return err
		}
	}

	if _, err := scheduler.RecoverOnStartup(ctx); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			log.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: cfg.FrontendURL != "" && cfg.FrontendURL != "*",
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	handlers.NewPostHandler(postService, recurringService).Register(api)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server is running", "addr", cfg.ListenAddr)
		return app.Listen(cfg.ListenAddr)
	})

	if asynqServer != nil {
		if err := asynqServer.Start(worker.Mux()); err != nil {
			return fmt.Errorf("could not start asynq server: %w", err)
		}
	}

	ticks.Start()

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		ticks.Stop()
		if asynqServer != nil {
			asynqServer.Shutdown()
		}
		err := app.ShutdownWithContext(shutdownCtx)
		return errors.Join(err, pool.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}
