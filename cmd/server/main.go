package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nonogram/internal/api/handlers"
	"nonogram/internal/config"
	"nonogram/internal/entity"
	"nonogram/internal/errs"
	"nonogram/internal/jobs"
	"nonogram/internal/metrics"
	"nonogram/internal/repository"
	"nonogram/internal/service"
	"nonogram/internal/store"
	"nonogram/internal/store/memory"
	"nonogram/internal/websocket"
	"nonogram/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	reportLogger := logrus.New()
	reportLogger.SetLevel(level)
	reportLogger.SetFormatter(&logrus.JSONFormatter{})

	metricsManager := metrics.NewManager()
	reporter := errs.NewLogReporter(reportLogger, metricsManager)

	datastore, closeStore := initStore(cfg)
	versions, closeVersions := initVersions(cfg)

	entities := entity.NewFactory(datastore, reporter)
	levelRepo := repository.NewLevelRepository(datastore, entities, reporter)

	// Score submissions are persisted off the request path
	workerPool := worker.NewWorkerPool(cfg.Worker.Count, cfg.Worker.QueueSize, levelRepo, metricsManager)
	workerPool.Start()

	levelService := service.NewLevelService(levelRepo, entities, versions, workerPool, reporter, metricsManager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(versions, metricsManager)
	go hub.Run(ctx)

	purger := jobs.NewPurgeManager(levelRepo, metricsManager, jobs.PurgerConfig{
		Interval:  cfg.Purge.Interval,
		Retention: cfg.Purge.Retention,
	})
	if err := purger.Start(ctx); err != nil {
		log.Printf("Failed to start purger: %v", err)
	}

	levelHandler := handlers.NewLevelHandler(levelService, hub)

	app := fiber.New(fiber.Config{
		AppName:      "Nonogram Level Service",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	levelHandler.Register(app.Group("/api/v1"))
	app.Get("/metrics", adaptor.HTTPHandler(metricsManager.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(levelHandler.HandleWebSocket))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Nonogram Level Service API",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/levels",
				"GET /api/v1/levels/:id",
				"POST /api/v1/levels",
				"PUT /api/v1/levels/:id",
				"DELETE /api/v1/levels/:id",
				"POST /api/v1/progress",
				"GET /api/v1/users/:userId/levels/:levelId/scores",
				"GET /api/v1/health",
				"GET /metrics",
				"WS /ws (WebSocket)",
			},
			"websocket_clients": hub.GetClientCount(),
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")

		purger.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}

		// Flush pending score writes before the datastore goes away
		if err := workerPool.Shutdown(30 * time.Second); err != nil {
			log.Printf("Worker pool shutdown error: %v", err)
		}
		cancel()

		closeVersions()
		closeStore()
		log.Println("Server shutdown complete")
	}()

	port := cfg.Server.Port
	log.Printf("Server starting on port %d (storage: %s)...", port, cfg.Database.StorageType)
	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initStore opens the configured datastore and returns it with its release function
func initStore(cfg *config.Config) (store.Datastore, func()) {
	if cfg.Database.StorageType == config.StorageMemory {
		logrus.WithField("storage", cfg.Database.StorageType).Info("Use storage")
		return memory.NewStore(), func() {}
	}

	db, err := initPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	log.Println("Connected to PostgreSQL")

	postgresRepo := repository.NewPostgresRepository(db)
	if err := postgresRepo.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	return postgresRepo, func() {
		if err := postgresRepo.Close(); err != nil {
			log.Printf("Error closing PostgreSQL: %v", err)
		}
	}
}

// initVersions returns the catalog version counter, shared through Redis when enabled
func initVersions(cfg *config.Config) (repository.VersionCounter, func()) {
	if !cfg.Redis.Enabled {
		log.Println("Redis disabled, catalog version is process local")
		return &repository.LocalVersion{}, func() {}
	}

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	redisRepo := repository.NewRedisRepository(redisClient)
	return redisRepo, func() {
		if err := redisRepo.Close(); err != nil {
			log.Printf("Error closing Redis: %v", err)
		}
	}
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Workers plus headroom for request traffic
	maxOpen := cfg.Worker.Count + 10
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	log.Printf("PostgreSQL connection pool configured: MaxOpen=%d, MaxIdle=%d", maxOpen, 10)
	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Request failed",
		"message": err.Error(),
	})
}
