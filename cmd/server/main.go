package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	config "github.com/queueflow/queueflow/configs"
	"github.com/queueflow/queueflow/internal/api/handlers"
	"github.com/queueflow/queueflow/internal/api/middleware"
	job "github.com/queueflow/queueflow/internal/jobs"
	"github.com/queueflow/queueflow/internal/orchestrator"
	"github.com/queueflow/queueflow/internal/publisher"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/scheduler"
	"github.com/queueflow/queueflow/internal/service"
	"github.com/queueflow/queueflow/internal/storage"
	"github.com/queueflow/queueflow/internal/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	accountRepo := repository.NewAccountRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	contentRepo := repository.NewContentItemRepository(db)
	queueRepo := repository.NewQueueRepository(db)

	r2Store, err := storage.NewR2Store(*cfg)
	if err != nil {
		log.Fatalf("Failed to set up object storage: %v", err)
	}

	connectionService := service.NewConnectionService(*cfg, profileRepo, accountRepo)
	mediaService := service.NewMediaService(contentRepo, r2Store)
	queueService := service.NewQueueService(queueRepo, contentRepo)
	tokenService := service.NewTokenService(*cfg, profileRepo, accountRepo, service.TokenConfig{})

	registry := publisher.NewRegistry(
		publisher.NewInstagramPublisher(publisher.InstagramConfig{}),
		publisher.NewTiktokPublisher(publisher.TiktokConfig{
			Media:        r2Store,
			PollInterval: cfg.TiktokPollInterval,
			PollBudget:   cfg.TiktokPollBudget,
		}),
	)
	orch := orchestrator.New(connectionService, registry)

	engine := scheduler.New(*cfg, queueRepo, contentRepo, orch)
	engine.SetDispatcher(tasks.NewAsynqDispatcher(client))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	connection := handlers.NewConnectionHandler(connectionService)
	api.Get("/connections", connection.GetConnection)
	api.Post("/connections/set", connection.SetCredential)
	api.Post("/connections/use_parent", connection.UseParent)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/items/create", media.CreateItem)
	api.Get("/items", media.ListItems)
	api.Post("/items/remove", media.RemoveItem)

	publish := handlers.NewPublishHandler(contentRepo, orch, client)
	api.Post("/publish", publish.PublishItem)

	queue := handlers.NewQueueHandler(queueService)
	api.Post("/queues/create", queue.CreateQueue)
	api.Get("/queues", queue.ListQueues)
	api.Get("/queues/entries", queue.ListEntries)
	api.Post("/queues/entries/add", queue.AddEntry)
	api.Post("/queues/entries/remove", queue.RemoveEntry)
	api.Post("/queues/entries/reorder", queue.ReorderEntries)
	api.Post("/queues/scheduling", queue.UpdateScheduling)
	api.Post("/queues/pause", queue.PauseQueue)
	api.Post("/queues/resume", queue.ResumeQueue)
	api.Get("/queues/status", queue.QueueStatus)
	api.Get("/queues/errors", queue.QueueErrors)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(profileRepo, accountRepo, tokenService)

	c := cron.New()
	c.AddFunc("@every 10m", refreshTokenJob.RefreshTokens)
	c.Start()

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		worker := tasks.NewWorker(engine, orch, contentRepo)
		worker.Register(mux)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, db, engine)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, engine *scheduler.Engine) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	engine.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
