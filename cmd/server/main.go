package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
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
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/api/handlers"
	"github.com/maheshrc27/post-dispatch/internal/api/middleware"
	job "github.com/maheshrc27/post-dispatch/internal/jobs"
	"github.com/maheshrc27/post-dispatch/internal/queue"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}
	setupLogger()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	postRepo := repository.NewPostRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)

	r2Service, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		log.Fatalf("R2 setup failed: %v", err)
	}
	var store service.ObjectStore
	if r2Service != nil {
		store = r2Service
	}

	connectionService := service.NewConnectionService(*cfg, connectionRepo)
	mediaService := service.NewMediaService(cfg.Twitter, store)
	uploadService := service.NewTwitterUploadService(cfg.Twitter, mediaService)
	webhookService := service.NewWebhookService(cfg.Webhook)
	publisherService := service.NewPublisherService(connectionService, webhookService, uploadService, postRepo, historyRepo)
	dispatcherService := service.NewDispatcherService(connectionService, publisherService, postRepo, cfg.PlatformConcurrency)
	postService := service.NewPostService(postRepo, historyRepo)
	notifier := service.NewNotifier(cfg.Slack)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
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

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService, dispatcherService, client)
	api.Get("/posts/:id", post.PostInfo)
	api.Get("/posts/:id/history", post.History)
	api.Post("/posts/:id/publish", post.PublishNow)
	api.Delete("/posts/:id", post.RemovePost)

	// scheduler
	schedulerJob := job.NewPublishSchedulerJob(cfg.Scheduler, postRepo, connectionService, dispatcherService, notifier)
	scheduler, err := schedulerJob.Start(ctx)
	if err != nil {
		log.Fatalf("Could not start scheduler: %v", err)
	}

	// queue
	queueW := queue.NewQueue(postRepo, dispatcherService)
	asynqServer := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

	slog.Info("starting the asynq server")
	if err := asynqServer.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "port", cfg.Port)

	gracefulShutdown(app, scheduler, asynqServer, cancel)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, scheduler *cron.Cron, asynqServer *asynq.Server, cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	scheduler.Stop()
	asynqServer.Shutdown()
	cancel()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	slog.Info("server shutdown complete")
}
