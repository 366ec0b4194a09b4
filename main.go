package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"dealrooms/config"
	"dealrooms/middleware"
	"dealrooms/realtime"
	"dealrooms/routes"
	"dealrooms/services"
	"dealrooms/utils"
	"dealrooms/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "DEALROOMS: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Sentry
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Optional redis for slow-mode coordination across instances
	var rdb *redis.Client
	if config.AppConfig.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
	}

	// Wire the service graph
	hub := realtime.NewHub()
	notificationService := services.NewNotificationService(config.DB, hub, log.New(os.Stdout, "NOTIFY: ", log.LstdFlags))
	messageService := services.NewMessageService(config.DB, hub, notificationService, rdb, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags))
	roomService := services.NewRoomService(config.DB, hub, messageService, log.New(os.Stdout, "ROOM: ", log.LstdFlags))
	moderationService := services.NewModerationService(config.DB, roomService, messageService, log.New(os.Stdout, "MOD: ", log.LstdFlags))
	aiService := services.NewAIService(messageService, utils.NewRaftAIClient(), logrus.StandardLogger())
	messageService.SetCommandHandler(aiService)

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	housekeepingWorker := worker.NewHousekeepingWorker(
		config.DB, messageService, notificationService,
		config.AppConfig.NotificationRetentionDays,
		log.New(os.Stdout, "HOUSEKEEPING: ", log.LstdFlags),
	)
	go housekeepingWorker.Start(ctx)

	if config.AppConfig.SMTP.Host != "" {
		mailer := utils.NewMailer()
		emailWorker := worker.NewEmailFallbackWorker(
			config.DB, notificationService, mailer,
			log.New(os.Stdout, "DIGEST: ", log.LstdFlags),
		)
		go emailWorker.Start(ctx)
	}

	// Setup routes
	routes.SetupRoutes(app, &routes.Services{
		Hub:           hub,
		Rooms:         roomService,
		Messages:      messageService,
		Notifications: notificationService,
		Moderation:    moderationService,
	})

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
