package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pace-go-api/internal/config"
	"github.com/noah-isme/pace-go-api/internal/database"
	"github.com/noah-isme/pace-go-api/internal/handler"
	"github.com/noah-isme/pace-go-api/internal/middleware"
	"github.com/noah-isme/pace-go-api/internal/models"
	"github.com/noah-isme/pace-go-api/internal/repository"
	"github.com/noah-isme/pace-go-api/internal/router"
	"github.com/noah-isme/pace-go-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Teacher{},
		&models.TeacherSubject{},
		&models.Subject{},
		&models.LessonTopic{},
		&models.Assessment{},
		&models.AssessmentQuestion{},
		&models.AssessmentInstance{},
		&models.LessonProgress{},
		&models.WindowReschedule{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, report caching and event fanout disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	progressRepo := repository.NewProgressRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	events := service.NewRescheduleEventPublisher(redisClient, cfg.EventChannelBase, natsConn, logger)
	events.Start(runCtx)

	progressService := service.NewProgressService(progressRepo, validate, cfg.MissedFallbackAfter, logger)
	rescheduleService := service.NewRescheduleService(rescheduleRepo, progressRepo, teacherRepo, events, validate, cfg.RescheduleReasonMinLength, logger)
	shuffleService := service.NewShuffleService(instanceRepo, questionRepo, validate, logger)
	reportService := service.NewReportService(progressRepo, redisClient, cfg.ReportCacheTTL, cfg.MissedFallbackAfter, validate, logger)

	progressHandler := handler.NewProgressHandler(progressService, logger)
	rescheduleHandler := handler.NewRescheduleHandler(rescheduleService, events, logger, 30*time.Second)
	instanceHandler := handler.NewInstanceHandler(shuffleService, logger)
	reportHandler := handler.NewReportHandler(reportService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ProgressHandler:   progressHandler,
		RescheduleHandler: rescheduleHandler,
		InstanceHandler:   instanceHandler,
		ReportHandler:     reportHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
