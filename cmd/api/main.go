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

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/database"
	"github.com/noah-isme/gradeflow-api/internal/executor"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/middleware"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/observability"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/internal/router"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/pkg/embedding"
	"github.com/noah-isme/gradeflow-api/pkg/expr"
	"github.com/noah-isme/gradeflow-api/pkg/sandbox"
	openai "github.com/sashabaranov/go-openai"
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
		&models.Course{},
		&models.Assignment{},
		&models.Block{},
		&models.Feedback{},
		&models.AnalyticsBlock{},
		&models.AnalyticsBlockCache{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional backends: summaries fall back to direct
	// queries and evaluation events are simply not published.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		natsConn, err = database.ConnectNats(cfg.NatsURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	runner, err := sandbox.NewDockerRunner(sandbox.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox runner: %v", err)
	}

	evaluator := expr.New(cfg.ExpressionTimeout, logger)

	var comparer embedding.Comparer
	if cfg.OpenAIAPIKey != "" {
		comparer, err = embedding.NewOpenAIComparer(embedding.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  openai.EmbeddingModel(cfg.EmbeddingModel),
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create embedding comparer: %v", err)
		}
	}

	sandboxCfg := executor.SandboxConfig{
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		WorkspaceRoot: cfg.SandboxWorkspace,
	}

	registry, err := executor.NewRegistry(
		executor.NewRunCodeExecutor(runner, sandboxCfg, logger),
		executor.NewUnitTestExecutor(runner, sandboxCfg, logger),
		executor.NewIOTestExecutor(runner, sandboxCfg, evaluator, logger),
		executor.NewDatabaseCheckExecutor(cfg.SandboxDataRoot, logger),
		executor.NewGitDiffCheckExecutor(runner, sandboxCfg, logger),
		executor.NewEmbeddingCheckExecutor(comparer, cfg.EmbeddingThreshold, logger),
		executor.NewScoreExpressionExecutor(evaluator, logger),
		executor.NewTextFeedbackExecutor(),
	)
	if err != nil {
		log.Fatalf("failed to build executor registry: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	auth := service.NewRoleAuthorizer()
	events := service.NewEventPublisher(natsConn, cfg.NatsSubject, logger)

	blockRepo := repository.NewBlockRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	blockService := service.NewBlockService(blockRepo, auth, validate, logger)
	evaluationService := service.NewEvaluationService(blockRepo, feedbackRepo, registry, evaluator, auth, events, validate, logger)
	analyticsService := service.NewAnalyticsService(analyticsRepo, courseRepo, feedbackRepo, evaluator, auth, redisClient, cfg.AnalyticsCacheTTL, logger)

	blockHandler := handler.NewBlockHandler(blockService, logger)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		BlockHandler:      blockHandler,
		EvaluationHandler: evaluationHandler,
		AnalyticsHandler:  analyticsHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
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
