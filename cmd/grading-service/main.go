package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examgrader/internal/common/cache"
	"examgrader/internal/common/db"
	commonmw "examgrader/internal/common/http/middleware"
	"examgrader/internal/common/mq"
	"examgrader/internal/common/storage"
	"examgrader/internal/grading/controller"
	"examgrader/internal/grading/grader"
	"examgrader/internal/grading/repository"
	"examgrader/internal/grading/service"
	"examgrader/internal/sandbox"
	"examgrader/pkg/monitoring"
	"examgrader/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath  = "configs/grading_service.yaml"
	healthCheckTimeout = 2 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "grading service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database.MySQLConfig)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	if appCfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, mysqlDB); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		logger.Info(ctx, "schema migrated")
	}
	dbProvider := db.Static(mysqlDB)

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var publisher service.EventPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		mqPublisher, err := service.NewMQEventPublisher(producer, appCfg.Grading.GradedTopic)
		if err != nil {
			return fmt.Errorf("init event publisher: %w", err)
		}
		publisher = mqPublisher
	} else {
		logger.Warn(ctx, "kafka brokers not configured, graded events disabled")
	}

	var archiver service.Archiver
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.MinIO.Bucket); err != nil {
			return fmt.Errorf("ensure archive bucket: %w", err)
		}
		objArchiver, err := service.NewObjectArchiver(objStorage, appCfg.MinIO.Bucket, appCfg.Grading.ArchivePrefix)
		if err != nil {
			return fmt.Errorf("init archiver: %w", err)
		}
		defer func() {
			_ = objArchiver.Close()
		}()
		archiver = objArchiver
	} else {
		logger.Warn(ctx, "minio endpoint not configured, submission archive disabled")
	}

	executor, err := sandbox.NewExecutor(appCfg.Sandbox)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	logger.Info(ctx, "sandbox ready", zap.Strings("languages", executor.Languages()))

	gradingService, err := service.NewGradingService(service.Config{
		Questions:        repository.NewQuestionRepository(dbProvider, redisCache, appCfg.Grading.BankCacheTTL, appCfg.Grading.BankEmptyTTL),
		Submissions:      repository.NewSubmissionRepository(dbProvider),
		Grader:           grader.New(grader.NewCodeEquivalenceGrader(executor)),
		Runner:           executor,
		Publisher:        publisher,
		Archiver:         archiver,
		GradeConcurrency: appCfg.Grading.GradeConcurrency,
		MaxCodeBytes:     appCfg.Grading.MaxCodeBytes,
		Timeouts:         appCfg.Grading.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init grading service: %w", err)
	}

	httpServer := buildHTTPServer(appCfg.Server, gradingService, mysqlDB, redisCache)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grading http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownTimeout, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownTimeout); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func buildHTTPServer(cfg ServerConfig, gradingService *service.GradingService, deps ...pinger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())
	router.Use(monitoring.MetricsMiddleware())

	router.GET("/healthz", healthHandler(deps...))
	router.GET("/metrics", monitoring.PrometheusHandler())

	controller.NewGradingController(gradingService).Register(router.Group("/api/v1"))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(deps ...pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		for _, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn(ctx, "health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
