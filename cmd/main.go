/**
 * @description
 * This is the main entry point for the banking service. It is responsible for
 * initializing all components of the service, including configuration, logging,
 * the database connection and migrations, the message broker, repositories, the
 * core application services, scheduled maintenance, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - net/http, os/signal: Standard Go libraries for the HTTP server and shutdown.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/golang-migrate/migrate/v4: Schema migrations at boot.
 * - github.com/robfig/cron/v3: Scheduled credential sweeps.
 * - go.uber.org/zap: Structured logging.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq, pkg/sms: Event publishing and OTP delivery.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsb/banking-service/internal/api"
	"github.com/tsb/banking-service/internal/app"
	"github.com/tsb/banking-service/internal/config"
	"github.com/tsb/banking-service/internal/store"
	"github.com/tsb/banking-service/pkg/rabbitmq"
	"github.com/tsb/banking-service/pkg/sms"
)

func main() {
	// Load a local .env file if present; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("banking service starting", zap.String("port", cfg.ServerPort))

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Fatal("JWT secret must be configured", zap.String("env", "JWT_SECRET"))
	}

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	// Scan NUMERIC columns straight into decimal.Decimal values.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Run schema migrations before serving traffic.
	m, err := migrate.New(cfg.MigrationsURL, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}
	logger.Info("database migrations completed")

	// Initialize the RabbitMQ producer to publish events. The service only
	// publishes; transfer outcomes never depend on the broker.
	var eventPublisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger.Named("rabbitmq"))
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", zap.Error(err))
		eventPublisher = &rabbitmq.EventProducerFallback{Logger: logger.Named("rabbitmq")}
	} else {
		defer producer.Close()
		eventPublisher = producer
		logger.Info("rabbitmq producer connected")
	}

	// Redis backs OTP rate limiting; the service degrades to database counts
	// when Redis is not available.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; otp rate limiting falls back to database", zap.Error(parseErr))
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				logger.Warn("redis ping failed; otp rate limiting falls back to database", zap.Error(pingErr))
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				logger.Info("redis connected")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Token issuing and verification.
	tokens, err := app.NewTokenIssuer(
		cfg.JWTSecret,
		cfg.JWTIssuer,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLHours)*time.Hour,
	)
	if err != nil {
		logger.Fatal("token issuer init failed", zap.Error(err))
	}

	// Initialize the core application services with their dependencies.
	bankingService := app.NewService(repository, eventPublisher, logger.Named("transfer"))
	authService := app.NewAuthService(repository, tokens, logger.Named("auth"))

	var limiter app.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	otpService := app.NewOTPService(
		repository,
		authService,
		sms.NewMockSender(logger.Named("sms")),
		limiter,
		time.Duration(cfg.OTPTTLMinutes)*time.Minute,
		cfg.OTPMaxRequestsPerHr,
		logger.Named("otp"),
	)

	// Hourly sweep of expired refresh tokens and finished OTP codes.
	sweeper := app.NewCredentialSweeper(repository, logger.Named("sweeper"))
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", sweeper.Sweep); err != nil {
		logger.Fatal("failed to schedule credential sweep", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	bankingHandlers := api.NewBankingHandlers(bankingService, logger.Named("api"))
	authHandlers := api.NewAuthHandlers(authService, otpService, logger.Named("api"))
	router := api.BankingRoutes(bankingHandlers, authHandlers, tokens)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
