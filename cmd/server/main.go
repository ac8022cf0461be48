package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jefjesuswt/accounts-server/internal/config"
	"github.com/jefjesuswt/accounts-server/internal/db"
	internalhttp "github.com/jefjesuswt/accounts-server/internal/http"
	"github.com/jefjesuswt/accounts-server/internal/mailer"
	"github.com/jefjesuswt/accounts-server/internal/repository"
	"github.com/jefjesuswt/accounts-server/internal/storage"
	"github.com/jefjesuswt/accounts-server/internal/tokens"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	store := repository.NewStore(pool)
	codes := tokens.NewStore(rdb, cfg.ConfirmTokenTTL, cfg.ResetCodeTTL)

	var m mailer.Mailer
	if cfg.AMQPURL != "" {
		amqpMailer, err := mailer.NewAMQP(cfg.AMQPURL, cfg.EmailExchange, cfg.EmailFrom, cfg.PublicBaseURL)
		if err != nil {
			logger.Fatal("amqp connection failed", zap.Error(err))
		}
		defer amqpMailer.Close()
		m = amqpMailer
	} else {
		logger.Warn("AMQP_URL not set, emails are logged to stdout")
		m = mailer.NewConsole(cfg.PublicBaseURL)
	}

	var objectStorage internalhttp.ObjectStorage
	if cfg.S3Bucket != "" {
		s3Storage, err := storage.NewS3(ctx, storage.Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			BaseURL:   cfg.S3BaseURL,
		})
		if err != nil {
			logger.Fatal("s3 client init failed", zap.Error(err))
		}
		objectStorage = s3Storage
	} else {
		logger.Warn("S3_BUCKET not set, profile picture uploads are disabled")
	}

	server, err := internalhttp.NewServer(cfg, store, codes, m, objectStorage, logger)
	if err != nil {
		logger.Fatal("server init failed", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("accounts-server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
