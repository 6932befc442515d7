package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/vedant2606-dev/bg-removal-service/internal/api"
	"github.com/vedant2606-dev/bg-removal-service/internal/config"
	"github.com/vedant2606-dev/bg-removal-service/internal/gateway/clipdrop"
	"github.com/vedant2606-dev/bg-removal-service/internal/gateway/razorpay"
	"github.com/vedant2606-dev/bg-removal-service/internal/handler"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/kafka"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/redis"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/svix"
	"github.com/vedant2606-dev/bg-removal-service/internal/observability"
	core "github.com/vedant2606-dev/bg-removal-service/internal/repository/postgres"
	service "github.com/vedant2606-dev/bg-removal-service/internal/services"
)

func main() {
	cfg := config.Load()

	shutdown := observability.Setup("bg-removal-service")
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	if err := core.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	accountRepo := core.NewPostgresAccountRepository(db)
	transactionRepo := core.NewPostgresTransactionRepository(db)
	usageRepo := core.NewPostgresUsageRepository(db)
	auditRepo := core.NewPostgresAuditRepository(db)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	auditProducer := kafka.NewProducer(cfg.KafkaBrokers)
	defer auditProducer.Close()

	verifier, err := svix.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		log.Fatalf("Failed to init webhook verifier: %v", err)
	}

	gateway := razorpay.NewClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	inference := clipdrop.NewClient(cfg.ClipDropBaseURL, cfg.ClipDropAPIKey)

	ledgerSvc := service.NewLedgerService(accountRepo, transactionRepo, redisClient, auditProducer, cfg.AuditTopic, gateway, cfg.Currency)
	imageSvc := service.NewImageService(accountRepo, usageRepo, inference, auditProducer, cfg.AuditTopic)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	auditConsumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.AuditTopic, "bg-removal-audit", auditRepo)
	go auditConsumer.Consume(consumerCtx)
	defer auditConsumer.Close()
	defer cancelConsumer()

	h := handler.NewHandler(ledgerSvc, imageSvc, verifier)
	router := api.SetupRouter(h, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
