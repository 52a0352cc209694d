package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-core/config"
	"marketplace-core/internal/api"
	"marketplace-core/internal/broker"
	"marketplace-core/internal/redisclient"
	"marketplace-core/internal/service"
	"marketplace-core/internal/store"
	"marketplace-core/internal/util"
	"marketplace-core/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace core")

	tp, err := util.InitTracer("marketplace-core", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMarketplace)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gateway := service.NewMockGateway(0.95)

	commissionEngine := service.NewCommissionEngine(db, db, eventPublisher)
	cartSplitter := service.NewCartSplitter(db, commissionEngine)
	fulfillmentRouter := service.NewFulfillmentRouter(db, redisClient, redisClient, eventPublisher, cfg.Routing.DefaultServiceLevel, cfg.Routing.MaxAlternatives)
	payoutScheduler := service.NewPayoutScheduler(
		db, db, commissionEngine, gateway, eventPublisher, redisClient, redisClient,
		cfg.Payout.Currency,
		cfg.Payout.MinAmountCents,
		time.Duration(cfg.Payout.TransferTimeoutSeconds)*time.Second,
	)

	stockSyncer := service.NewStockSyncer(db, redisClient)
	if err := stockSyncer.Sync(context.Background()); err != nil {
		log.Printf("Failed to sync stock snapshot to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentEvents, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentEventsWorker(paymentConsumer, payoutScheduler)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment events worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(cartSplitter, commissionEngine, fulfillmentRouter, payoutScheduler)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
