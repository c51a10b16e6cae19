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

	"separation-service/config"
	"separation-service/internal/api"
	"separation-service/internal/broker"
	"separation-service/internal/hub"
	"separation-service/internal/models"
	"separation-service/internal/redisclient"
	"separation-service/internal/store"
	"separation-service/internal/util"
	"separation-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting separation service")

	tp, err := util.InitTracer("separation-service", cfg.Observ.JaegerEndpoint)
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

	var st api.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		st = pg
		log.Println("Database connected")
	} else {
		mem := store.NewMemory()
		seedDemoOrders(mem)
		st = mem
		log.Println("Using in-memory store with demo data")
	}

	var cache api.Cache
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, continuing without cache: %v", err)
		} else {
			defer redisClient.Close()
			cache = redisClient
			log.Println("Redis connected")
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var events api.EventPublisher
	var statsWorker *worker.StatsWorker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		log.Println("Kafka producer initialized")

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		statsWorker = worker.NewStatsWorker(consumer)
		go func() {
			if err := statsWorker.Start(workerCtx); err != nil {
				log.Printf("Stats worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	orderHub := hub.NewHub()
	handler := api.NewHandler(st, orderHub, events, cache, cfg.Server.Token)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if statsWorker != nil {
		statsWorker.Stop()
	}

	log.Println("Server exited")
}

// seedDemoOrders loads a couple of orders so the service is usable
// out of the box without a database.
func seedDemoOrders(mem *store.Memory) {
	mem.SeedOrder(models.Order{
		OrderNumber: "PED-1001",
		ClientName:  "Comercial Andrade LTDA",
		SellerName:  "Paulo Mendes",
		TotalValue:  1842.50,
	}, []models.OrderItem{
		{ProductCode: "ABR-010", ProductName: "Abraçadeira de nylon 200mm", Quantity: 50, UnitPrice: 0.45, TotalPrice: 22.50},
		{ProductCode: "PAR-250", ProductName: "Parafuso sextavado 1/4", Quantity: 200, UnitPrice: 0.30, TotalPrice: 60.00},
		{ProductCode: "TIN-778", ProductName: "Tinta acrílica branca 18L", Quantity: 4, UnitPrice: 440.00, TotalPrice: 1760.00},
	})
	mem.SeedOrder(models.Order{
		OrderNumber: "PED-1002",
		ClientName:  "Construtora Horizonte",
		SellerName:  "Ana Souza",
		TotalValue:  320.00,
	}, []models.OrderItem{
		{ProductCode: "CIM-001", ProductName: "Cimento CP-II 50kg", Quantity: 8, UnitPrice: 40.00, TotalPrice: 320.00},
	})
}
