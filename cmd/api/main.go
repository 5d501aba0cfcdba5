package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instantin-core-api/internal/cache"
	"instantin-core-api/internal/config"
	"instantin-core-api/internal/event"
	"instantin-core-api/internal/handler"
	"instantin-core-api/internal/middleware"
	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/internal/router"
	"instantin-core-api/internal/service"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting InstantIn core API...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Ledger store (backend selected by config)
	var ledger repository.Ledger
	switch cfg.Ledger.Type {
	case "postgres", "postgresql":
		pg, err := repository.NewPostgresLedger(cfg.Ledger.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL ledger: %v", err)
		}
		ledger = pg
		log.Println("PostgreSQL ledger initialized")
	default: // sqlite
		lite, err := repository.NewSQLiteLedger(cfg.Ledger.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite ledger: %v", err)
		}
		ledger = lite
		log.Println("SQLite ledger initialized")
	}
	defer ledger.Close()

	// Platform storefront directory (optional; the core degrades to
	// defaults without it)
	var directory repository.StorefrontDirectory
	if cfg.PlatformDB.Enabled {
		dir, err := repository.NewMySQLStorefrontDirectory(cfg.PlatformDB.DSN())
		if err != nil {
			log.Printf("Warning: platform directory unavailable: %v", err)
		} else {
			defer dir.Close()
			directory = dir
		}
	}

	// Redis (visit dedup, analytics, rate limiting)
	var redisClient *goredis.Client
	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed: %v", err)
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	var deduper service.VisitDeduper
	var views handler.VisitCounter
	if redisClient != nil {
		deduper = cache.NewVisitorDeduper(redisClient, "")
		analytics := cache.NewAnalyticsBuffer(redisClient, "", cfg.Cache.AnalyticsFlushInterval,
			func(ctx context.Context, deltas map[string]int64) error {
				// Analytics counters live outside the transactional core;
				// the flush target is the platform's own pipeline, so for
				// now the deltas are only logged.
				log.Printf("[Analytics] %d storefront counter deltas", len(deltas))
				return nil
			})
		defer analytics.Stop()
		views = analytics
	}

	// Event publisher (payouts, drop status, raffle winners)
	var publisher event.Publisher
	if cfg.Kafka.Enabled {
		kp, err := event.NewKafkaPublisher(cfg.Kafka.Brokers)
		if err != nil {
			log.Printf("Warning: Kafka unavailable, falling back to log publisher: %v", err)
			publisher = event.NewLogPublisher()
		} else {
			publisher = kp
		}
	} else {
		publisher = event.NewLogPublisher()
	}
	defer publisher.Close()

	// Services
	inventoryService := service.NewInventoryService(ledger)
	dropService := service.NewDropService(ledger, publisher)
	raffleService := service.NewRaffleService(ledger, ledger, directory, deduper, publisher,
		service.RaffleConfig{
			WinnerCount:      cfg.Raffle.WinnerCount,
			TicketsPerDollar: cfg.Raffle.TicketsPerDollar,
		},
		rand.New(rand.NewSource(time.Now().UnixNano())))
	orderService := service.NewOrderService(ledger, inventoryService, dropService, raffleService,
		publisher, model.BasisPoints(cfg.App.PlatformFeeBP))

	scheduler := service.NewRaffleScheduler(raffleService, service.SchedulerConfig{
		TickInterval: cfg.Raffle.SchedulerTick,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Rate limiter for the public visit beacon
	var rateLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimiter = middleware.RateLimit(redisClient, cfg.Cache.RateLimitRequests, cfg.Cache.RateLimitWindow)
	}

	// Router
	r := router.New(router.Config{
		Handler:        handler.New(ledger, cfg.App.Version),
		ProductHandler: handler.NewProductHandler(inventoryService),
		OrderHandler:   handler.NewOrderHandler(orderService),
		DropHandler:    handler.NewDropHandler(dropService),
		RaffleHandler:  handler.NewRaffleHandler(raffleService, ledger, views),
		AdminHandler:   handler.NewAdminHandler(ledger, cfg.Ledger.Type),
		RateLimiter:    rateLimiter,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
