package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"exam-reservation-backend/config"
	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/api"
	"exam-reservation-backend/internal/auth"
	"exam-reservation-backend/internal/db"
	"exam-reservation-backend/internal/mw"
	"exam-reservation-backend/internal/notification"
	"exam-reservation-backend/internal/provision"
	"exam-reservation-backend/internal/stats"
	"exam-reservation-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "reservation-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := cfg.Reservation.Location()
	if err != nil {
		logger.Fatalf("invalid reservation timezone: %v", err)
	}

	// Push is optional; without keys notices are not sent.
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, store.WithLockTimeout(cfg.Reservation.LockTimeout))
	logger.Println("data store initialized")

	var recorder stats.Recorder = stats.NewMemoryRecorder()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Printf("redis at %s is not reachable yet: %v", cfg.Redis.Addr, err)
		}
		recorder = stats.NewRedisRecorder(rdb, stats.WithPrefix(cfg.Redis.Prefix))
		logger.Printf("admission stats recorded in redis at %s", cfg.Redis.Addr)
	}

	// Available-slot responses are cached until the ledger moves.
	slotCache := cache.New(5*time.Minute, 10*time.Minute)

	opts := []admission.Option{
		admission.WithRecorder(recorder),
		admission.WithLedgerHook(slotCache.Flush),
	}
	if webpushOptions != nil {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, loc)
		workerPool.Start(ctx)
		opts = append(opts, admission.WithNotifier(workerPool))
	}

	controller := admission.NewController(appStore, admission.Config{
		MaxApplicants: cfg.Reservation.MaxApplicants,
		LeadTimeDays:  cfg.Reservation.LeadTimeDays,
		Location:      loc,
		TxTimeout:     cfg.Reservation.TxTimeout,
		MaxRetries:    cfg.Reservation.MaxRetries,
	}, opts...)

	tokens, err := auth.NewTokenManager(&cfg.Auth)
	if err != nil {
		logger.Fatalf("invalid auth configuration: %v", err)
	}
	authService := auth.NewService(appStore, tokens, &cfg.Auth)

	// Initialize and run the slot provisioner in the background
	provisioner, err := provision.NewService(cfg, appStore, provision.WithCreatedHook(slotCache.Flush))
	if err != nil {
		logger.Fatalf("invalid provision configuration: %v", err)
	}
	go provisioner.Run(ctx)

	// Initialize router
	handler := api.NewHandler(controller, authService, appStore, recorder, webpushOptions)
	router := api.NewRouter(handler, api.RouterConfig{
		Limiter:  mw.NewKeyedRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst),
		Cache:    slotCache,
		CacheTTL: time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
