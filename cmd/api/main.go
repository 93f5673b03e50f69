package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lab-scheduler-api/internal/auth"
	"lab-scheduler-api/internal/config"
	"lab-scheduler-api/internal/database"
	"lab-scheduler-api/internal/handler"
	"lab-scheduler-api/internal/labtime"
	"lab-scheduler-api/internal/middleware"
	"lab-scheduler-api/internal/notification"
	"lab-scheduler-api/internal/repository"
	"lab-scheduler-api/internal/router"
	"lab-scheduler-api/internal/service"
	statusnotify "lab-scheduler-api/internal/service/notification"
)

const (
	visitorSweepInterval = time.Minute
	visitorMaxIdle       = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := log.Default()

	zone, err := labtime.Load(cfg.Lab.Timezone, labtime.WithWorkingWindow(cfg.Lab.WorkdayStartHour, cfg.Lab.WorkdayEndHour))
	if err != nil {
		log.Fatalf("Failed to load lab timezone: %v", err)
	}

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := database.Migrate(ctx, db, logger); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	store := repository.NewStore(db)

	// Status events fan out to WebSocket clients and the optional webhook
	hub := notification.NewHub(cfg.NotificationService.QueueSize, logger)
	go hub.Run(ctx)

	var webhook *notification.WebhookListener
	if cfg.NotificationService.URL != "" {
		webhookCfg := notification.DefaultConfig(cfg.NotificationService.URL)
		if cfg.NotificationService.Timeout > 0 {
			webhookCfg.Timeout = cfg.NotificationService.Timeout
		}
		webhookCfg.RetryAttempts = cfg.NotificationService.RetryAttempts
		if cfg.NotificationService.RetryDelay > 0 {
			webhookCfg.RetryDelay = cfg.NotificationService.RetryDelay
		}
		if cfg.NotificationService.MaxPayloadSize > 0 {
			webhookCfg.MaxPayloadSize = cfg.NotificationService.MaxPayloadSize
		}
		webhook = notification.NewWebhookListener(webhookCfg, logger)
		hub.Register(webhook)
		logger.Printf("Status webhook enabled: %s", cfg.NotificationService.URL)
	}

	bookings := service.NewBookingService(store, zone, statusnotify.NewHubAdapter(hub, zone), logger)
	schedule := service.NewScheduleService(store, zone, logger)
	admin := service.NewAdminService(store, zone, logger)

	if cfg.Lab.AdminUsername != "" && cfg.Lab.AdminPassword != "" {
		created, err := admin.EnsureAdmin(ctx, cfg.Lab.AdminUsername, cfg.Lab.AdminEmail, cfg.Lab.AdminPassword)
		if err != nil {
			log.Fatalf("Failed to create admin account: %v", err)
		}
		if created {
			logger.Printf("Admin account %q created", cfg.Lab.AdminUsername)
		}
	}

	public := handler.NewPublicHandler(admin, schedule, hub, db, logger)
	public.AllowedOrigins = cfg.Security.AllowedOrigins
	if webhook != nil {
		public.Webhook = webhook
	}

	securityMW := middleware.NewSecurityMiddleware(&cfg.Security)
	go securityMW.CleanupVisitors(ctx, visitorSweepInterval, visitorMaxIdle)

	r := router.NewRouter(router.Handlers{
		Admin:   handler.NewAdminHandler(admin, bookings, schedule, logger),
		Student: handler.NewStudentHandler(admin, bookings, schedule, logger),
		Public:  public,
	}, auth.NewAuthenticator(store.Users(), logger), securityMW)

	// The logger sits inside TrustedProxy so it sees the resolved client IP
	loggingMW := middleware.NewLoggingMiddleware(logger)
	finalHandler := securityMW.TrustedProxy(loggingMW.LogRequests(r))

	// Configure server with security settings
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        finalHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}

	// Channel to listen for interrupt signal to gracefully shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %d (lab timezone %s, working hours %02d:00-%02d:00)",
			cfg.Port, cfg.Lab.Timezone, cfg.Lab.WorkdayStartHour, cfg.Lab.WorkdayEndHour)
		log.Printf("Security: Rate limit=%d RPS, Burst=%d, CORS=%v, Timeout=%v",
			cfg.Security.RateLimitRPS,
			cfg.Security.RateLimitBurst,
			cfg.Security.EnableCORS,
			cfg.Security.RequestTimeout,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until we receive a signal
	<-done
	log.Println("Server is shutting down...")

	// Cancelling the base context closes event streams, which Shutdown does
	// not wait for since they are hijacked.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Security.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	} else {
		log.Println("Server exited gracefully")
	}
}
