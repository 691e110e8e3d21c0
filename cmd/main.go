package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vhvplatform/go-hotel-notification-service/internal/consumer"
	"github.com/vhvplatform/go-hotel-notification-service/internal/dispatcher"
	"github.com/vhvplatform/go-hotel-notification-service/internal/dlq"
	"github.com/vhvplatform/go-hotel-notification-service/internal/handler"
	"github.com/vhvplatform/go-hotel-notification-service/internal/middleware"
	"github.com/vhvplatform/go-hotel-notification-service/internal/registry"
	"github.com/vhvplatform/go-hotel-notification-service/internal/repository"
	"github.com/vhvplatform/go-hotel-notification-service/internal/rules"
	"github.com/vhvplatform/go-hotel-notification-service/internal/scheduler"
	"github.com/vhvplatform/go-hotel-notification-service/internal/service"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/config"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/logger"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/mongodb"
	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/redis"
	"github.com/vhvplatform/go-hotel-notification-service/internal/smtp"
	"github.com/vhvplatform/go-hotel-notification-service/internal/templates"
	"github.com/vhvplatform/go-hotel-notification-service/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync()

	log.Info("Starting Hotel Notification Service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MongoDB
	mongoClient, err := mongodb.NewMongoClient(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Disconnect(context.Background())

	// Initialize repositories
	ruleRepo := repository.NewRuleRepository(mongoClient)
	templateRepo := repository.NewTemplateRepository(mongoClient)
	pendingRepo := repository.NewPendingRepository(mongoClient)
	deliveryLogRepo := repository.NewDeliveryLogRepository(mongoClient)
	failedDeliveryRepo := repository.NewFailedDeliveryRepository(mongoClient)
	bounceRepo := repository.NewBounceRepository(mongoClient)
	staffRepo := repository.NewStaffRepository(mongoClient)

	ensureIndexes(ctx, log, map[string]func(context.Context) error{
		"rules":             ruleRepo.EnsureIndexes,
		"templates":         templateRepo.EnsureIndexes,
		"pending":           pendingRepo.EnsureIndexes,
		"delivery_logs":     deliveryLogRepo.EnsureIndexes,
		"failed_deliveries": failedDeliveryRepo.EnsureIndexes,
		"bounces":           bounceRepo.EnsureIndexes,
		"staff":             staffRepo.EnsureIndexes,
	})

	// Throttling is shared through Redis when configured
	var throttler rules.Throttler
	if cfg.Redis.Addr != "" {
		var redisClient *goredis.Client
		redisClient, err = redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("Redis unavailable, throttling in memory", "error", err)
		} else {
			defer redisClient.Close()
			throttler = rules.NewRedisThrottler(redisClient, cfg.Redis.KeyPrefix)
		}
	}
	if throttler == nil {
		memoryThrottler := rules.NewMemoryThrottler()
		if err := memoryThrottler.StartPruning(cfg.Realtime.SweepSpec); err != nil {
			log.Fatal("Failed to schedule throttle pruning", "error", err)
		}
		defer memoryThrottler.StopPruning()
		throttler = memoryThrottler
	}

	// Connection registry
	connRegistry := registry.New(pendingRepo, registry.Options{
		StaleAfter:  cfg.Realtime.StaleAfter,
		SweepSpec:   cfg.Realtime.SweepSpec,
		ReplayLimit: cfg.Realtime.ReplayLimit,
		SendTimeout: cfg.Realtime.SendTimeout,
		FanOutLimit: cfg.Realtime.FanOutLimit,
	}, log.With("component", "registry"))
	if err := connRegistry.Start(); err != nil {
		log.Fatal("Failed to start connection registry", "error", err)
	}
	defer connRegistry.Stop()

	// Templates
	templateStore := templates.NewStore()
	if n, err := templateStore.Load(ctx, templateRepo); err != nil {
		log.Warn("Failed to load stored templates, using built-ins", "error", err)
	} else {
		log.Info("Templates loaded", "stored", n)
	}

	// Channel dispatchers
	var emailTransport dispatcher.EmailTransport
	if cfg.SMTP.Host != "" {
		pool := smtp.NewPool(smtp.NewDialer(smtp.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}), cfg.SMTP.PoolSize)
		defer pool.Close()
		emailTransport = dispatcher.NewSMTPTransport(pool, cfg.SMTP.FromEmail, cfg.SMTP.FromName)
	} else {
		log.Warn("SMTP host not configured, email deliveries will fail")
	}

	realtimeDispatcher := dispatcher.NewRealtimeDispatcher(connRegistry)
	dispatchers := []dispatcher.Dispatcher{
		realtimeDispatcher,
		dispatcher.NewEmailDispatcher(emailTransport, service.NewBounceChecker(bounceRepo, cfg.Delivery.BounceWindow),
			dispatcher.EmailConfig{ReplyTo: cfg.SMTP.ReplyTo, BulkInterval: cfg.Delivery.BulkInterval},
			log.With("component", "email")),
	}
	switch cfg.SMS.Provider {
	case "log":
		dispatchers = append(dispatchers, dispatcher.NewSMSDispatcher(
			dispatcher.NewLogSMSTransport(cfg.SMS.From, log.With("component", "sms")), log))
	case "":
	default:
		log.Warn("Unknown SMS provider, sms deliveries disabled", "provider", cfg.SMS.Provider)
	}
	dispatcherSet := dispatcher.NewSet(dispatchers...)

	// Dead letter queue
	deadLetterQueue := dlq.NewDeadLetterQueue(failedDeliveryRepo, dispatcherSet, log.With("component", "dlq"))
	if err := deadLetterQueue.SyncSize(ctx); err != nil {
		log.Warn("Failed to read DLQ size", "error", err)
	}

	// Delivery orchestrator
	notificationService := service.NewNotificationService(
		ruleRepo,
		rules.NewEngine(),
		throttler,
		staffRepo,
		templateStore,
		dispatcherSet,
		deliveryLogRepo,
		deadLetterQueue,
		service.Options{Parallelism: cfg.Delivery.Parallelism},
		log.With("component", "orchestrator"),
	)

	// Daily digest
	var digest service.DigestBuffer
	if cfg.Digest.Enabled {
		digestScheduler := scheduler.NewDigestScheduler(notificationService, cfg.Digest.Schedule, log.With("component", "digest"))
		if err := digestScheduler.Start(); err != nil {
			log.Fatal("Failed to start digest scheduler", "error", err)
		}
		defer func() {
			digestScheduler.Stop()
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if n := digestScheduler.Flush(flushCtx); n > 0 {
				log.Info("Flushed pending digests on shutdown", "digests", n)
			}
		}()
		digest = digestScheduler
	}

	// Async dispatch pool
	dispatchWorker := service.NewDispatchWorker(notificationService, digest, cfg.Delivery.Workers, log.With("component", "dispatch"))
	dispatchWorker.Start()
	defer dispatchWorker.Stop()

	// Event source
	switch cfg.Delivery.EventSource {
	case "rabbitmq":
		go consumer.NewEventConsumer(cfg.RabbitMQ, dispatchWorker, log.With("component", "rabbitmq")).Run(ctx)
	case "kafka":
		go consumer.NewKafkaConsumer(cfg.Kafka, dispatchWorker, log.With("component", "kafka")).Run(ctx)
	case "none", "":
		log.Info("No event source configured, accepting events over HTTP only")
	default:
		log.Fatal("Unknown event source", "event_source", cfg.Delivery.EventSource)
	}

	// Initialize HTTP handlers
	notificationHandler := handler.NewNotificationHandler(notificationService, dispatchWorker, deliveryLogRepo, log)
	ruleHandler := handler.NewRuleHandler(ruleRepo, log)
	templateHandler := handler.NewTemplateHandler(templateStore, templateRepo, log)
	realtimeHandler := handler.NewRealtimeHandler(realtimeDispatcher, connRegistry, pendingRepo, log)
	dlqHandler := handler.NewDLQHandler(deadLetterQueue, log)
	wsHandler := handler.NewWSHandler(connRegistry, cfg.Server.AllowedOrigins, log.With("component", "ws"))
	bounceHandler := webhook.NewBounceHandler(bounceRepo, log)

	// Initialize rate limiter
	rateLimiter := middleware.NewOrganizationRateLimiter(cfg.RateLimit.PerOrganization, cfg.RateLimit.Burst)

	// Setup Gin router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":            "ready",
			"queue_size":        dispatchWorker.QueueSize(),
			"live_connections":  connRegistry.GetStats().TotalConnections,
			"registry_sweeping": connRegistry.Running(),
		})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Websocket endpoint for in-app clients
	wsHandler.RegisterRoutes(router)

	// API routes scoped to an organization, with rate limiting
	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenancyMiddleware())
	v1.Use(middleware.RateLimitMiddleware(rateLimiter))
	notificationHandler.RegisterRoutes(v1)
	ruleHandler.RegisterRoutes(v1)
	templateHandler.RegisterRoutes(v1)
	realtimeHandler.RegisterRoutes(v1)
	dlqHandler.RegisterRoutes(v1)

	// Webhooks (no rate limiting for external providers)
	bounceHandler.RegisterRoutes(router.Group("/webhooks/bounces"))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Hotel Notification Service started", "port", cfg.Server.Port, "event_source", cfg.Delivery.EventSource)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down Hotel Notification Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	closed := connRegistry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Hotel Notification Service stopped", "closed_connections", closed)
}

func ensureIndexes(ctx context.Context, log *logger.Logger, fns map[string]func(context.Context) error) {
	for name, fn := range fns {
		if err := fn(ctx); err != nil {
			log.Warn("Failed to create indexes", "collection", name, "error", err)
		}
	}
}
