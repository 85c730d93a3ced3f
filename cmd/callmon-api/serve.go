package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callmon-api/internal/auth"
	"callmon-api/internal/callsync"
	"callmon-api/internal/config"
	"callmon-api/internal/crm"
	"callmon-api/internal/http/handler"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/pbx"
	"callmon-api/internal/ratelimit"
	"callmon-api/internal/service"
	"callmon-api/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Callmon API HTTP server and the background call synchronizer`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info(ctx, "starting callmon api",
		zap.String("version", "1.0.0"),
		zap.String("service", cfg.OTELServiceName),
	)

	// Initialize telemetry strictly as opt-in
	var tracerProvider *sdktrace.TracerProvider
	var meterProvider *sdkmetric.MeterProvider
	var metrics *telemetry.Metrics

	if cfg.TelemetryEnabled() {
		log.Info(ctx, "initializing telemetry", zap.String("endpoint", cfg.OTELExporterEndpoint))

		tp, err := telemetry.InitTracer(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
		if err != nil {
			log.Warn(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			tracerProvider = tp
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
					log.Error(shutdownCtx, "failed to shutdown tracer provider", zap.Error(err))
				}
			}()
		}

		mp, m, err := telemetry.InitMetrics(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint)
		if err != nil {
			log.Warn(ctx, "failed to initialize metrics, continuing without metrics", zap.Error(err))
		} else {
			meterProvider = mp
			metrics = m
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := meterProvider.Shutdown(shutdownCtx); err != nil {
					log.Error(shutdownCtx, "failed to shutdown meter provider", zap.Error(err))
				}
			}()
		}

		log.Info(ctx, "telemetry initialized", zap.Bool("tracing", tracerProvider != nil), zap.Bool("metrics", metrics != nil))
	} else {
		log.Info(ctx, "telemetry disabled (opt-in only or missing endpoint)")
	}

	// Connect to Redis when configured; without it the API runs
	// without rate limiting.
	var rateLimiter *ratelimit.RedisRateLimiter
	if cfg.RedisURL != "" {
		log.Info(ctx, "connecting to redis")
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info(ctx, "redis connected")

		var rateLimitCounter metric.Int64Counter
		if metrics != nil {
			rateLimitCounter = metrics.RateLimitRejections
		}
		rateLimiter = ratelimit.NewRedisRateLimiter(redisClient, rateLimitCounter)
	} else {
		log.Info(ctx, "redis not configured, rate limiting disabled")
	}

	// Register API tokens
	tokenStore := auth.NewTokenStore()
	tokens, err := cfg.GetAPITokens()
	if err != nil {
		return err
	}
	for token, client := range tokens {
		tokenStore.RegisterToken(token, client)
		log.Info(ctx, "api token registered", zap.String("client", client))
	}
	if tokenStore.Empty() {
		log.Warn(ctx, "no api tokens configured, api runs with open access")
	}

	// Upstream adapters
	pbxClient := pbx.NewClient(cfg.PBXBaseURL, cfg.PBXAPIKey, cfg.UpstreamTimeout())
	crmClient := crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey, cfg.UpstreamTimeout())

	// Prometheus registry and sync observer
	registry := telemetry.NewPrometheusRegistry()
	observer := telemetry.NewSyncObserver(registry, metrics)

	// Synchronization engine
	engine := callsync.New(pbxClient, callsync.Config{
		Interval:     cfg.SyncInterval(),
		HistoryLimit: cfg.SyncHistoryLimit,
		Retained:     cfg.SyncRetainedCalls,
	}, log, callsync.WithObserver(observer))

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	go engine.Run(engineCtx)

	// Services
	callService := service.NewCallService(engine, pbxClient, log)
	ticketService := service.NewTicketService(engine, crmClient, crmClient, observer, log)
	dialService := service.NewDialService(pbxClient, engine, engine, log)

	// Handlers
	callHandler := handler.NewCallHandler(callService)
	ticketHandler := handler.NewTicketHandler(ticketService)
	dialHandler := handler.NewDialHandler(dialService)
	extensionHandler := handler.NewExtensionHandler(callService)

	// Build router
	r := buildRouter(RouterDeps{
		Cfg:              cfg,
		Log:              log,
		TokenStore:       tokenStore,
		RateLimiter:      rateLimiter,
		Metrics:          metrics,
		Registry:         registry,
		Engine:           engine,
		CallHandler:      callHandler,
		TicketHandler:    ticketHandler,
		DialHandler:      dialHandler,
		ExtensionHandler: extensionHandler,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info(ctx, "starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info(ctx, "shutdown signal received, starting graceful shutdown")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	// Stop accepting requests first, then stop the synchronizer.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", zap.Error(err))
	}
	stopEngine()

	log.Info(shutdownCtx, "shutdown complete")
	return nil
}
