// Handoff router server: WhatsApp ordering bot with agent handoff.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/handoff-router/internal/api"
	"github.com/ashureev/handoff-router/internal/catalog"
	"github.com/ashureev/handoff-router/internal/config"
	"github.com/ashureev/handoff-router/internal/events"
	"github.com/ashureev/handoff-router/internal/health"
	"github.com/ashureev/handoff-router/internal/identity"
	"github.com/ashureev/handoff-router/internal/middleware"
	"github.com/ashureev/handoff-router/internal/notify"
	"github.com/ashureev/handoff-router/internal/retention"
	"github.com/ashureev/handoff-router/internal/router"
	"github.com/ashureev/handoff-router/internal/store"
	"github.com/ashureev/handoff-router/internal/transport"
	"github.com/ashureev/handoff-router/web"
)

const eventReplay = 100

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogSource,
	}))
	slog.SetDefault(logger)

	agentID := identity.Normalize(cfg.AgentIdentity)
	supervisorID := identity.Normalize(cfg.SupervisorIdentity)
	slog.Info("Starting server",
		"port", cfg.Port,
		"agent", agentID,
		"supervisor_configured", supervisorID != "",
		"transport", cfg.Transport.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, store.Options{
		OrderRetention: cfg.Retention.OrderRetention,
		HistoryLimit:   cfg.Retention.HistoryLimit,
	})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	products := catalog.Default()
	if cfg.Catalog.Path != "" {
		products, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			slog.Error("Failed to load catalog", "path", cfg.Catalog.Path, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Catalog loaded", "products", len(products.Products()))

	rt, err := router.New(repo, products, router.Config{
		AgentIdentity:      agentID,
		SupervisorIdentity: supervisorID,
		DeliveryCharge:     cfg.Catalog.DeliveryCharge,
		PaymentDetails:     cfg.Catalog.PaymentDetails,
		Logger:             logger,
	})
	if err != nil {
		slog.Error("Failed to initialize router", "error", err)
		os.Exit(1)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize transport", "error", err)
		os.Exit(1)
	}

	// Optional order events over MQTT.
	var orders transport.OrderPublisher
	var mqttPublisher *notify.Publisher
	if cfg.MQTT.Enabled() {
		mqttPublisher = notify.New(notify.Config{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
		}, logger)
		if err := mqttPublisher.Start(ctx); err != nil {
			slog.Error("Failed to start MQTT publisher", "error", err)
			os.Exit(1)
		}
		orders = mqttPublisher
		slog.Info("MQTT order events enabled", "broker", cfg.MQTT.Broker)
	}

	hub := events.NewHub(eventReplay, cfg.CORSAllowedOrigins, logger)
	dispatcher := transport.NewDispatcher(sender, orders, hub, logger)

	// Initialize handlers.
	webhookHandler := api.NewWebhookHandler(rt, dispatcher, cfg.DispatchTimeout, logger)
	operatorHandler := api.NewOperatorHandler(repo, rt, webhookHandler, cfg.OperatorToken)
	if !operatorHandler.InjectEnabled() {
		slog.Warn("OPERATOR_TOKEN not set, supervisor message endpoint is disabled")
	}
	healthHandler := api.NewHealthHandler(repo)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	throttle := middleware.RateLimit(limiter, api.SenderKey, http.HandlerFunc(webhookHandler.RateLimited))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	healthHandler.RegisterHealth(r)
	webhookHandler.RegisterRoutes(r, throttle)
	operatorHandler.RegisterRoutes(r)

	r.Get("/ws/events", hub.ServeHTTP)
	r.Handle("/console", http.RedirectHandler("/console/", http.StatusMovedPermanently))
	r.Handle("/console/*", web.ConsoleHandler("/console"))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams
		IdleTimeout:  120 * time.Second,
	}

	// Start history retention worker.
	retention.NewWorker(repo, cfg.Retention.HistoryTTL, cfg.Retention.Interval, func(deleted int64) {
		if deleted > 0 {
			slog.Info("History retention sweep", "deleted", deleted)
		}
	}, logger).Start(ctx)
	slog.Info("Retention worker started", "history_ttl", cfg.Retention.HistoryTTL, "interval", cfg.Retention.Interval)

	// Optional gRPC health endpoint.
	var healthServer *health.Server
	if cfg.GRPCHealthAddr != "" {
		ln, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCHealthAddr, "error", err)
			os.Exit(1)
		}
		healthServer = health.NewServer(repo, 0, logger)
		go func() {
			slog.Info("gRPC health listening", "addr", ln.Addr().String())
			if err := healthServer.Serve(ctx, ln); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	webhookHandler.Wait()
	if healthServer != nil {
		healthServer.Stop()
	}
	if mqttPublisher != nil {
		if err := mqttPublisher.Stop(shutdownCtx); err != nil {
			slog.Warn("MQTT publisher did not stop cleanly", "error", err)
		}
	}

	slog.Info("Server stopped successfully")
}

func newSender(cfg *config.Config, logger *slog.Logger) (transport.Sender, error) {
	if cfg.Transport.Mode == config.TransportLog {
		slog.Warn("Outbound messages are logged, not sent", "transport", config.TransportLog)
		return transport.NewLogSender(logger), nil
	}
	sender, err := transport.NewTwilioSender(transport.TwilioConfig{
		AccountSID: cfg.Transport.AccountSID,
		AuthToken:  cfg.Transport.AuthToken,
		From:       cfg.Transport.From,
		APIBase:    cfg.Transport.APIBase,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
