package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ops-printshop/internal/client"
	"github.com/pesio-ai/be-ops-printshop/internal/handler"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/config"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/database"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/middleware"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/natsclient"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/otel"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
	"github.com/pesio-ai/be-ops-printshop/internal/repository/sqlite"
	"github.com/pesio-ai/be-ops-printshop/internal/service"
	"github.com/pesio-ai/be-ops-printshop/internal/workflow"
)

// stores groups the repositories the services need, whichever driver backs them.
type stores struct {
	items     repository.OrderItemStore
	timeline  repository.TimelineStore
	inventory repository.InventoryStore
	ledger    repository.LedgerStore
	ping      func(context.Context) error
	close     func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("db_driver", cfg.Database.Driver).
		Msg("Starting print-shop core service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := otel.Setup(ctx, cfg.Service.Name, cfg.Service.Version, cfg.Telemetry.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	// Initialize storage
	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.close()
	log.Info().Msg("Storage ready")

	// Workflow configuration, reloaded on SIGHUP
	workflows, err := workflow.NewReloadableProvider(cfg.Workflow.ConfigPath, log.Component("workflow"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load workflow configuration")
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go workflows.Watch(ctx, hup)

	// Notifications are optional; without NATS events are dropped.
	var transport client.MessagePublisher
	if cfg.NATS.URL != "" {
		nc, err := natsclient.New(ctx, natsclient.Config{
			URL:    cfg.NATS.URL,
			Stream: cfg.NATS.Stream,
			Name:   cfg.Service.Name,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		transport = nc
		log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("NATS connected")
	}
	events := client.NewNotificationPublisher(transport, natsclient.SubjectPrefix(cfg.NATS.Stream), log.Logger)

	// Initialize services
	workflowService := service.NewWorkflowService(st.items, st.timeline, workflows, events, log.Component("workflow"))
	inventoryService := service.NewInventoryService(st.inventory, st.timeline, events, log.Component("inventory"))
	paymentService := service.NewPaymentService(st.ledger, st.timeline, events, cfg.Ledger.AllowNegativeBalance, log.Component("payments"))

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if verifier.TrustsHeaders() {
		log.Warn().Msg("AUTH_JWT_SECRET not set, trusting X-Actor-* headers")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(workflowService, inventoryService, paymentService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Actor(verifier, "/health")(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","))(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(workflowService, inventoryService, paymentService, log.Logger)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(log.Logger),
		handler.ActorInterceptor(verifier),
	))
	handler.RegisterCoreServiceServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.CoreServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}

// openStores connects the configured driver and applies its migrations.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			items:     store,
			timeline:  store,
			inventory: store,
			ledger:    store,
			ping:      store.Ping,
			close:     func() { _ = store.Close() },
		}, nil

	default:
		db, err := database.New(ctx, database.Config{
			DSN:         cfg.Database.DSN(),
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, repository.Migrations, repository.MigrationsDir); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			items:     repository.NewOrderItemRepository(db),
			timeline:  repository.NewTimelineRepository(db),
			inventory: repository.NewStockRepository(db),
			ledger:    repository.NewLedgerRepository(db),
			ping:      db.Ping,
			close:     db.Close,
		}, nil
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
