package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/doxvisum/api/internal/di"
	"github.com/doxvisum/api/internal/handlers"
	"github.com/doxvisum/api/internal/platform/config"
	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/platform/jobs"
	"github.com/doxvisum/api/internal/platform/observability"
	"github.com/doxvisum/api/internal/repositories"
	firestoreRepo "github.com/doxvisum/api/internal/repositories/firestore"
	"github.com/doxvisum/api/internal/services"
)

const (
	actorHeader         = "X-Actor-Id"
	metricsNamespace    = "doxvisum"
	pubsubHealthTimeout = 2 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var (
		events       services.EventPublisher
		registryOpts []firestoreRepo.RegistryOption
	)
	topic, err := openEventTopic(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub topic", zap.Error(err))
	}
	if topic != nil {
		publisher, err := jobs.NewPubSubEventPublisher(topic.Handle())
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		events = publisher
		registryOpts = append(registryOpts, firestoreRepo.WithDependencyChecks(repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  pubsubHealthTimeout,
			Optional: true,
			Check:    topic.Check,
		}))
		defer func() {
			if err := topic.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("event publishing disabled; no pubsub topic configured")
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	buildInfo := services.BuildInfo{
		Version:     cfg.Observability.Version,
		Environment: cfg.Observability.Environment,
		StartedAt:   startedAt,
	}

	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithEventPublisher(events),
		di.WithEventLogger(observability.EventLogger(logger.Named("services"))),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	httpMetrics := observability.NewHTTPMetrics(metricsNamespace)
	middlewares := []func(http.Handler) http.Handler{
		httpMetrics.Middleware,
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.ActorMiddleware(actorHeader),
		observability.RequestLoggerMiddleware(projectID),
	}

	svc := container.Services
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithMetricsHandler(httpMetrics.Handler()))
	opts = append(opts, handlers.WithQuoteRoutes(handlers.NewQuoteHandlers(svc.Quotes).Routes))
	if svc.Orders != nil {
		opts = append(opts, handlers.WithOrderRoutes(handlers.NewOrderHandlers(svc.Orders).Routes))
	}
	opts = append(opts, handlers.WithAdminRoutes(handlers.NewAdminPricingHandlers(svc.PricingAdmin).Routes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("doxvisum api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openEventTopic returns nil when no topic is configured.
func openEventTopic(ctx context.Context, cfg config.PubSubConfig) (*jobs.Topic, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, nil
	}
	return jobs.OpenTopic(ctx, cfg)
}
