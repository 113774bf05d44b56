package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/handlers"
	"github.com/sellerhub/api/internal/platform/auth"
	"github.com/sellerhub/api/internal/platform/config"
	"github.com/sellerhub/api/internal/platform/events"
	pfirestore "github.com/sellerhub/api/internal/platform/firestore"
	"github.com/sellerhub/api/internal/platform/idempotency"
	"github.com/sellerhub/api/internal/platform/observability"
	"github.com/sellerhub/api/internal/platform/secrets"
	"github.com/sellerhub/api/internal/repositories"
	firestoreRepo "github.com/sellerhub/api/internal/repositories/firestore"
	"github.com/sellerhub/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	hours, err := domain.NewBusinessHours(cfg.Hours.OpenHour, cfg.Hours.CloseHour)
	if err != nil {
		logger.Fatal("invalid business hours", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithUserGetter(firebaseVerifier),
		auth.WithAdminAllowlist(cfg.Admin.AllowedUIDs),
	)

	webhookVerifier, err := newWebhookVerifier(cfg)
	if err != nil {
		logger.Fatal("failed to initialise webhook verifier", zap.Error(err))
	}

	var eventTopic *pubsub.Topic
	var publisher services.OrderEventPublisher
	if !cfg.Events.Disabled {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic = pubsubClient.Topic(cfg.Events.Topic)
		defer eventTopic.Stop()
		publisher, err = events.NewPubSubOrderEventPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	} else {
		logger.Info("order event publishing disabled")
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	ingestionRepo, err := firestoreRepo.NewIngestionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise ingestion repository", zap.Error(err))
	}
	statsRepo, err := firestoreRepo.NewMerchantStatsRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise merchant stats repository", zap.Error(err))
	}

	ingestService, err := services.NewIngestService(services.IngestServiceDeps{
		Ingestion: ingestionRepo,
		Catalog:   catalogRepo,
		Orders:    orderRepo,
		Hours:     hours,
		AcceptIn:  cfg.Workflow.VendorAcceptWindow,
		Clock:     time.Now,
		Events:    publisher,
		Logger:    zapEventLogger(logger.Named("ingest")),
	})
	if err != nil {
		logger.Fatal("failed to initialise ingest service", zap.Error(err))
	}

	workflowService, err := services.NewWorkflowService(services.WorkflowServiceDeps{
		Orders: orderRepo,
		Hours:  hours,
		Clock:  time.Now,
		Events: publisher,
		Logger: zapEventLogger(logger.Named("workflow")),
	})
	if err != nil {
		logger.Fatal("failed to initialise workflow service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, eventTopic)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	webhookHandlers := handlers.NewWebhookHandlers(webhookVerifier, ingestService)
	sellerHandlers := handlers.NewVendorOrderHandlers(authenticator, workflowService)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, workflowService, statsRepo)

	projectID := strings.TrimSpace(cfg.Firebase.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithSellerOrderRoutes(sellerHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

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
		serverLogger.Info("sellerhub api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if projectID := strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID")); projectID != "" {
		opts = append(opts, secrets.WithDefaultProject(projectID))
	}
	if env := strings.TrimSpace(os.Getenv("API_ENVIRONMENT")); env != "" {
		opts = append(opts, secrets.WithEnvironment(env))
	}
	if fallback := strings.TrimSpace(os.Getenv("API_SECRETS_FALLBACK_FILE")); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists configuration values that must resolve before the
// server can start.
func requiredSecretNames() []string {
	var names []string
	raw := strings.TrimSpace(os.Getenv("API_SHOPIFY_WEBHOOK_SECRET"))
	if strings.HasPrefix(raw, "secret://") || strings.HasPrefix(raw, "sm://") {
		names = append(names, raw)
	}
	return names
}

func newWebhookVerifier(cfg config.Config) (*auth.ShopifyWebhookVerifier, error) {
	var opts []auth.ShopifyVerifierOption
	if header := strings.TrimSpace(cfg.Shopify.HmacHeader); header != "" {
		opts = append(opts, auth.WithHmacHeader(header))
	}
	return auth.NewShopifyWebhookVerifier(cfg.Shopify.WebhookSecret, opts...)
}

func newSystemService(client *firestore.Client, topic *pubsub.Topic) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := t.Exists(ctx)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		Health:      repo,
		Version:     stringFromEnv("API_BUILD_VERSION", "dev"),
		CommitSHA:   stringFromEnv("API_BUILD_COMMIT_SHA", "unknown"),
		Environment: stringFromEnv("API_ENVIRONMENT", "local"),
		Clock:       time.Now,
	})
}

func stringFromEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
