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
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/shopfront/api/internal/catalog"
	"github.com/shopfront/api/internal/handlers"
	"github.com/shopfront/api/internal/platform/auth"
	"github.com/shopfront/api/internal/platform/config"
	pfirestore "github.com/shopfront/api/internal/platform/firestore"
	"github.com/shopfront/api/internal/platform/idempotency"
	"github.com/shopfront/api/internal/platform/observability"
	"github.com/shopfront/api/internal/platform/secrets"
	"github.com/shopfront/api/internal/repositories"
	firestoreRepo "github.com/shopfront/api/internal/repositories/firestore"
	"github.com/shopfront/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
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
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

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

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	catalogClient := catalog.NewClient(
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithCacheTTL(cfg.Catalog.CacheTTL),
		catalog.WithAPIKey(cfg.Catalog.APIKey),
	)

	cartItemRepo, err := firestoreRepo.NewCartItemRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart item repository", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(probeCtx context.Context) error {
				iter := firestoreClient.Collections(probeCtx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
		{
			Name:  "catalog",
			Check: catalogClient.Ping,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	serviceLog := zapFieldLogger(logger.Named("services"))

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Items:   cartItemRepo,
		Catalog: catalogClient,
		Clock:   time.Now,
		Logger:  serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Client: catalogClient,
		Logger: serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	healthService, err := services.NewHealthService(services.HealthServiceDeps{
		Repo:  healthRepo,
		Build: buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to initialise health service", zap.Error(err))
	}

	cartHandlers := handlers.NewCartHandlers(authenticator, cartService,
		handlers.WithCartRateLimiter(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
	)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthService(healthService),
	)

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreClient),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		idempotencyMiddleware,
	}

	sessionHandlers := handlers.NewSessionHandlers(authenticator, verifier)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
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
		serverLogger.Info("shopfront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	version := lookup("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookup("API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}

	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func zapFieldLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, msg string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Warn(msg, zapFields...)
	}
}
