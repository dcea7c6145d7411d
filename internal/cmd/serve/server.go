package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/envelope"
	"github.com/consulta/advisor-service/internal/llm"
	"github.com/consulta/advisor-service/internal/plugin/filestore/encrypt"
	"github.com/consulta/advisor-service/internal/plugin/route/analytics"
	routeauth "github.com/consulta/advisor-service/internal/plugin/route/auth"
	"github.com/consulta/advisor-service/internal/plugin/route/bots"
	"github.com/consulta/advisor-service/internal/plugin/route/chat"
	routefiles "github.com/consulta/advisor-service/internal/plugin/route/files"
	routesystem "github.com/consulta/advisor-service/internal/plugin/route/system"
	storemetrics "github.com/consulta/advisor-service/internal/plugin/store/metrics"
	registrycache "github.com/consulta/advisor-service/internal/registry/cache"
	registryembed "github.com/consulta/advisor-service/internal/registry/embed"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"
	registryroute "github.com/consulta/advisor-service/internal/registry/route"
	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/consulta/advisor-service/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.AdvisorStore
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer brings up every subsystem and begins serving. Pass
// cfg.Listener.Port=0 for a random port; the chosen one is in
// Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting advisor service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"files", cfg.FileStoreType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
	)

	labels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(labels)

	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	files, err := openFileStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, vectorStore, err := openSemanticSearch(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router := newRouter(cfg)
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Two auth middlewares: chat accepts a session or a bare platform id,
	// everything else authenticated requires a session.
	sessions := security.NewSessionAuthenticator(store, openSessionCache(ctx, cfg), cfg.SessionLifetime, cfg.SessionCacheTTL)
	authRequired := security.AuthMiddleware(sessions)
	optionalAuth := security.OptionalAuthMiddleware(sessions)

	client := llm.New(cfg)

	routeauth.MountRoutes(router, store, files, cfg, authRequired, sessions)
	bots.MountRoutes(router, store)
	chat.MountRoutes(router, store, files, cfg, optionalAuth, client, embedder, vectorStore)
	analytics.MountRoutes(router, store)
	routefiles.MountRoutes(router, store, files, cfg)

	indexer := service.NewBackgroundIndexer(store, embedder, vectorStore, cfg.VectorIndexerBatchSize)
	go indexer.Start(ctx)
	taskProc := service.NewTaskProcessor(store, vectorStore)
	go taskProc.Start(ctx)
	sweeper := service.NewSessionSweeper(store, cfg.SessionSweepInterval, cfg.SessionSweepBatchSize)
	go sweeper.Start(ctx)

	closeManagement, err := mountManagement(cfg, router)
	if err != nil {
		return nil, err
	}

	running, err := StartSinglePortServer(ctx, cfg.Listener, router)
	if err != nil {
		return nil, err
	}
	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (registrystore.AdvisorStore, error) {
	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return storemetrics.Wrap(store), nil
}

// openSessionCache never fails the boot: sessions stay valid without a
// cache, every token check just goes to the database.
func openSessionCache(ctx context.Context, cfg *config.Config) registrycache.SessionCache {
	loader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return nil
	}
	cache, err := loader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return nil
	}
	return cache
}

// openFileStore builds the blob store, layering envelope encryption in front
// when a real provider is configured.
func openFileStore(ctx context.Context, cfg *config.Config) (registryfilestore.FileStore, error) {
	loader, err := registryfilestore.Select(cfg.FileStoreType)
	if err != nil {
		return nil, err
	}
	files, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	if cfg.EncryptionProviders == "" || cfg.EncryptionFilesDisabled {
		return files, nil
	}
	svc, err := envelope.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if svc.IsPrimaryReal() {
		files = encrypt.Wrap(files, svc)
	}
	return files, nil
}

// openSemanticSearch loads the embedder and vector store. Both are optional;
// failures degrade to keyword-only search with a warning. A vector store
// without an embedder is a hard error since nothing could ever index into it.
func openSemanticSearch(ctx context.Context, cfg *config.Config) (registryembed.Embedder, registryvector.VectorStore, error) {
	var embedder registryembed.Embedder
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		loader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			log.Warn("Embedder not available", "err", err)
		} else if embedder, err = loader(ctx); err != nil {
			log.Warn("Failed to initialize embedder", "err", err)
			embedder = nil
		}
	}

	var vectorStore registryvector.VectorStore
	if cfg.VectorType != "" && cfg.VectorType != "none" {
		if embedder == nil {
			return nil, nil, fmt.Errorf("vector store %q requires an embedding provider: set --embedding-kind to a value other than 'none'", cfg.VectorType)
		}
		loader, err := registryvector.Select(cfg.VectorType)
		if err != nil {
			log.Warn("Vector store not available", "err", err)
		} else if vectorStore, err = loader(ctx); err != nil {
			log.Warn("Failed to initialize vector store", "err", err)
			vectorStore = nil
		}
	}
	return embedder, vectorStore, nil
}

func newRouter(cfg *config.Config) *gin.Engine {
	if cfg.Mode == config.ModeTesting {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/health/live", "/health/ready", "/q/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled || cfg.Mode == config.ModeTesting {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}
	return router
}

// mountManagement serves the health and metrics routes. With a dedicated
// management port they run on their own bare engine; otherwise they mount on
// the main router and the returned closer is nil.
func mountManagement(cfg *config.Config, router *gin.Engine) (func(context.Context) error, error) {
	if !cfg.ManagementListenerEnabled {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		return nil, nil
	}

	mgmt := gin.New()
	mgmt.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		mgmt.Use(security.AccessLogMiddleware())
	}
	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(mgmt); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	// The management listener shares the main listener's TLS material.
	listenerCfg := cfg.ManagementListener
	listenerCfg.TLSCertFile = cfg.Listener.TLSCertFile
	listenerCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
	_, closer, err := startManagementServer(listenerCfg, mgmt)
	if err != nil {
		return nil, fmt.Errorf("failed to start management server: %w", err)
	}
	return closer, nil
}
