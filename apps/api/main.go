package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/contracts"
	entitlementshandler "github.com/bazaarhq/storefront-saas/domains/entitlements/be/handler"
	entitlementsrepo "github.com/bazaarhq/storefront-saas/domains/entitlements/be/repo"
	entitlementsservice "github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
	tenantshandler "github.com/bazaarhq/storefront-saas/domains/tenants/be/handler"
	tenantsrepo "github.com/bazaarhq/storefront-saas/domains/tenants/be/repo"
	tenantsservice "github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	platformauth "github.com/bazaarhq/storefront-saas/platform/go/auth"
	"github.com/bazaarhq/storefront-saas/platform/go/cache"
	"github.com/bazaarhq/storefront-saas/platform/go/gcp"
	platformlogging "github.com/bazaarhq/storefront-saas/platform/go/logging"
	platformmiddleware "github.com/bazaarhq/storefront-saas/platform/go/middleware"
	"github.com/bazaarhq/storefront-saas/platform/go/persistence"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
	platformtenant "github.com/bazaarhq/storefront-saas/platform/go/tenant"
	tenantmw "github.com/bazaarhq/storefront-saas/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// SharedHostSuffixes distinguishes shared-host from custom-domain mode.
	// The platform's own hosting domains change per environment, so this is
	// never hard-coded.
	SharedHostSuffixes []string `env:"SHARED_HOST_SUFFIXES,required" envSeparator:","`

	TenantStore string `env:"TENANT_STORE" envDefault:"firestore"` // firestore | postgres
	DatabaseURL string `env:"DATABASE_URL"`                        // required when TENANT_STORE=postgres

	FirebaseCredentials string `env:"FIREBASE_CREDENTIALS"`

	SlugCacheTTL       time.Duration `env:"SLUG_CACHE_TTL" envDefault:"2m"`
	DomainCacheTTL     time.Duration `env:"DOMAIN_CACHE_TTL" envDefault:"1h"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m"`
	CacheCapacity      int           `env:"CACHE_CAPACITY" envDefault:"512"`

	EntitlementSnapshotTTL time.Duration `env:"ENTITLEMENT_SNAPSHOT_TTL" envDefault:"30s"`

	TenantSnapshotPath string `env:"TENANT_SNAPSHOT_PATH" envDefault:"./.data/last-tenant.json"`
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "resolution-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, fsClient, fbAuth, err := gcp.InitClients(rootCtx, cfg.FirebaseCredentials)
	if err != nil {
		logger.Fatal("init firebase", zap.Error(err))
	}
	defer func() {
		_ = fsClient.Close()
	}()

	// Caches are constructed here and injected; their sweep lifecycle belongs
	// to the process root.
	tenantCache := cache.New[tenantsservice.Tenant](
		cache.WithCapacity[tenantsservice.Tenant](cfg.CacheCapacity),
		cache.WithSweepInterval[tenantsservice.Tenant](cfg.CacheSweepInterval),
	)
	entitlementCache := cache.New[entitlementsservice.EffectiveEntitlement](
		cache.WithCapacity[entitlementsservice.EffectiveEntitlement](cfg.CacheCapacity),
		cache.WithSweepInterval[entitlementsservice.EffectiveEntitlement](cfg.CacheSweepInterval),
	)
	syncedPlanCache := cache.New[plan.Tier](
		cache.WithCapacity[plan.Tier](cfg.CacheCapacity),
		cache.WithSweepInterval[plan.Tier](cfg.CacheSweepInterval),
	)
	tenantCache.Start(rootCtx)
	entitlementCache.Start(rootCtx)
	syncedPlanCache.Start(rootCtx)
	defer tenantCache.Stop()
	defer entitlementCache.Stop()
	defer syncedPlanCache.Stop()

	var tenantRepo tenantsservice.Repository
	switch cfg.TenantStore {
	case "firestore":
		tenantRepo = tenantsrepo.NewFirestoreRepository(fsClient, logger)
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL required when TENANT_STORE=postgres")
		}
		pool, err := persistence.NewPool(rootCtx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			logger.Fatal("init postgres pool", zap.Error(err))
		}
		defer persistence.ClosePool(pool)
		store, err := persistence.NewTenantStore(pool)
		if err != nil {
			logger.Fatal("init tenant store", zap.Error(err))
		}
		tenantRepo = tenantsrepo.NewPostgresRepository(store)
	default:
		logger.Fatal("invalid TENANT_STORE (use firestore or postgres)", zap.String("store", cfg.TenantStore))
	}

	classifier := platformtenant.NewClassifier(cfg.SharedHostSuffixes)
	snapshot := cache.NewSnapshotFile(cfg.TenantSnapshotPath)

	resolver := tenantsservice.New(tenantRepo, classifier, tenantCache, snapshot, tenantsservice.Config{
		SlugTTL:   cfg.SlugCacheTTL,
		DomainTTL: cfg.DomainCacheTTL,
	}, logger)
	resolver.Start(rootCtx)

	userRepo := entitlementsrepo.NewFirestoreRepository(fsClient, logger)
	synchronizer := entitlementsservice.NewSynchronizer(tenantRepo, syncedPlanCache, cfg.DomainCacheTTL, logger)
	evaluator := entitlementsservice.New(userRepo, synchronizer, entitlementCache, entitlementsservice.Config{
		SnapshotTTL: cfg.EntitlementSnapshotTTL,
	}, logger)
	evaluator.Start(rootCtx)

	resolutionHandler := tenantshandler.New(resolver, logger)
	entitlementHandler := entitlementshandler.New(evaluator, logger)

	spec, err := contracts.LoadResolution()
	if err != nil {
		logger.Fatal("load openapi contract", zap.Error(err))
	}
	// The validator matches against the contract's servers list; clear it so
	// any host (shared or custom domain) validates.
	spec.Servers = nil

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	router.Use(platformlogging.RequestLogger(logger))
	router.Use(platformmiddleware.OpenAPIValidator(spec))
	router.Use(platformauth.Bearer(platformauth.FirebaseVerifier(fbAuth)))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	resolutionHandler.Routes(router)

	// Entitlement calls come from storefront pages on tenant hosts; resolve
	// the tenant once here so the handlers downstream read it from context.
	router.Group(func(gr chi.Router) {
		gr.Use(tenantmw.WithResolvedTenant(resolver))
		entitlementHandler.Routes(gr)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting resolution api",
			zap.String("port", cfg.Port),
			zap.Strings("shared_host_suffixes", cfg.SharedHostSuffixes),
			zap.String("tenant_store", cfg.TenantStore),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
