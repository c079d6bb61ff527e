// Command orchestratord runs the Project Orchestrator: the HTTP API, the
// Temporal worker that executes the create/delete project sagas, and every
// gateway/store/cache collaborator they depend on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/worker"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/api"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/assistantproxy"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/cache"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/config"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/database"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/forge"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/keymanager"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/messagebus"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/activities"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/temporalclient"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/workflows"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/platform"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/store"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/telemetry"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/vault"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("orchestratord v%s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid config: %v", err)
		os.Exit(2)
	}

	km := keymanager.New(cfg.Vault.StorePath)
	if password := os.Getenv("ORCHESTRATOR_VAULT_PASSWORD"); password != "" {
		if err := km.Unlock(password); err != nil {
			log.Fatalf("unlocking vault: %v", err)
		}
	} else {
		log.Printf("warning: ORCHESTRATOR_VAULT_PASSWORD not set, using default password")
		if err := km.Unlock("orchestrator-default-password"); err != nil {
			log.Fatalf("unlocking vault with default password: %v", err)
		}
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	logManager := logging.NewManager(db.DB())
	credVault := vault.New(km, logManager)
	projectStore := store.New(db)

	if err := store.SeedDefaultCatalog(db); err != nil {
		log.Fatalf("seeding default catalog: %v", err)
	}
	catalog, err := store.LoadCatalog(db, store.CatalogSettings{
		DefaultFlavorID: cfg.Image.DefaultFlavor, DefaultTierID: cfg.Image.DefaultTier,
		Registry: cfg.Image.Registry, Owner: cfg.Image.Owner, Version: cfg.Image.Version,
		BaseAssistantPort: cfg.Image.BasePort, GatewayPort: cfg.Image.GatewayPort,
		WildcardDomain: cfg.Image.WildcardDomain,
	})
	if err != nil {
		log.Fatalf("loading image catalog: %v", err)
	}

	m := metrics.New()

	forgeClient := forge.New(cfg.Forge.BaseURL, cfg.Forge.Token)
	forgeClient.SetMetrics(m)
	platformClient := platform.New(cfg.Platform.BaseURL, cfg.Platform.Token)
	platformClient.SetMetrics(m)

	var fqdnCache *cache.FQDNCache
	if cfg.Cache.Addr != "" {
		fqdnCache = cache.NewRedis(cfg.Cache.Addr, "", 0, 5*time.Minute)
	} else {
		fqdnCache = cache.NewInMemory(5 * time.Minute)
	}
	clientCache := cache.NewClientCache()

	bus, err := messagebus.New(messagebus.Config{URL: cfg.Bus.URL})
	if err != nil {
		log.Printf("warning: message bus unavailable, continuing without event fan-out: %v", err)
		bus = nil
	}

	locker := database.NewPostgresLocker(db)

	temporalClient, err := temporalclient.New(cfg.Temporal)
	if err != nil {
		log.Fatalf("connecting to temporal: %v", err)
	}
	defer temporalClient.Close()

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Printf("warning: telemetry initialization failed: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	orch := orchestrator.New(orchestrator.Deps{
		Forge: forgeClient, Platform: platformClient, Catalog: catalog, Vault: credVault,
		Store: projectStore, Temporal: temporalClient, Locker: locker, Bus: bus, Log: logManager,
		Metrics: m,
		ForgeOwner: cfg.Forge.DefaultOwner, GitUserEmail: cfg.Forge.GitUserEmail, GitUserName: cfg.Forge.GitUserName,
		PublicBaseURL: cfg.Forge.PublicBaseURL, PortRangeStart: cfg.Image.PortRangeStart, PortRangeEnd: cfg.Image.PortRangeEnd,
		HealthCheckPath: cfg.Image.HealthCheckPath,
	})

	proxy := &assistantproxy.Proxy{
		Store: projectStore, Platform: platformClient, FQDNs: fqdnCache, Clients: clientCache,
		WildcardDomain: cfg.Image.WildcardDomain, Metrics: m,
	}

	workflows.ConfigureRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)

	w := worker.New(temporalClient.Raw(), temporalClient.TaskQueue(), worker.Options{})
	sagaActivities := &activities.Activities{Forge: forgeClient, Platform: platformClient, Vault: credVault, Store: projectStore, Log: logManager}
	w.RegisterWorkflow(workflows.CreateProjectWorkflow)
	w.RegisterWorkflow(workflows.DeleteProjectWorkflow)
	w.RegisterActivity(sagaActivities)

	go func() {
		if err := w.Run(worker.InterruptCh()); err != nil {
			log.Fatalf("temporal worker stopped: %v", err)
		}
	}()

	srv := api.NewServer(orch, proxy, catalog, logManager, m, api.Config{
		EnableAuth: cfg.Security.EnableAuth, JWTSecret: cfg.Security.JWTSecret,
	})

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.HotReload.Enabled {
		hw, err := config.NewWatcher(*configPath, func(reloaded *config.Config) {
			srv.UpdateSecurity(reloaded.Security.EnableAuth, reloaded.Security.JWTSecret)
			log.Printf("config hot-reload: applied updated security settings")
		})
		if err != nil {
			log.Printf("warning: config hot-reload disabled, failed to watch %s: %v", *configPath, err)
		} else {
			go hw.Run(watchCtx)
		}
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("orchestratord listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
