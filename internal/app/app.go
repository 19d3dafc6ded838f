package app

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/cache"
	"toolmesh/internal/infra/catalog"
	"toolmesh/internal/infra/connector"
	"toolmesh/internal/infra/discovery"
	"toolmesh/internal/infra/registry"
	"toolmesh/internal/infra/retry"
	"toolmesh/internal/infra/safety"
	"toolmesh/internal/infra/store"
	"toolmesh/internal/infra/telemetry"
)

// App owns the full wiring: catalog, connectors, registry, discovery,
// cache, orchestrator and observability. Construction is explicit; every
// dependency is passed down, nothing is global.
type App struct {
	logger     *zap.Logger
	configPath string
	loader     *catalog.Loader
	runtime    domain.RuntimeConfig

	promRegistry *prometheus.Registry
	metrics      *telemetry.PrometheusMetrics

	connectors   *ConnectorSet
	registry     *registry.ToolRegistry
	cache        *cache.ResultCache
	validator    *safety.Validator
	executor     *retry.Executor
	snapshots    *store.SnapshotStore
	discovery    *discovery.Service
	orchestrator *Orchestrator

	mu            sync.Mutex
	serverConfigs map[string]domain.ConnectorConfig
}

// AppOptions configures App construction.
type AppOptions struct {
	Logger *zap.Logger
	// Permissions gates remediation tools. Nil skips permission checks.
	Permissions safety.PermissionChecker
}

// New loads the catalog at configPath and wires every component.
// Connectors are built but not yet initialized; Run does that.
func New(ctx context.Context, configPath string, opts AppOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loader := catalog.NewLoader(logger)
	loaded, err := loader.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}
	runtime := loaded.Runtime

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	snapshots, err := store.Open(runtime.SnapshotPath)
	if err != nil {
		// Warm start is an optimization; a broken snapshot file must not
		// keep the daemon down.
		logger.Warn("snapshot store unavailable", zap.String("path", runtime.SnapshotPath), zap.Error(err))
		snapshots = nil
	}

	reg := registry.NewToolRegistry(logger)
	resultCache := cache.New(cache.Options{
		TTLs: map[string]time.Duration{
			cache.NamespaceResource:      runtime.ResourceCacheTTL(),
			cache.NamespaceDocumentation: runtime.DocumentationCacheTTL(),
		},
		Logger:  logger,
		Metrics: metrics,
	})
	executor := retry.NewExecutor(retry.Policy{
		MaxAttempts:   runtime.RetryMaxAttempts,
		BaseDelay:     runtime.RetryBase(),
		BackoffFactor: runtime.RetryBackoffFactor,
		MaxDelay:      runtime.RetryMax(),
	}, retry.Options{Logger: logger, Metrics: metrics})
	validator := safety.NewValidator(logger)

	app := &App{
		logger:        logger.Named("app"),
		configPath:    configPath,
		loader:        loader,
		runtime:       runtime,
		promRegistry:  promRegistry,
		metrics:       metrics,
		connectors:    NewConnectorSet(),
		registry:      reg,
		cache:         resultCache,
		validator:     validator,
		executor:      executor,
		snapshots:     snapshots,
		serverConfigs: make(map[string]domain.ConnectorConfig),
	}

	var snapshotStore discovery.SnapshotStore
	if snapshots != nil {
		snapshotStore = snapshots
	}
	app.discovery = discovery.NewService(app.connectors.All, reg, discovery.Options{
		Interval: runtime.DiscoveryInterval(),
		Store:    snapshotStore,
		Logger:   logger,
		Metrics:  metrics,
	})
	app.orchestrator = NewOrchestrator(app.connectors, reg, executor, OrchestratorOptions{
		Cache:       resultCache,
		Validator:   validator,
		Permissions: opts.Permissions,
		Logger:      logger,
		Metrics:     metrics,
		CallTimeout: runtime.CallTimeout(),
	})

	app.applyCatalog(ctx, loaded, false)
	return app, nil
}

// Orchestrator exposes the call surface.
func (a *App) Orchestrator() *Orchestrator {
	return a.orchestrator
}

// Registry exposes the tool index.
func (a *App) Registry() *registry.ToolRegistry {
	return a.registry
}

// Discovery exposes the discovery service.
func (a *App) Discovery() *discovery.Service {
	return a.discovery
}

// RunDiscovery initializes connectors, runs one discovery pass and
// shuts everything down again. Used by the discover command.
func (a *App) RunDiscovery(ctx context.Context) []domain.DiscoveryResult {
	a.initializeConnectors(ctx)
	results := a.discovery.RunOnce(ctx)
	a.shutdown()
	return results
}

// Run brings connectors up, warms the registry, starts periodic
// discovery, the config watcher and the observability server, then
// blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.initializeConnectors(ctx)

	if err := a.discovery.WarmFromStore(); err != nil {
		a.logger.Warn("registry warm-up failed", zap.Error(err))
	}
	a.discovery.RunOnce(ctx)
	if err := a.discovery.Start(); err != nil {
		return err
	}

	watcher := catalog.NewWatcher(a.loader, a.configPath, func(loaded domain.Catalog) {
		a.applyCatalog(ctx, loaded, true)
		a.discovery.RunOnce(ctx)
	}, a.logger)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- telemetry.StartServer(ctx, telemetry.ServerOptions{
			Addr:     a.runtime.ObservabilityListenAddress,
			Gatherer: a.promRegistry,
			Health:   a.orchestrator.HealthCheckAll,
			Logger:   a.logger,
		})
	}()

	select {
	case err := <-serverErr:
		a.shutdown()
		return err
	case <-ctx.Done():
		a.shutdown()
		return nil
	}
}

func (a *App) initializeConnectors(ctx context.Context) {
	connectors := a.connectors.All()
	var wg sync.WaitGroup
	for _, conn := range connectors {
		wg.Add(1)
		go func(conn domain.Connector) {
			defer wg.Done()
			if err := conn.Initialize(ctx); err != nil {
				// Non-ready is a per-server condition; peers proceed.
				a.logger.Warn("connector initialization failed",
					telemetry.ServerField(conn.Name()), zap.Error(err))
			}
		}(conn)
	}
	wg.Wait()
}

// applyCatalog reconciles the connector set with a loaded catalog: new
// servers are added, changed servers are rebuilt, vanished servers are
// closed and scrubbed from registry, cache and snapshots. initialize
// dials new connectors immediately; at construction that is deferred to
// Run.
func (a *App) applyCatalog(ctx context.Context, loaded domain.Catalog, initialize bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	desired := make(map[string]domain.ConnectorConfig, len(loaded.Servers))
	for _, cfg := range loaded.Servers {
		desired[cfg.Name] = cfg
	}

	for name := range a.serverConfigs {
		if _, keep := desired[name]; keep {
			continue
		}
		if conn, ok := a.connectors.Remove(name); ok {
			_ = conn.Close()
		}
		a.registry.RemoveServerTools(name)
		a.cache.InvalidateServer(name)
		if a.snapshots != nil {
			if err := a.snapshots.DeleteServer(name); err != nil {
				a.logger.Warn("snapshot delete failed", telemetry.ServerField(name), zap.Error(err))
			}
		}
		delete(a.serverConfigs, name)
		a.logger.Info("server removed", telemetry.ServerField(name))
	}

	for name, cfg := range desired {
		previous, known := a.serverConfigs[name]
		if known && reflect.DeepEqual(previous, cfg) {
			continue
		}
		conn, err := connector.New(cfg, connector.Options{Logger: a.logger, Metrics: a.metrics})
		if err != nil {
			a.logger.Error("connector build failed", telemetry.ServerField(name), zap.Error(err))
			continue
		}
		if old, existed := a.connectors.Put(conn); existed {
			_ = old.Close()
			a.cache.InvalidateServer(name)
		}
		a.serverConfigs[name] = cfg
		if known {
			a.logger.Info("server reconfigured", telemetry.ServerField(name))
		} else {
			a.logger.Info("server added", telemetry.ServerField(name))
		}
		if initialize {
			if err := conn.Initialize(ctx); err != nil {
				a.logger.Warn("connector initialization failed",
					telemetry.ServerField(name), zap.Error(err))
			}
		}
	}
}

func (a *App) shutdown() {
	a.discovery.Stop()
	for _, conn := range a.connectors.All() {
		if err := conn.Close(); err != nil {
			a.logger.Warn("connector close failed",
				telemetry.ServerField(conn.Name()), zap.Error(err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.logger.Warn("snapshot store close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
