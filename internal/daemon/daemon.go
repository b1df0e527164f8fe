package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/streamvest/pluginhost/internal/config"
	"github.com/streamvest/pluginhost/internal/logger"
	"github.com/streamvest/pluginhost/internal/metrics"
	"github.com/streamvest/pluginhost/pkg/capability"
	"github.com/streamvest/pluginhost/pkg/catalog"
	"github.com/streamvest/pluginhost/pkg/gateway"
	"github.com/streamvest/pluginhost/pkg/pool"
	"github.com/streamvest/pluginhost/pkg/sandbox"
)

// Daemon wires the plugin host together: catalog discovery, the sandbox
// pool and the RPC gateway.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	registry *catalog.Registry
	snapshot *catalog.Store
	scanner  *catalog.Scanner
	watcher  *catalog.Watcher

	gatewayStore  *gateway.Store
	gatewayServer *gateway.Server
	pool          *pool.Manager
	lifecycle     *LifecycleManager
	rescanCron    *cron.Cron

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New builds a daemon from config, in dependency order
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	zl := log.Get()
	m := metrics.New()

	d := &Daemon{
		config:  cfg,
		logger:  log,
		metrics: m,
	}

	if err := d.initializeCatalog(zl); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	if err := d.initializeServices(zl); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCatalog restores the snapshot and prepares discovery sources
func (d *Daemon) initializeCatalog(zl zerolog.Logger) error {
	d.registry = catalog.NewRegistry()
	d.snapshot = catalog.NewStore(d.config.Catalog.SnapshotPath)

	entries, err := d.snapshot.Load()
	if err != nil {
		zl.Warn().Err(err).Msg("Failed to restore catalog snapshot, starting fresh")
	} else {
		d.registry.Load(entries)
	}

	var sources []catalog.Source
	if dir := d.config.Catalog.Dir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plugin directory: %w", err)
		}
		sources = append(sources, catalog.NewDirSource(dir, zl))
	}
	if url := d.config.Catalog.RepoURL; url != "" {
		sources = append(sources, catalog.NewRepoSource(url, zl))
	}

	d.scanner = catalog.NewScanner(sources, catalog.NewManifestLoader(zl), d.registry, zl)
	return nil
}

// initializeServices builds the gateway and the sandbox pool. They share
// one broadcaster so pool lifecycle events reach dashboard clients.
func (d *Daemon) initializeServices(zl zerolog.Logger) error {
	store, err := gateway.NewStore(d.config.Gateway.DBPath, zl)
	if err != nil {
		return fmt.Errorf("failed to open gateway store: %w", err)
	}
	d.gatewayStore = store

	broadcaster := gateway.NewEventBroadcaster(zl)
	hostURL := fmt.Sprintf("http://127.0.0.1:%d", d.config.Gateway.Port)

	compiler := capability.NewCompiler(zl, func(resource, scope string) {
		d.metrics.PermissionsDroppedTotal.WithLabelValues(resource, scope).Inc()
	})
	bundler := sandbox.NewExecBundler(d.config.Sandbox.BundlerBin, zl)
	generator := sandbox.NewGenerator(bundler, d.config.Sandbox.ShimDir, d.config.Sandbox.CompatibilityDate, zl)

	d.pool, err = pool.NewManager(pool.Config{
		Catalog:       d.registry,
		Compiler:      compiler,
		Generator:     generator,
		Runtime:       pool.NewWorkerdRuntime(d.config.Sandbox.RuntimeBin, zl),
		HostRPCURL:    hostURL,
		WorkdirRoot:   d.config.Sandbox.WorkdirRoot,
		IdleTimeout:   d.config.Pool.IdleTimeout,
		SweepInterval: d.config.Pool.SweepInterval,
		ProbeAttempts: d.config.Pool.ProbeAttempts,
		ProbeDelay:    d.config.Pool.ProbeDelay,
		Metrics:       d.metrics,
		Events:        broadcaster,
		Logger:        zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create pool manager: %w", err)
	}

	d.gatewayServer, err = gateway.NewServer(gateway.Config{
		Port:         d.config.Gateway.Port,
		Store:        store,
		PluginServer: d.pool,
		Metrics:      d.metrics,
		Logger:       zl,
		Broadcaster:  broadcaster,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	return nil
}

// Start runs the initial catalog scan and brings all services up
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zl := d.logger.Get()
	zl.Info().Msg("Starting plugin host daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := os.MkdirAll(d.config.Sandbox.WorkdirRoot, 0755); err != nil {
		return fmt.Errorf("failed to create sandbox workdir root: %w", err)
	}

	d.rescan(context.Background())

	if dir := d.config.Catalog.Dir; dir != "" {
		watcher, err := catalog.NewWatcher(zl, func() {
			d.rescan(context.Background())
		})
		if err != nil {
			zl.Warn().Err(err).Msg("Failed to create catalog watcher, relying on periodic rescan")
		} else if err := watcher.Watch(dir); err != nil {
			zl.Warn().Err(err).Str("dir", dir).Msg("Failed to watch plugin directory")
			watcher.Stop()
		} else {
			d.watcher = watcher
		}
	}

	if interval := d.config.Catalog.RescanInterval; interval > 0 {
		d.rescanCron = cron.New()
		if _, err := d.rescanCron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			d.rescan(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule catalog rescan: %w", err)
		}
		d.rescanCron.Start()
	}

	d.pool.Start()

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	zl.Info().
		Int("catalogEntries", d.registry.Len()).
		Int("gatewayPort", d.config.Gateway.Port).
		Msg("Daemon started")

	return nil
}

// rescan runs one discovery pass and persists the updated snapshot
func (d *Daemon) rescan(ctx context.Context) {
	zl := d.logger.Get()

	result, err := d.scanner.Scan(ctx)
	if err != nil {
		d.metrics.CatalogScanErrors.Inc()
		zl.Error().Err(err).Msg("Catalog scan failed")
		return
	}

	d.metrics.CatalogScansTotal.Inc()
	d.metrics.CatalogEntriesNew.Add(float64(len(result.New)))
	d.metrics.CatalogEntriesUpdated.Add(float64(len(result.Updated)))
	d.metrics.CatalogScanErrors.Add(float64(len(result.Errors)))

	if err := d.snapshot.Save(d.registry.List()); err != nil {
		zl.Warn().Err(err).Msg("Failed to persist catalog snapshot")
	}
}

// Stop shuts everything down in reverse order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	zl := d.logger.Get()
	zl.Info().Msg("Stopping plugin host daemon")

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.rescanCron != nil {
		d.rescanCron.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.gatewayServer.Stop(ctx); err != nil {
		zl.Warn().Err(err).Msg("Gateway shutdown error")
	}

	d.pool.Stop()

	if err := d.snapshot.Save(d.registry.List()); err != nil {
		zl.Warn().Err(err).Msg("Failed to persist catalog snapshot on shutdown")
	}
	if err := d.gatewayStore.Close(); err != nil {
		zl.Warn().Err(err).Msg("Failed to close gateway store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Lifecycle manager stop error")
	}

	zl.Info().Msg("Daemon stopped")
	return nil
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl := d.logger.Get()
	zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status describes the running daemon
type Status struct {
	Running        bool          `json:"running"`
	Uptime         time.Duration `json:"uptime"`
	CatalogEntries int           `json:"catalogEntries"`
	ActiveSandbox  int           `json:"activeSandboxes"`
}

// Status reports the daemon's current state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Status{
		Running:        d.running,
		CatalogEntries: d.registry.Len(),
		ActiveSandbox:  d.pool.Len(),
	}
	if d.running {
		s.Uptime = time.Since(d.startTime)
	}
	return s
}

// Scanner exposes the catalog scanner for one-shot CLI scans
func (d *Daemon) Scanner() *catalog.Scanner {
	return d.scanner
}

// Registry exposes the plugin catalog
func (d *Daemon) Registry() *catalog.Registry {
	return d.registry
}
