package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/streamvest/pluginhost/internal/metrics"
	"github.com/streamvest/pluginhost/pkg/capability"
	"github.com/streamvest/pluginhost/pkg/catalog"
	"github.com/streamvest/pluginhost/pkg/sandbox"
)

const descriptorFileName = "sandbox.capnp"

// Sandbox is one pooled runtime instance
type Sandbox struct {
	Key        string
	ProviderID string
	TenantID   string
	Port       int
	Workdir    string
	StartedAt  time.Time

	// lastUsed is guarded by the manager mutex
	lastUsed time.Time
	process  Process
}

// inflight memoizes a spawn in progress so concurrent requests for the
// same reuse key wait for one spawn instead of racing their own
type inflight struct {
	done chan struct{}
	port int
	err  error
}

// Config wires a Manager's collaborators
type Config struct {
	Catalog   *catalog.Registry
	Compiler  *capability.Compiler
	Generator *sandbox.Generator
	Runtime   Runtime

	// HostRPCURL is the gateway address baked into capability bindings
	HostRPCURL  string
	WorkdirRoot string

	IdleTimeout   time.Duration
	SweepInterval time.Duration
	ProbeAttempts int
	ProbeDelay    time.Duration

	// Prober overrides the HTTP readiness probe, used in tests
	Prober Prober

	Metrics *metrics.Metrics
	Events  EventSink
	Logger  zerolog.Logger
}

// Manager owns the pool of running sandboxes: spawn, reuse, readiness,
// crash deregistration and idle eviction. It implements the gateway's
// PluginServer interface.
type Manager struct {
	catalog   *catalog.Registry
	compiler  *capability.Compiler
	generator *sandbox.Generator
	runtime   Runtime

	hostRPCURL  string
	workdirRoot string
	idleTimeout time.Duration
	sweepEvery  time.Duration

	prober  Prober
	metrics *metrics.Metrics
	events  EventSink
	logger  zerolog.Logger
	cron    *cron.Cron
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	entries map[string]*Sandbox
	pending map[string]*inflight
}

// NewManager validates the config and creates a stopped manager; call
// Start to begin the eviction sweep.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog registry is required")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("capability compiler is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("sandbox generator is required")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if cfg.HostRPCURL == "" {
		return nil, fmt.Errorf("host RPC URL is required")
	}
	if cfg.WorkdirRoot == "" {
		return nil, fmt.Errorf("workdir root is required")
	}

	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 20 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = 40
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = 250 * time.Millisecond
	}

	prober := cfg.Prober
	if prober == nil {
		prober = readinessProbe(cfg.ProbeAttempts, cfg.ProbeDelay)
	}

	return &Manager{
		catalog:     cfg.Catalog,
		compiler:    cfg.Compiler,
		generator:   cfg.Generator,
		runtime:     cfg.Runtime,
		hostRPCURL:  cfg.HostRPCURL,
		workdirRoot: cfg.WorkdirRoot,
		idleTimeout: cfg.IdleTimeout,
		sweepEvery:  cfg.SweepInterval,
		prober:      prober,
		metrics:     cfg.Metrics,
		events:      cfg.Events,
		logger:      cfg.Logger.With().Str("component", "pool").Logger(),
		now:         time.Now,
		entries:     make(map[string]*Sandbox),
		pending:     make(map[string]*inflight),
	}, nil
}

// Start begins the periodic idle-eviction sweep
func (m *Manager) Start() {
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.sweepEvery), func() {
		m.Cleanup()
	}); err != nil {
		m.logger.Error().Err(err).Msg("Failed to schedule eviction sweep")
		return
	}
	m.cron.Start()
	m.logger.Info().
		Dur("idleTimeout", m.idleTimeout).
		Dur("sweepInterval", m.sweepEvery).
		Msg("Pool manager started")
}

// GetOrServe returns the port of a sandbox for the provider and config,
// spawning one when no live instance exists. Concurrent calls with the
// same reuse key coalesce onto a single spawn. The spawn itself is
// detached from ctx: cancelling the request does not kill the sandbox,
// it only stops this caller from waiting.
func (m *Manager) GetOrServe(ctx context.Context, tenantID, providerID string, config map[string]any, streamID *int64) (int, error) {
	key, err := ReuseKey(providerID, config)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}

	if call, ok := m.pending[key]; ok {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-call.done:
		}
		return call.port, call.err
	}

	if sb, ok := m.entries[key]; ok {
		if sb.process.Alive() {
			sb.lastUsed = m.now()
			port := sb.Port
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.SandboxReuseHitsTotal.Inc()
			}
			m.publish(EventSandboxReused, sb)
			m.logger.Debug().
				Str("providerId", providerID).
				Int("port", port).
				Msg("Reusing pooled sandbox")
			return port, nil
		}
		// exit watcher has not caught up yet
		delete(m.entries, key)
		if m.metrics != nil {
			m.metrics.SandboxesActive.Dec()
		}
	}

	call := &inflight{done: make(chan struct{})}
	m.pending[key] = call
	m.mu.Unlock()

	start := m.now()
	sb, err := m.spawn(key, tenantID, providerID, streamID)

	m.mu.Lock()
	delete(m.pending, key)
	if err == nil {
		sb.lastUsed = m.now()
		m.entries[key] = sb
	}
	m.mu.Unlock()

	// watcher starts only once the entry is registered, so an instant
	// exit is guaranteed to deregister it
	if err == nil {
		go m.watchExit(sb)
	}

	if err != nil {
		if m.metrics != nil {
			m.metrics.SandboxSpawnsTotal.WithLabelValues(providerID, "error").Inc()
		}
		call.err = err
		close(call.done)
		return 0, err
	}

	if m.metrics != nil {
		m.metrics.SandboxSpawnsTotal.WithLabelValues(providerID, "ok").Inc()
		m.metrics.SandboxesActive.Inc()
		m.metrics.SandboxStartupDuration.Observe(m.now().Sub(start).Seconds())
	}
	m.publish(EventSandboxSpawned, sb)
	m.logger.Info().
		Str("providerId", providerID).
		Str("tenantId", tenantID).
		Int("port", sb.Port).
		Msg("Sandbox ready")

	call.port = sb.Port
	close(call.done)
	return sb.Port, nil
}

// spawn resolves, compiles, generates, launches and probes one sandbox.
// It runs on a background context so the triggering request's
// cancellation cannot orphan a half-started process.
func (m *Manager) spawn(key, tenantID, providerID string, streamID *int64) (*Sandbox, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	entry, err := m.catalog.FindByProvider(providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}

	source, err := fetchSource(ctx, entry.LogicPath)
	if err != nil {
		return nil, err
	}

	bindings, err := m.compiler.Compile(entry.Manifest.Permissions, capability.Request{
		HostRPCURL: m.hostRPCURL,
		TenantID:   tenantID,
		ProviderID: providerID,
		StreamID:   streamID,
	})
	if err != nil {
		return nil, err
	}

	port, err := allocatePort()
	if err != nil {
		return nil, err
	}

	descriptor, err := m.generator.Generate(ctx, sandbox.Input{
		Port: port,
		Provider: sandbox.Provider{
			ID:     providerID,
			Source: source,
			Type:   providerType(entry),
		},
		TenantID:   tenantID,
		StreamID:   streamID,
		HostRPCURL: m.hostRPCURL,
		Bindings:   bindings,
	})
	if err != nil {
		return nil, err
	}

	workdir := filepath.Join(m.workdirRoot, key)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox workdir: %w", err)
	}
	configPath := filepath.Join(workdir, descriptorFileName)
	if err := os.WriteFile(configPath, []byte(descriptor), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write sandbox descriptor: %w", err)
	}

	proc, err := m.runtime.Start(configPath)
	if err != nil {
		os.RemoveAll(workdir)
		return nil, err
	}

	sb := &Sandbox{
		Key:        key,
		ProviderID: providerID,
		TenantID:   tenantID,
		Port:       port,
		Workdir:    workdir,
		StartedAt:  m.now(),
		process:    proc,
	}

	if err := m.prober(ctx, port); err != nil {
		proc.Kill()
		os.RemoveAll(workdir)
		return nil, fmt.Errorf("sandbox for %s failed readiness: %w", providerID, err)
	}

	return sb, nil
}

// watchExit deregisters a sandbox whose process died underneath the pool
func (m *Manager) watchExit(sb *Sandbox) {
	err := sb.process.Wait()
	if !m.remove(sb) {
		// already evicted or replaced; nothing to account for
		return
	}

	if m.metrics != nil {
		m.metrics.SandboxCrashesTotal.Inc()
	}
	m.publish(EventSandboxCrashed, sb)
	m.logger.Warn().
		Str("providerId", sb.ProviderID).
		Int("port", sb.Port).
		Err(err).
		Msg("Sandbox process exited unexpectedly")

	if rmErr := os.RemoveAll(sb.Workdir); rmErr != nil {
		m.logger.Warn().Err(rmErr).Str("workdir", sb.Workdir).Msg("Failed to remove crashed sandbox workdir")
	}
}

// Cleanup evicts every sandbox idle for at least the idle timeout and
// returns how many were reclaimed. Workdir removal is best effort; a
// failed delete never blocks the rest of the sweep.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	now := m.now()
	var expired []*Sandbox
	for _, sb := range m.entries {
		if now.Sub(sb.lastUsed) >= m.idleTimeout {
			expired = append(expired, sb)
		}
	}
	m.mu.Unlock()

	evicted := 0
	for _, sb := range expired {
		if !m.remove(sb) {
			continue
		}

		if err := sb.process.Signal(syscall.SIGTERM); err != nil {
			m.logger.Debug().Err(err).Str("providerId", sb.ProviderID).Msg("Eviction signal failed")
		}
		if err := os.RemoveAll(sb.Workdir); err != nil {
			m.logger.Warn().Err(err).Str("workdir", sb.Workdir).Msg("Failed to remove evicted sandbox workdir")
		}

		evicted++
		if m.metrics != nil {
			m.metrics.SandboxEvictionsTotal.Inc()
		}
		m.publish(EventSandboxEvicted, sb)
		m.logger.Info().
			Str("providerId", sb.ProviderID).
			Int("port", sb.Port).
			Msg("Evicted idle sandbox")
	}

	return evicted
}

// remove drops the entry if it is still the one registered under its key
func (m *Manager) remove(sb *Sandbox) bool {
	m.mu.Lock()
	cur, ok := m.entries[sb.Key]
	if !ok || cur != sb {
		m.mu.Unlock()
		return false
	}
	delete(m.entries, sb.Key)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SandboxesActive.Dec()
	}
	return true
}

// Len returns the number of pooled sandboxes
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop terminates the sweep and signals every sandbox to shut down
func (m *Manager) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}

	m.mu.Lock()
	m.closed = true
	remaining := make([]*Sandbox, 0, len(m.entries))
	for _, sb := range m.entries {
		remaining = append(remaining, sb)
	}
	m.mu.Unlock()

	for _, sb := range remaining {
		if !m.remove(sb) {
			continue
		}
		if err := sb.process.Signal(syscall.SIGTERM); err != nil {
			sb.process.Kill()
		}
	}

	m.logger.Info().Int("terminated", len(remaining)).Msg("Pool manager stopped")
}

// publish forwards a lifecycle event when a sink is attached
func (m *Manager) publish(event string, sb *Sandbox) {
	if m.events == nil {
		return
	}
	m.events.Publish(event, map[string]any{
		"providerId": sb.ProviderID,
		"tenantId":   sb.TenantID,
		"port":       sb.Port,
	})
}

// providerType maps an optional manifest metadata hint onto the sandbox
// provider type; module is the default.
func providerType(entry *catalog.Entry) sandbox.ProviderType {
	if t, ok := entry.Manifest.Metadata["type"].(string); ok && t == string(sandbox.TypeScript) {
		return sandbox.TypeScript
	}
	return sandbox.TypeModule
}
