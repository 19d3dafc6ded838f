// Package discovery reconciles each connector's remote tool catalog with
// the registry, inferring metadata for tools that arrive without it.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/registry"
)

// ConnectorProvider supplies the current connector set. The set may
// change between runs when the catalog is reloaded.
type ConnectorProvider func() []domain.Connector

// SnapshotStore persists per-server catalogs so the registry can be
// warmed before the first live discovery completes.
type SnapshotStore interface {
	SaveServerTools(serverID string, tools []domain.ToolMetadata) error
	LoadAll() (map[string][]domain.ToolMetadata, error)
}

// Options configures the discovery service.
type Options struct {
	Interval time.Duration
	Store    SnapshotStore
	Logger   *zap.Logger
	Metrics  domain.Metrics
}

// Service runs periodic and on-demand discovery across all connectors.
// One server's failure never blocks the others.
type Service struct {
	provider ConnectorProvider
	registry *registry.ToolRegistry
	store    SnapshotStore
	logger   *zap.Logger
	metrics  domain.Metrics
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewService constructs a discovery service.
func NewService(provider ConnectorProvider, reg *registry.ToolRegistry, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = domain.DefaultDiscoveryIntervalSeconds * time.Second
	}
	return &Service{
		provider: provider,
		registry: reg,
		store:    opts.Store,
		logger:   logger.Named("discovery"),
		metrics:  metrics,
		interval: interval,
	}
}

// Start schedules periodic discovery. Safe to call once; Stop reverses it.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	runner := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	entryID, err := runner.AddFunc(spec, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule discovery: %w", err)
	}
	s.cron = runner
	s.entryID = entryID
	runner.Start()
	s.logger.Info("periodic discovery started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts periodic discovery; in-flight runs complete.
func (s *Service) Stop() {
	s.mu.Lock()
	runner := s.cron
	s.cron = nil
	s.mu.Unlock()
	if runner == nil {
		return
	}
	<-runner.Stop().Done()
	s.logger.Info("periodic discovery stopped")
}

// Running reports whether periodic discovery is scheduled.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// RunOnce discovers every connector concurrently, one DiscoveryResult
// per server in stable name order. Discovery within a single server is
// sequential: catalog call, then per-tool inference.
func (s *Service) RunOnce(ctx context.Context) []domain.DiscoveryResult {
	connectors := s.provider()
	sort.Slice(connectors, func(i, j int) bool {
		return connectors[i].Name() < connectors[j].Name()
	})

	results := make([]domain.DiscoveryResult, len(connectors))
	var wg sync.WaitGroup
	for i, conn := range connectors {
		wg.Add(1)
		go func(i int, conn domain.Connector) {
			defer wg.Done()
			results[i] = s.discoverServer(ctx, conn)
		}(i, conn)
	}
	wg.Wait()

	for _, result := range results {
		if !result.Success {
			s.logger.Warn("discovery failed",
				zap.String("server", result.ServerName),
				zap.String("error", result.ErrorMessage),
			)
			continue
		}
		s.logger.Debug("discovery complete",
			zap.String("server", result.ServerName),
			zap.Int("discovered", result.ToolsDiscovered),
			zap.Int("added", result.ToolsAdded),
			zap.Int("updated", result.ToolsUpdated),
			zap.Int("removed", result.ToolsRemoved),
		)
	}
	return results
}

// WarmFromStore seeds the registry from the last persisted snapshot.
// Used at startup so lookups work before connectors come up.
func (s *Service) WarmFromStore() error {
	if s.store == nil {
		return nil
	}
	snapshots, err := s.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	total := 0
	for _, tools := range snapshots {
		for _, tool := range tools {
			s.registry.RegisterTool(Enrich(tool))
			total++
		}
	}
	if total > 0 {
		s.logger.Info("registry warmed from snapshot", zap.Int("tools", total))
	}
	return nil
}

func (s *Service) discoverServer(ctx context.Context, conn domain.Connector) domain.DiscoveryResult {
	start := time.Now()
	result := domain.DiscoveryResult{ServerName: conn.Name()}

	defer func() {
		result.DiscoveryTime = time.Since(start)
		var err error
		if !result.Success {
			err = fmt.Errorf("%s", result.ErrorMessage)
		}
		s.metrics.ObserveDiscovery(result.ServerName, result.ToolsAdded, result.ToolsUpdated, result.ToolsRemoved, err)
	}()

	if !conn.State().Accepting() {
		result.ErrorMessage = domain.ErrConnectorNotReady.Error()
		return result
	}

	discovered, err := conn.DiscoverTools(ctx)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	existing := s.registry.GetToolsByServer(conn.Name())
	known := make(map[string]struct{}, len(existing))
	for _, tool := range existing {
		known[tool.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(discovered))
	for _, tool := range discovered {
		seen[tool.Name] = struct{}{}
		s.registry.RegisterTool(Enrich(tool))
		if _, ok := known[tool.Name]; ok {
			result.ToolsUpdated++
		} else {
			result.ToolsAdded++
		}
	}
	for _, tool := range existing {
		if _, ok := seen[tool.Name]; ok {
			continue
		}
		s.registry.RemoveTool(tool.Key())
		result.ToolsRemoved++
	}

	result.ToolsDiscovered = len(discovered)
	result.Success = true

	if s.store != nil {
		if err := s.store.SaveServerTools(conn.Name(), s.registry.GetToolsByServer(conn.Name())); err != nil {
			s.logger.Warn("persist snapshot failed",
				zap.String("server", conn.Name()),
				zap.Error(err),
			)
		}
	}
	return result
}
