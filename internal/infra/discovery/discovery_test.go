package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/registry"
)

type stubConnector struct {
	name  string
	state domain.ConnectorState
	tools []domain.ToolMetadata
	err   error
}

func (s *stubConnector) Name() string                 { return s.name }
func (s *stubConnector) State() domain.ConnectorState { return s.state }
func (s *stubConnector) Initialize(context.Context) error {
	return nil
}
func (s *stubConnector) HealthCheck(context.Context) bool { return s.state.Accepting() }
func (s *stubConnector) DiscoverTools(context.Context) ([]domain.ToolMetadata, error) {
	return s.tools, s.err
}
func (s *stubConnector) CallTool(_ context.Context, name string, _ map[string]any) domain.ToolResult {
	return domain.ToolResult{ToolName: name, ServerID: s.name, Success: true}
}
func (s *stubConnector) Close() error { return nil }

type memoryStore struct {
	saved map[string][]domain.ToolMetadata
}

func (m *memoryStore) SaveServerTools(serverID string, tools []domain.ToolMetadata) error {
	if m.saved == nil {
		m.saved = make(map[string][]domain.ToolMetadata)
	}
	m.saved[serverID] = tools
	return nil
}

func (m *memoryStore) LoadAll() (map[string][]domain.ToolMetadata, error) {
	return m.saved, nil
}

func provider(connectors ...domain.Connector) ConnectorProvider {
	return func() []domain.Connector { return connectors }
}

func TestRunOnce_NewToolCountsAsAdded(t *testing.T) {
	reg := registry.NewToolRegistry(nil)
	conn := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{
			{Name: "scan_vulnerabilities", Description: "Scan for vulnerabilities", ServerID: "sec"},
		},
	}
	svc := NewService(provider(conn), reg, Options{})

	results := svc.RunOnce(context.Background())
	require.Len(t, results, 1)
	result := results[0]
	require.True(t, result.Success)
	require.Equal(t, 1, result.ToolsDiscovered)
	require.Equal(t, 1, result.ToolsAdded)
	require.Zero(t, result.ToolsUpdated)
	require.Zero(t, result.ToolsRemoved)

	// Inference filled the missing metadata.
	registered, ok := reg.GetTool(domain.NewToolKey("sec", "scan_vulnerabilities"))
	require.True(t, ok)
	require.Equal(t, domain.CategorySecurity, registered.Category)
	require.Contains(t, registered.Capabilities, domain.CapabilityVulnerabilityScanning)
}

func TestRunOnce_KnownToolCountsAsUpdated(t *testing.T) {
	reg := registry.NewToolRegistry(nil)
	conn := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{
			{Name: "scan", Description: "Scan", ServerID: "sec"},
		},
	}
	svc := NewService(provider(conn), reg, Options{})

	svc.RunOnce(context.Background())
	results := svc.RunOnce(context.Background())
	require.Equal(t, 1, results[0].ToolsUpdated)
	require.Zero(t, results[0].ToolsAdded)
}

func TestRunOnce_VanishedToolIsRemoved(t *testing.T) {
	reg := registry.NewToolRegistry(nil)
	conn := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{
			{Name: "scan", ServerID: "sec"},
			{Name: "audit", ServerID: "sec"},
		},
	}
	svc := NewService(provider(conn), reg, Options{})
	svc.RunOnce(context.Background())

	conn.tools = conn.tools[:1]
	results := svc.RunOnce(context.Background())
	require.Equal(t, 1, results[0].ToolsRemoved)
	require.Len(t, reg.GetToolsByServer("sec"), 1)
}

func TestRunOnce_FailureIsolatedPerServer(t *testing.T) {
	reg := registry.NewToolRegistry(nil)
	healthy := &stubConnector{
		name:  "docs",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{{Name: "search_documentation", ServerID: "docs"}},
	}
	broken := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		err:   errors.New("catalog unavailable"),
	}
	svc := NewService(provider(broken, healthy), reg, Options{})

	results := svc.RunOnce(context.Background())
	require.Len(t, results, 2)

	// Stable name order: docs before sec.
	require.Equal(t, "docs", results[0].ServerName)
	require.True(t, results[0].Success)
	require.Equal(t, "sec", results[1].ServerName)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].ErrorMessage, "catalog unavailable")

	require.Len(t, reg.GetToolsByServer("docs"), 1)
}

func TestRunOnce_NotReadyConnectorDoesNotDropTools(t *testing.T) {
	reg := registry.NewToolRegistry(nil)
	conn := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{{Name: "scan", ServerID: "sec"}},
	}
	svc := NewService(provider(conn), reg, Options{})
	svc.RunOnce(context.Background())

	conn.state = domain.ConnectorUninitialized
	results := svc.RunOnce(context.Background())
	require.False(t, results[0].Success)
	require.Contains(t, results[0].ErrorMessage, "connector not ready")

	// Registry keeps the last known catalog while the server is down.
	require.Len(t, reg.GetToolsByServer("sec"), 1)
}

func TestWarmFromStore_SeedsRegistry(t *testing.T) {
	store := &memoryStore{
		saved: map[string][]domain.ToolMetadata{
			"sec": {{Name: "scan_vulnerabilities", Description: "Scan for vulnerabilities", ServerID: "sec"}},
		},
	}
	reg := registry.NewToolRegistry(nil)
	svc := NewService(provider(), reg, Options{Store: store})

	require.NoError(t, svc.WarmFromStore())
	require.Len(t, reg.GetToolsByServer("sec"), 1)
}

func TestRunOnce_PersistsSnapshot(t *testing.T) {
	store := &memoryStore{}
	reg := registry.NewToolRegistry(nil)
	conn := &stubConnector{
		name:  "sec",
		state: domain.ConnectorReady,
		tools: []domain.ToolMetadata{{Name: "scan", ServerID: "sec"}},
	}
	svc := NewService(provider(conn), reg, Options{Store: store})

	svc.RunOnce(context.Background())
	require.Len(t, store.saved["sec"], 1)
}

func TestStartStop(t *testing.T) {
	svc := NewService(provider(), registry.NewToolRegistry(nil), Options{})
	require.False(t, svc.Running())
	require.NoError(t, svc.Start())
	require.True(t, svc.Running())
	require.NoError(t, svc.Start())
	svc.Stop()
	require.False(t, svc.Running())
	svc.Stop()
}
