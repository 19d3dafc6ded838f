package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tools := []domain.ToolMetadata{
		{
			Name:                   "scan_vulnerabilities",
			Description:            "Scan for vulnerabilities",
			ServerID:               "sec",
			Category:               domain.CategorySecurity,
			Capabilities:           []domain.Capability{domain.CapabilityVulnerabilityScanning},
			RiskLevel:              domain.RiskLow,
			EstimatedExecutionTime: 2 * time.Minute,
			UsageCount:             7,
			SuccessRate:            0.85,
		},
	}
	require.NoError(t, s.SaveServerTools("sec", tools))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded["sec"], 1)

	got := loaded["sec"][0]
	require.Equal(t, "scan_vulnerabilities", got.Name)
	require.Equal(t, domain.CategorySecurity, got.Category)
	require.Equal(t, uint64(7), got.UsageCount)
	require.InDelta(t, 0.85, got.SuccessRate, 1e-9)
	require.Equal(t, 2*time.Minute, got.EstimatedExecutionTime)
}

func TestSaveEmptyCatalogDeletesEntry(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveServerTools("sec", []domain.ToolMetadata{{Name: "scan", ServerID: "sec"}}))
	require.NoError(t, s.SaveServerTools("sec", nil))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.NotContains(t, loaded, "sec")
}

func TestDeleteServer(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveServerTools("sec", []domain.ToolMetadata{{Name: "scan", ServerID: "sec"}}))
	require.NoError(t, s.SaveServerTools("docs", []domain.ToolMetadata{{Name: "search", ServerID: "docs"}}))
	require.NoError(t, s.DeleteServer("sec"))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.NotContains(t, loaded, "sec")
	require.Contains(t, loaded, "docs")
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.SaveServerTools("sec", nil), ErrStoreClosed)
	_, err := s.LoadAll()
	require.ErrorIs(t, err, ErrStoreClosed)
	// Double close is a no-op.
	require.NoError(t, s.Close())
}
