// Package store persists per-server tool catalogs so the registry can
// serve lookups before the first live discovery completes. This is a
// warm-start convenience, not a durability guarantee.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"toolmesh/internal/domain"
)

var bucketTools = []byte("server_tools")

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("snapshot store is closed")

// SnapshotStore keeps one JSON-encoded catalog per server id.
type SnapshotStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
}

// serializedTool is the on-disk shape. Runtime statistics travel with the
// snapshot so warm starts keep historical success rates.
type serializedTool struct {
	Name                   string              `json:"name"`
	Description            string              `json:"description"`
	ServerID               string              `json:"serverId"`
	Category               domain.Category     `json:"category"`
	Capabilities           []domain.Capability `json:"capabilities"`
	Parameters             any                 `json:"parameters,omitempty"`
	RequiredPermissions    []string            `json:"requiredPermissions,omitempty"`
	RiskLevel              domain.RiskLevel    `json:"riskLevel"`
	EstimatedExecutionTime time.Duration       `json:"estimatedExecutionTime"`
	UsageCount             uint64              `json:"usageCount"`
	SuccessRate            float64             `json:"successRate"`
	AverageExecutionTime   time.Duration       `json:"averageExecutionTime"`
	LastUpdated            time.Time           `json:"lastUpdated"`
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*SnapshotStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure snapshot dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTools)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// SaveServerTools replaces the stored catalog for one server.
func (s *SnapshotStore) SaveServerTools(serverID string, tools []domain.ToolMetadata) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	serialized := make([]serializedTool, 0, len(tools))
	for _, tool := range tools {
		serialized = append(serialized, toSerialized(tool))
	}
	raw, err := json.Marshal(serialized)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTools)
		if bucket == nil {
			return errors.New("schema missing")
		}
		if len(serialized) == 0 {
			return bucket.Delete([]byte(serverID))
		}
		return bucket.Put([]byte(serverID), raw)
	})
}

// LoadAll returns every stored catalog keyed by server id.
func (s *SnapshotStore) LoadAll() (map[string][]domain.ToolMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make(map[string][]domain.ToolMetadata)
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTools)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			var serialized []serializedTool
			if err := json.Unmarshal(value, &serialized); err != nil {
				return fmt.Errorf("decode snapshot %s: %w", key, err)
			}
			tools := make([]domain.ToolMetadata, 0, len(serialized))
			for _, tool := range serialized {
				tools = append(tools, fromSerialized(tool))
			}
			out[string(key)] = tools
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteServer removes one server's stored catalog.
func (s *SnapshotStore) DeleteServer(serverID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTools)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(serverID))
	})
}

// Close releases the database file.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func toSerialized(tool domain.ToolMetadata) serializedTool {
	return serializedTool{
		Name:                   tool.Name,
		Description:            tool.Description,
		ServerID:               tool.ServerID,
		Category:               tool.Category,
		Capabilities:           tool.Capabilities,
		Parameters:             tool.Parameters,
		RequiredPermissions:    tool.RequiredPermissions,
		RiskLevel:              tool.RiskLevel,
		EstimatedExecutionTime: tool.EstimatedExecutionTime,
		UsageCount:             tool.UsageCount,
		SuccessRate:            tool.SuccessRate,
		AverageExecutionTime:   tool.AverageExecutionTime,
		LastUpdated:            tool.LastUpdated,
	}
}

func fromSerialized(tool serializedTool) domain.ToolMetadata {
	return domain.ToolMetadata{
		Name:                   tool.Name,
		Description:            tool.Description,
		ServerID:               tool.ServerID,
		Category:               tool.Category,
		Capabilities:           tool.Capabilities,
		Parameters:             tool.Parameters,
		RequiredPermissions:    tool.RequiredPermissions,
		RiskLevel:              tool.RiskLevel,
		EstimatedExecutionTime: tool.EstimatedExecutionTime,
		UsageCount:             tool.UsageCount,
		SuccessRate:            tool.SuccessRate,
		AverageExecutionTime:   tool.AverageExecutionTime,
		LastUpdated:            tool.LastUpdated,
	}
}
