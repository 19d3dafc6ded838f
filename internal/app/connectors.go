package app

import (
	"sort"
	"sync"

	"toolmesh/internal/domain"
)

// ConnectorSet is the live set of connectors keyed by server id. Catalog
// reloads swap entries at runtime, so reads take a copy.
type ConnectorSet struct {
	mu    sync.RWMutex
	conns map[string]domain.Connector
}

func NewConnectorSet() *ConnectorSet {
	return &ConnectorSet{conns: make(map[string]domain.Connector)}
}

// Get returns the connector for a server id.
func (s *ConnectorSet) Get(serverID string) (domain.Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[serverID]
	return conn, ok
}

// All returns a snapshot of every connector in stable name order.
func (s *ConnectorSet) All() []domain.Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Connector, 0, len(s.conns))
	for _, conn := range s.conns {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Put installs a connector, returning the previous one for the same
// server id so the caller can close it.
func (s *ConnectorSet) Put(conn domain.Connector) (domain.Connector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.conns[conn.Name()]
	s.conns[conn.Name()] = conn
	return previous, existed
}

// Remove drops a connector from the set. The caller owns closing it.
func (s *ConnectorSet) Remove(serverID string) (domain.Connector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[serverID]
	if ok {
		delete(s.conns, serverID)
	}
	return conn, ok
}

// Names lists the server ids currently in the set.
func (s *ConnectorSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.conns))
	for name := range s.conns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
