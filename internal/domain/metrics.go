package domain

import "time"

// Metrics abstracts the telemetry sink so components never depend on a
// concrete backend.
type Metrics interface {
	ObserveToolCall(serverID, toolName string, duration time.Duration, err error)
	ObserveDiscovery(serverID string, added, updated, removed int, err error)
	ObserveRetry(op string)
	ObserveCache(namespace string, hit bool)
	SetConnectorHealth(serverID string, healthy bool)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveToolCall(string, string, time.Duration, error) {}
func (NopMetrics) ObserveDiscovery(string, int, int, int, error)        {}
func (NopMetrics) ObserveRetry(string)                                  {}
func (NopMetrics) ObserveCache(string, bool)                            {}
func (NopMetrics) SetConnectorHealth(string, bool)                      {}

var _ Metrics = NopMetrics{}
