package domain

import (
	"context"
	"time"
)

// ConnectorState tracks one connector's lifecycle.
//
//	UNINITIALIZED -> INITIALIZING -> READY
//	READY <-> DEGRADED on repeated health-check failure
//	any -> CLOSED on explicit close
type ConnectorState string

const (
	ConnectorUninitialized ConnectorState = "uninitialized"
	ConnectorInitializing  ConnectorState = "initializing"
	ConnectorReady         ConnectorState = "ready"
	ConnectorDegraded      ConnectorState = "degraded"
	ConnectorClosed        ConnectorState = "closed"
)

// Accepting reports whether the state accepts calls and discovery.
func (s ConnectorState) Accepting() bool {
	return s == ConnectorReady || s == ConnectorDegraded
}

// Connector encapsulates one remote tool server's connection lifecycle
// and low-level call semantics. Implementations must be safe for
// concurrent use.
type Connector interface {
	// Name returns the server id this connector serves.
	Name() string

	// State returns the current lifecycle state.
	State() ConnectorState

	// Initialize establishes the session. On failure the connector
	// stays non-ready; the error is a signal to the caller, never a
	// reason to abort other connectors.
	Initialize(ctx context.Context) error

	// HealthCheck returns last-known readiness, recomputing only when
	// the cached result is older than the configured interval.
	HealthCheck(ctx context.Context) bool

	// DiscoverTools queries the remote tool catalog. Returns an empty
	// list without touching the network when the connector is not
	// accepting.
	DiscoverTools(ctx context.Context) ([]ToolMetadata, error)

	// CallTool performs one invocation. Transport and timeout failures
	// are wrapped into a failed ToolResult rather than propagated.
	CallTool(ctx context.Context, name string, args map[string]any) ToolResult

	// Close releases resources and transitions to CLOSED.
	Close() error
}

// ConnectionType selects the connector variant.
type ConnectionType string

const (
	// ConnectionStdio launches a local server process and speaks over
	// its stdio streams.
	ConnectionStdio ConnectionType = "stdio"
	// ConnectionHTTP reaches an authenticated remote server over
	// streamable HTTP.
	ConnectionHTTP ConnectionType = "http"
	// ConnectionPublic reaches a public server over streamable HTTP
	// without credentials.
	ConnectionPublic ConnectionType = "public"
)

// ConnectorConfig is supplied by the credential/config provider. Auth
// material is treated opaquely and never parsed by this layer.
type ConnectorConfig struct {
	Name                string
	ConnectionType      ConnectionType
	Endpoint            string
	Command             string
	Args                []string
	Env                 []string
	AuthToken           string
	AuthTokenEnv        string
	Timeout             time.Duration
	RetryAttempts       int
	HealthCheckInterval time.Duration
}

// Normalize fills zero fields with defaults.
func (c ConnectorConfig) Normalize() ConnectorConfig {
	out := c
	if out.ConnectionType == "" {
		out.ConnectionType = ConnectionStdio
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultCallTimeoutSeconds * time.Second
	}
	if out.RetryAttempts <= 0 {
		out.RetryAttempts = DefaultRetryMaxAttempts
	}
	if out.HealthCheckInterval <= 0 {
		out.HealthCheckInterval = DefaultHealthCheckIntervalSeconds * time.Second
	}
	return out
}
