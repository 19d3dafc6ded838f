// Package connector manages one remote tool server's connection
// lifecycle and low-level call semantics. Variants share the same state
// machine and differ only in how the MCP session is dialed.
package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// session is the slice of *mcp.ClientSession the connector needs. Tests
// substitute fakes.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Ping(ctx context.Context, params *mcp.PingParams) error
	Close() error
}

// DialFunc establishes a fresh MCP session. Called on Initialize and on
// reconnect; each call must build a new transport.
type DialFunc func(ctx context.Context) (session, error)

// Options configures an MCPConnector.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

// MCPConnector implements domain.Connector over an MCP client session.
type MCPConnector struct {
	cfg     domain.ConnectorConfig
	dial    DialFunc
	logger  *zap.Logger
	metrics domain.Metrics

	mu           sync.Mutex
	state        domain.ConnectorState
	sess         session
	lastHealthy  bool
	lastHealthAt time.Time
	healthFails  int
}

func newMCPConnector(cfg domain.ConnectorConfig, dial DialFunc, opts Options) *MCPConnector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &MCPConnector{
		cfg:     cfg.Normalize(),
		dial:    dial,
		logger:  logger.Named("connector").With(zap.String("server", cfg.Name)),
		metrics: metrics,
		state:   domain.ConnectorUninitialized,
	}
}

// Name returns the server id this connector serves.
func (c *MCPConnector) Name() string {
	return c.cfg.Name
}

// State returns the current lifecycle state.
func (c *MCPConnector) State() domain.ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize dials the server. On failure the connector stays
// non-ready; the caller decides whether to retry, and peers are never
// affected.
func (c *MCPConnector) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.ConnectorClosed:
		c.mu.Unlock()
		return domain.ErrConnectionClosed
	case domain.ConnectorReady, domain.ConnectorDegraded, domain.ConnectorInitializing:
		c.mu.Unlock()
		return nil
	case domain.ConnectorUninitialized:
	}
	c.state = domain.ConnectorInitializing
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	sess, err := c.dial(dialCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.ConnectorClosed {
		if sess != nil {
			_ = sess.Close()
		}
		return domain.ErrConnectionClosed
	}
	if err != nil {
		c.state = domain.ConnectorUninitialized
		c.lastHealthy = false
		c.metrics.SetConnectorHealth(c.cfg.Name, false)
		c.logger.Warn("initialize failed", zap.Error(err))
		return domain.Transient(domain.CodeUnavailable, "connector.initialize", err)
	}
	c.sess = sess
	c.state = domain.ConnectorReady
	c.lastHealthy = true
	c.lastHealthAt = time.Now()
	c.healthFails = 0
	c.metrics.SetConnectorHealth(c.cfg.Name, true)
	c.logger.Info("connector ready",
		zap.String("type", string(c.cfg.ConnectionType)),
	)
	return nil
}

// HealthCheck returns last-known readiness, pinging the server only when
// the cached result is older than the configured interval.
func (c *MCPConnector) HealthCheck(ctx context.Context) bool {
	c.mu.Lock()
	if !c.state.Accepting() || c.sess == nil {
		c.mu.Unlock()
		return false
	}
	if time.Since(c.lastHealthAt) < c.cfg.HealthCheckInterval {
		healthy := c.lastHealthy
		c.mu.Unlock()
		return healthy
	}
	sess := c.sess
	c.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	err := sess.Ping(pingCtx, nil)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Accepting() {
		return false
	}
	c.lastHealthAt = time.Now()
	if err != nil {
		c.lastHealthy = false
		c.healthFails++
		if c.healthFails >= domain.DefaultHealthDegradedThreshold && c.state == domain.ConnectorReady {
			c.state = domain.ConnectorDegraded
			c.logger.Warn("connector degraded",
				zap.Int("consecutiveFailures", c.healthFails),
				zap.Error(err),
			)
		}
	} else {
		c.lastHealthy = true
		c.healthFails = 0
		if c.state == domain.ConnectorDegraded {
			c.state = domain.ConnectorReady
			c.logger.Info("connector recovered")
		}
	}
	c.metrics.SetConnectorHealth(c.cfg.Name, c.lastHealthy)
	return c.lastHealthy
}

// DiscoverTools queries the remote tool catalog. Outside READY/DEGRADED
// it returns an empty list without touching the network.
func (c *MCPConnector) DiscoverTools(ctx context.Context) ([]domain.ToolMetadata, error) {
	c.mu.Lock()
	sess := c.sess
	accepting := c.state.Accepting()
	c.mu.Unlock()
	if !accepting || sess == nil {
		return nil, nil
	}

	listCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := sess.ListTools(listCtx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, domain.Transient(domain.CodeUnavailable, "connector.discover_tools", err)
	}

	tools := make([]domain.ToolMetadata, 0, len(res.Tools))
	for _, tool := range res.Tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		tools = append(tools, domain.ToolMetadata{
			Name:        tool.Name,
			Description: tool.Description,
			ServerID:    c.cfg.Name,
			Parameters:  tool.InputSchema,
		})
	}
	return tools, nil
}

// CallTool performs one invocation, wrapping transport and timeout
// failures into a failed ToolResult.
func (c *MCPConnector) CallTool(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	start := time.Now()

	c.mu.Lock()
	sess := c.sess
	accepting := c.state.Accepting()
	c.mu.Unlock()
	if !accepting || sess == nil {
		return domain.FailedResult(c.cfg.Name, name, time.Since(start), domain.ErrConnectorNotReady)
	}

	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	res, err := sess.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	elapsed := time.Since(start)
	if err != nil {
		wrapped := domain.Transient(domain.CodeUnavailable, "connector.call_tool", err)
		return domain.FailedResult(c.cfg.Name, name, elapsed, wrapped)
	}

	result := toToolResult(c.cfg.Name, name, res, elapsed)
	result.Metadata = map[string]any{
		"call_id": uuid.NewString(),
		"server":  c.cfg.Name,
	}
	return result
}

// Close releases the session and transitions to CLOSED.
func (c *MCPConnector) Close() error {
	c.mu.Lock()
	if c.state == domain.ConnectorClosed {
		c.mu.Unlock()
		return nil
	}
	sess := c.sess
	c.sess = nil
	c.state = domain.ConnectorClosed
	c.lastHealthy = false
	c.mu.Unlock()

	c.metrics.SetConnectorHealth(c.cfg.Name, false)
	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

var _ domain.Connector = (*MCPConnector)(nil)
