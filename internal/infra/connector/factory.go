package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"toolmesh/internal/domain"
)

const (
	clientName    = "toolmesh"
	clientVersion = "0.1.0"
)

// New builds the connector variant selected by the config: stdio for
// direct-local servers, http for authenticated remotes, public for
// unauthenticated remotes.
func New(cfg domain.ConnectorConfig, opts Options) (*MCPConnector, error) {
	cfg = cfg.Normalize()
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("connector name is required")
	}

	var dial DialFunc
	switch cfg.ConnectionType {
	case domain.ConnectionStdio:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, fmt.Errorf("connector %s: command is required for stdio", cfg.Name)
		}
		dial = stdioDialer(cfg)
	case domain.ConnectionHTTP:
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, fmt.Errorf("connector %s: endpoint is required for http", cfg.Name)
		}
		token := resolveAuthToken(cfg)
		if token == "" {
			return nil, fmt.Errorf("connector %s: auth token is required for http", cfg.Name)
		}
		dial = httpDialer(cfg, token)
	case domain.ConnectionPublic:
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, fmt.Errorf("connector %s: endpoint is required for public", cfg.Name)
		}
		dial = httpDialer(cfg, "")
	default:
		return nil, fmt.Errorf("connector %s: unsupported connection type %q", cfg.Name, cfg.ConnectionType)
	}

	return newMCPConnector(cfg, dial, opts), nil
}

// NewWithDialer builds a connector around a custom dialer. Used by tests
// and in-process servers.
func NewWithDialer(cfg domain.ConnectorConfig, dial DialFunc, opts Options) *MCPConnector {
	return newMCPConnector(cfg, dial, opts)
}

// InMemoryDialer connects to an in-process mcp.Server. Exercised by
// tests and local tool hosting.
func InMemoryDialer(server *mcp.Server) DialFunc {
	return func(ctx context.Context) (session, error) {
		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, fmt.Errorf("connect server side: %w", err)
		}
		client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
		sess, err := client.Connect(ctx, clientTransport, nil)
		if err != nil {
			return nil, fmt.Errorf("connect client side: %w", err)
		}
		return sess, nil
	}
}

func stdioDialer(cfg domain.ConnectorConfig) DialFunc {
	return func(ctx context.Context) (session, error) {
		// A fresh command per dial: CommandTransport owns the process.
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = append(os.Environ(), cfg.Env...)
		transport := &mcp.CommandTransport{Command: cmd}

		client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
		sess, err := client.Connect(ctx, transport, nil)
		if err != nil {
			return nil, fmt.Errorf("connect stdio %s: %w", cfg.Command, err)
		}
		return sess, nil
	}
}

func httpDialer(cfg domain.ConnectorConfig, token string) DialFunc {
	return func(ctx context.Context) (session, error) {
		httpClient := &http.Client{
			Timeout: cfg.Timeout,
		}
		if token != "" {
			httpClient.Transport = &bearerRoundTripper{
				token: token,
				base:  http.DefaultTransport,
			}
		}
		transport := &mcp.StreamableClientTransport{
			Endpoint:   cfg.Endpoint,
			HTTPClient: httpClient,
		}
		client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
		sess, err := client.Connect(ctx, transport, nil)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Endpoint, err)
		}
		return sess, nil
	}
}

// resolveAuthToken returns the opaque auth material: inline token first,
// then the named environment variable. Never parsed, only forwarded.
func resolveAuthToken(cfg domain.ConnectorConfig) string {
	if cfg.AuthToken != "" {
		return cfg.AuthToken
	}
	if cfg.AuthTokenEnv != "" {
		return os.Getenv(cfg.AuthTokenEnv)
	}
	return ""
}

type bearerRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+rt.token)
	return rt.base.RoundTrip(cloned)
}
