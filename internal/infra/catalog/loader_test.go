package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesRuntimeDefaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: docs
    connection: public
    endpoint: https://docs.example.com/mcp
`)

	loaded, err := NewLoader(nil).Load(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, domain.DefaultDiscoveryIntervalSeconds, loaded.Runtime.DiscoveryIntervalSeconds)
	require.Equal(t, domain.DefaultRetryMaxAttempts, loaded.Runtime.RetryMaxAttempts)
	require.Equal(t, domain.DefaultObservabilityListenAddress, loaded.Runtime.ObservabilityListenAddress)
	require.Equal(t, domain.DefaultSnapshotPath, loaded.Runtime.SnapshotPath)
	require.Len(t, loaded.Servers, 1)
	require.Equal(t, domain.ConnectionPublic, loaded.Servers[0].ConnectionType)
}

func TestLoadOverridesRuntime(t *testing.T) {
	path := writeConfig(t, `
discoveryIntervalSeconds: 60
callTimeoutSeconds: 10
retry:
  maxAttempts: 5
  baseSeconds: 2
  maxSeconds: 30
cache:
  resourceTTLSeconds: 600
servers:
  - name: local
    connection: stdio
    command: tool-server
    args: ["--verbose"]
`)

	loaded, err := NewLoader(nil).Load(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, 60, loaded.Runtime.DiscoveryIntervalSeconds)
	require.Equal(t, 10, loaded.Runtime.CallTimeoutSeconds)
	require.Equal(t, 5, loaded.Runtime.RetryMaxAttempts)
	require.Equal(t, 2, loaded.Runtime.RetryBaseSeconds)
	require.Equal(t, 30, loaded.Runtime.RetryMaxSeconds)
	require.Equal(t, 600, loaded.Runtime.ResourceCacheTTLSeconds)
	// Untouched sections keep defaults.
	require.Equal(t, domain.DefaultDocumentationCacheTTLSeconds, loaded.Runtime.DocumentationCacheTTLSeconds)

	require.Len(t, loaded.Servers, 1)
	server := loaded.Servers[0]
	require.Equal(t, domain.ConnectionStdio, server.ConnectionType)
	require.Equal(t, "tool-server", server.Command)
	require.Equal(t, []string{"--verbose"}, server.Args)
	require.Equal(t, domain.DefaultCallTimeoutSeconds*time.Second, server.Timeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TOOLMESH_TEST_ENDPOINT", "https://sec.example.com/mcp")
	t.Setenv("TOOLMESH_TEST_TOKEN", "secret-token")

	path := writeConfig(t, `
servers:
  - name: sec
    connection: http
    endpoint: $TOOLMESH_TEST_ENDPOINT
    authToken: ${TOOLMESH_TEST_TOKEN}
`)

	loaded, err := NewLoader(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "https://sec.example.com/mcp", loaded.Servers[0].Endpoint)
	require.Equal(t, "secret-token", loaded.Servers[0].AuthToken)
}

func TestLoadInfersHTTPConnectionFromEndpoint(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: sec
    endpoint: https://sec.example.com/mcp
    authTokenEnv: SEC_TOKEN
`)

	loaded, err := NewLoader(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionHTTP, loaded.Servers[0].ConnectionType)
}

func TestLoadRejectsInvalidServers(t *testing.T) {
	cases := map[string]string{
		"missing name": `
servers:
  - connection: stdio
    command: tool-server
`,
		"stdio without command": `
servers:
  - name: local
    connection: stdio
`,
		"http without auth": `
servers:
  - name: sec
    connection: http
    endpoint: https://sec.example.com/mcp
`,
		"public with auth": `
servers:
  - name: docs
    connection: public
    endpoint: https://docs.example.com/mcp
    authToken: nope
`,
		"bad endpoint": `
servers:
  - name: sec
    connection: http
    endpoint: not-a-url
    authToken: tok
`,
		"duplicate names": `
servers:
  - name: sec
    connection: public
    endpoint: https://a.example.com/mcp
  - name: sec
    connection: public
    endpoint: https://b.example.com/mcp
`,
		"unknown connection": `
servers:
  - name: sec
    connection: carrier-pigeon
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLoader(nil).Load(context.Background(), writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvalidRuntime(t *testing.T) {
	path := writeConfig(t, `
retry:
  baseSeconds: 30
  maxSeconds: 5
servers: []
`)

	_, err := NewLoader(nil).Load(context.Background(), path)
	require.ErrorContains(t, err, "retry.maxSeconds")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolmesh.yaml")
	initial := `
servers:
  - name: docs
    connection: public
    endpoint: https://docs.example.com/mcp
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	loader := NewLoader(nil)
	updates := make(chan domain.Catalog, 1)
	watcher := NewWatcher(loader, path, func(c domain.Catalog) {
		select {
		case updates <- c:
		default:
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)

	updated := initial + `  - name: sec
    connection: public
    endpoint: https://sec.example.com/mcp
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case loaded := <-updates:
		require.Len(t, loaded.Servers, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not deliver reloaded catalog")
	}

	cancel()
	<-done
}
