// Package catalog loads and watches the YAML configuration describing
// runtime tunables and the fleet of remote tool servers.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

func newRuntimeViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setRuntimeDefaults(v)
	return v
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("discoveryIntervalSeconds", domain.DefaultDiscoveryIntervalSeconds)
	v.SetDefault("callTimeoutSeconds", domain.DefaultCallTimeoutSeconds)
	v.SetDefault("retry.maxAttempts", domain.DefaultRetryMaxAttempts)
	v.SetDefault("retry.baseSeconds", domain.DefaultRetryBaseSeconds)
	v.SetDefault("retry.maxSeconds", domain.DefaultRetryMaxSeconds)
	v.SetDefault("retry.backoffFactor", domain.DefaultRetryBackoffFactor)
	v.SetDefault("cache.resourceTTLSeconds", domain.DefaultResourceCacheTTLSeconds)
	v.SetDefault("cache.documentationTTLSeconds", domain.DefaultDocumentationCacheTTLSeconds)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("snapshotPath", domain.DefaultSnapshotPath)
}

type rawCatalog struct {
	Servers          []rawServerConfig `mapstructure:"servers"`
	rawRuntimeConfig `mapstructure:",squash"`
}

type rawRuntimeConfig struct {
	DiscoveryIntervalSeconds int                    `mapstructure:"discoveryIntervalSeconds"`
	CallTimeoutSeconds       int                    `mapstructure:"callTimeoutSeconds"`
	Retry                    rawRetryConfig         `mapstructure:"retry"`
	Cache                    rawCacheConfig         `mapstructure:"cache"`
	Observability            rawObservabilityConfig `mapstructure:"observability"`
	SnapshotPath             string                 `mapstructure:"snapshotPath"`
}

type rawRetryConfig struct {
	MaxAttempts   int     `mapstructure:"maxAttempts"`
	BaseSeconds   int     `mapstructure:"baseSeconds"`
	MaxSeconds    int     `mapstructure:"maxSeconds"`
	BackoffFactor float64 `mapstructure:"backoffFactor"`
}

type rawCacheConfig struct {
	ResourceTTLSeconds      int `mapstructure:"resourceTTLSeconds"`
	DocumentationTTLSeconds int `mapstructure:"documentationTTLSeconds"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawServerConfig struct {
	Name                       string   `mapstructure:"name"`
	Connection                 string   `mapstructure:"connection"`
	Endpoint                   string   `mapstructure:"endpoint"`
	Command                    string   `mapstructure:"command"`
	Args                       []string `mapstructure:"args"`
	Env                        []string `mapstructure:"env"`
	AuthToken                  string   `mapstructure:"authToken"`
	AuthTokenEnv               string   `mapstructure:"authTokenEnv"`
	TimeoutSeconds             int      `mapstructure:"timeoutSeconds"`
	RetryAttempts              int      `mapstructure:"retryAttempts"`
	HealthCheckIntervalSeconds int      `mapstructure:"healthCheckIntervalSeconds"`
}

// Load reads, expands and validates the config file at path.
func (l *Loader) Load(ctx context.Context, path string) (domain.Catalog, error) {
	if path == "" {
		return domain.Catalog{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandConfigEnv(data)
	if err != nil {
		return domain.Catalog{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path), zap.Strings("missing", missing))
	}

	v := newRuntimeViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Catalog{}, fmt.Errorf("parse config: %w", err)
	}

	var cfg rawCatalog
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Catalog{}, err
	}

	runtime, validationErrors := normalizeRuntimeConfig(cfg.rawRuntimeConfig)

	servers := make([]domain.ConnectorConfig, 0, len(cfg.Servers))
	nameSeen := make(map[string]struct{})
	for i, raw := range cfg.Servers {
		normalized := normalizeServerConfig(raw)
		if _, exists := nameSeen[normalized.Name]; exists {
			validationErrors = append(validationErrors, fmt.Sprintf("servers[%d]: duplicate name %q", i, normalized.Name))
		} else if normalized.Name != "" {
			nameSeen[normalized.Name] = struct{}{}
		}

		if errs := validateServerConfig(normalized, i); len(errs) > 0 {
			validationErrors = append(validationErrors, errs...)
			continue
		}
		servers = append(servers, normalized)
	}

	if len(validationErrors) > 0 {
		return domain.Catalog{}, errors.New(strings.Join(validationErrors, "; "))
	}

	return domain.Catalog{Runtime: runtime, Servers: servers}, nil
}

func normalizeRuntimeConfig(cfg rawRuntimeConfig) (domain.RuntimeConfig, []string) {
	var errs []string

	if cfg.DiscoveryIntervalSeconds <= 0 {
		errs = append(errs, "discoveryIntervalSeconds must be > 0")
	}
	if cfg.CallTimeoutSeconds <= 0 {
		errs = append(errs, "callTimeoutSeconds must be > 0")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.maxAttempts must be > 0")
	}
	if cfg.Retry.BaseSeconds <= 0 {
		errs = append(errs, "retry.baseSeconds must be > 0")
	}
	if cfg.Retry.MaxSeconds <= 0 {
		errs = append(errs, "retry.maxSeconds must be > 0")
	}
	if cfg.Retry.BaseSeconds > 0 && cfg.Retry.MaxSeconds > 0 && cfg.Retry.MaxSeconds < cfg.Retry.BaseSeconds {
		errs = append(errs, "retry.maxSeconds must be >= retry.baseSeconds")
	}
	if cfg.Retry.BackoffFactor < 1 {
		errs = append(errs, "retry.backoffFactor must be >= 1")
	}
	if cfg.Cache.ResourceTTLSeconds <= 0 {
		errs = append(errs, "cache.resourceTTLSeconds must be > 0")
	}
	if cfg.Cache.DocumentationTTLSeconds <= 0 {
		errs = append(errs, "cache.documentationTTLSeconds must be > 0")
	}

	addr := strings.TrimSpace(cfg.Observability.ListenAddress)
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}
	snapshotPath := strings.TrimSpace(cfg.SnapshotPath)
	if snapshotPath == "" {
		snapshotPath = domain.DefaultSnapshotPath
	}

	return domain.RuntimeConfig{
		DiscoveryIntervalSeconds:     cfg.DiscoveryIntervalSeconds,
		CallTimeoutSeconds:           cfg.CallTimeoutSeconds,
		RetryMaxAttempts:             cfg.Retry.MaxAttempts,
		RetryBaseSeconds:             cfg.Retry.BaseSeconds,
		RetryMaxSeconds:              cfg.Retry.MaxSeconds,
		RetryBackoffFactor:           cfg.Retry.BackoffFactor,
		ResourceCacheTTLSeconds:      cfg.Cache.ResourceTTLSeconds,
		DocumentationCacheTTLSeconds: cfg.Cache.DocumentationTTLSeconds,
		ObservabilityListenAddress:   addr,
		SnapshotPath:                 snapshotPath,
	}, errs
}

func normalizeServerConfig(raw rawServerConfig) domain.ConnectorConfig {
	connection := domain.ConnectionType(strings.ToLower(strings.TrimSpace(raw.Connection)))
	if connection == "" {
		if strings.TrimSpace(raw.Endpoint) != "" {
			connection = domain.ConnectionHTTP
		} else {
			connection = domain.ConnectionStdio
		}
	}

	cfg := domain.ConnectorConfig{
		Name:                strings.TrimSpace(raw.Name),
		ConnectionType:      connection,
		Endpoint:            strings.TrimSpace(raw.Endpoint),
		Command:             strings.TrimSpace(raw.Command),
		Args:                raw.Args,
		Env:                 raw.Env,
		AuthToken:           raw.AuthToken,
		AuthTokenEnv:        strings.TrimSpace(raw.AuthTokenEnv),
		Timeout:             time.Duration(raw.TimeoutSeconds) * time.Second,
		RetryAttempts:       raw.RetryAttempts,
		HealthCheckInterval: time.Duration(raw.HealthCheckIntervalSeconds) * time.Second,
	}
	return cfg.Normalize()
}

func validateServerConfig(cfg domain.ConnectorConfig, index int) []string {
	var errs []string

	if cfg.Name == "" {
		errs = append(errs, fmt.Sprintf("servers[%d]: name is required", index))
	}

	switch cfg.ConnectionType {
	case domain.ConnectionStdio:
		if cfg.Command == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: command is required for stdio connection", index))
		}
		if cfg.Endpoint != "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: endpoint must be empty for stdio connection", index))
		}
	case domain.ConnectionHTTP:
		errs = append(errs, validateEndpoint(cfg, index)...)
		if cfg.AuthToken == "" && cfg.AuthTokenEnv == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: authToken or authTokenEnv is required for http connection", index))
		}
	case domain.ConnectionPublic:
		errs = append(errs, validateEndpoint(cfg, index)...)
		if cfg.AuthToken != "" || cfg.AuthTokenEnv != "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: auth settings must be empty for public connection", index))
		}
	default:
		errs = append(errs, fmt.Sprintf("servers[%d]: connection must be stdio, http or public", index))
	}

	if cfg.ConnectionType != domain.ConnectionStdio {
		if cfg.Command != "" || len(cfg.Args) > 0 || len(cfg.Env) > 0 {
			errs = append(errs, fmt.Sprintf("servers[%d]: command, args and env must be empty for remote connections", index))
		}
	}

	return errs
}

func validateEndpoint(cfg domain.ConnectorConfig, index int) []string {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		return []string{fmt.Sprintf("servers[%d]: endpoint is required", index)}
	}
	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return []string{fmt.Sprintf("servers[%d]: endpoint must be a valid http(s) URL", index)}
	}
	return nil
}
