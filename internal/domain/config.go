package domain

import "time"

// RuntimeConfig carries layer-wide tunables. It is constructed once by
// the catalog loader and passed by injection; there is no global
// configuration singleton.
type RuntimeConfig struct {
	DiscoveryIntervalSeconds int
	CallTimeoutSeconds       int
	RetryMaxAttempts         int
	RetryBaseSeconds         int
	RetryMaxSeconds          int
	RetryBackoffFactor       float64

	ResourceCacheTTLSeconds      int
	DocumentationCacheTTLSeconds int

	ObservabilityListenAddress string
	SnapshotPath               string
}

// DefaultRuntimeConfig returns the built-in defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DiscoveryIntervalSeconds:     DefaultDiscoveryIntervalSeconds,
		CallTimeoutSeconds:           DefaultCallTimeoutSeconds,
		RetryMaxAttempts:             DefaultRetryMaxAttempts,
		RetryBaseSeconds:             DefaultRetryBaseSeconds,
		RetryMaxSeconds:              DefaultRetryMaxSeconds,
		RetryBackoffFactor:           DefaultRetryBackoffFactor,
		ResourceCacheTTLSeconds:      DefaultResourceCacheTTLSeconds,
		DocumentationCacheTTLSeconds: DefaultDocumentationCacheTTLSeconds,
		ObservabilityListenAddress:   DefaultObservabilityListenAddress,
		SnapshotPath:                 DefaultSnapshotPath,
	}
}

func (c RuntimeConfig) DiscoveryInterval() time.Duration {
	return secondsOrDefault(c.DiscoveryIntervalSeconds, DefaultDiscoveryIntervalSeconds)
}

func (c RuntimeConfig) CallTimeout() time.Duration {
	return secondsOrDefault(c.CallTimeoutSeconds, DefaultCallTimeoutSeconds)
}

func (c RuntimeConfig) RetryBase() time.Duration {
	return secondsOrDefault(c.RetryBaseSeconds, DefaultRetryBaseSeconds)
}

func (c RuntimeConfig) RetryMax() time.Duration {
	return secondsOrDefault(c.RetryMaxSeconds, DefaultRetryMaxSeconds)
}

func (c RuntimeConfig) ResourceCacheTTL() time.Duration {
	return secondsOrDefault(c.ResourceCacheTTLSeconds, DefaultResourceCacheTTLSeconds)
}

func (c RuntimeConfig) DocumentationCacheTTL() time.Duration {
	return secondsOrDefault(c.DocumentationCacheTTLSeconds, DefaultDocumentationCacheTTLSeconds)
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Catalog is the full loaded configuration: runtime tunables plus one
// ConnectorConfig per remote server.
type Catalog struct {
	Runtime RuntimeConfig
	Servers []ConnectorConfig
}
