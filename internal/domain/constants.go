package domain

const (
	DefaultRetryMaxAttempts   = 3
	DefaultRetryBaseSeconds   = 1
	DefaultRetryMaxSeconds    = 60
	DefaultRetryBackoffFactor = 2.0

	DefaultCallTimeoutSeconds         = 30
	DefaultHealthCheckIntervalSeconds = 30
	DefaultHealthDegradedThreshold    = 3
	DefaultDiscoveryIntervalSeconds   = 300

	DefaultResourceCacheTTLSeconds      = 1800
	DefaultDocumentationCacheTTLSeconds = 3600

	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultSnapshotPath               = "toolmesh.db"
)
