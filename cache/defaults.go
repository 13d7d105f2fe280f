package cache

import "time"

// Defaults for the configuration surface. Each is overridable through an
// [Option] except deleteBatchSize and maxInvalidateKeys.
const (
	DefaultFreshTTL          = 24 * time.Hour
	DefaultStaleTTL          = time.Hour
	DefaultLockTTL           = 15 * time.Second
	DefaultWaitTimeout       = 1500 * time.Millisecond
	DefaultWaitInterval      = 100 * time.Millisecond
	DefaultScanBatch         = 200
	DefaultRevalidateTimeout = 30 * time.Second
	DefaultLabel             = "default"

	deleteBatchSize   = 500
	maxInvalidateKeys = 10_000
)
