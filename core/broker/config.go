package broker

import (
	"fmt"
	"time"
)

// Config holds the broker tuning parameters.
type Config struct {
	// SnapshotTTLSeconds is the lifetime of vehicle:<id>:latest_data after
	// the last reading.
	SnapshotTTLSeconds int `json:"snapshot_ttl_seconds"`
	// HistoryCapacity bounds each vehicle's command history.
	HistoryCapacity int `json:"history_capacity"`
	// StoreTimeoutSeconds bounds every individual store call.
	StoreTimeoutSeconds int `json:"store_timeout_seconds"`
	// Workers is the number of ingestion shards.
	Workers int `json:"workers"`
	// QueueSize is the buffered capacity of each shard.
	QueueSize int `json:"queue_size"`
	// RejectStaleReadings drops readings older than the stored value of the
	// same sensor instead of overwriting it.
	RejectStaleReadings bool `json:"reject_stale_readings"`
}

const (
	DefaultSnapshotTTL     = 300 * time.Second
	DefaultHistoryCapacity = 100
	DefaultStoreTimeout    = 30 * time.Second
	DefaultWorkers         = 8
	DefaultQueueSize       = 256
)

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SnapshotTTLSeconds == 0 {
		c.SnapshotTTLSeconds = int(DefaultSnapshotTTL / time.Second)
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.StoreTimeoutSeconds == 0 {
		c.StoreTimeoutSeconds = int(DefaultStoreTimeout / time.Second)
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.SnapshotTTLSeconds < 0 {
		return fmt.Errorf("snapshot_ttl_seconds must be >= 0")
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be > 0")
	}
	if c.StoreTimeoutSeconds <= 0 {
		return fmt.Errorf("store_timeout_seconds must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be > 0")
	}
	return nil
}

func (c Config) snapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c Config) storeTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}
