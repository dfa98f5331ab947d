package config

import (
	"fmt"
	"time"
)

// UplinkConfig configures the cloud uplink that forwards one vehicle's
// snapshot to a remote API and injects the commands it returns.
type UplinkConfig struct {
	Enabled         bool   `json:"enabled"`
	Endpoint        string `json:"endpoint"`
	APIKey          string `json:"api_key"`
	VehicleID       string `json:"vehicle_id"`
	IntervalSeconds int    `json:"interval_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	RetryCount      int    `json:"retry_count"`
	RetryBackoffMS  int    `json:"retry_backoff_ms"`
	MaxFailures     int    `json:"max_failures"`
	Source          string `json:"source"`
}

func (c *UplinkConfig) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 5
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.RetryCount == 0 {
		c.RetryCount = 2
	}
	if c.RetryBackoffMS <= 0 {
		c.RetryBackoffMS = 500
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Source == "" {
		c.Source = "cloud"
	}
}

func (c UplinkConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.VehicleID == "" {
		return fmt.Errorf("vehicle_id is required")
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0")
	}
	return nil
}

func (c UplinkConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c UplinkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c UplinkConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}
