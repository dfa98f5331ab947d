package config

import (
	"fmt"
	"time"
)

// HTTPConfig configures the query API server.
type HTTPConfig struct {
	Addr                string   `json:"addr"`
	AllowedOrigins      []string `json:"allowed_origins"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds"`
	// Disabled turns the API off, for example on simulator-only nodes.
	Disabled bool `json:"disabled"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ReadTimeoutSeconds == 0 {
		c.ReadTimeoutSeconds = 10
	}
	if c.WriteTimeoutSeconds == 0 {
		c.WriteTimeoutSeconds = 35
	}
}

func (c HTTPConfig) Validate() error {
	if !c.Disabled && c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.ReadTimeoutSeconds < 0 || c.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}

func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}
