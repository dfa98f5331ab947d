package config

import "fmt"

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Transport backends.
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportMQTT   = "mqtt"
)

// StoreConfig selects the key/value backend. Redis connection settings live
// in the top level redis section.
type StoreConfig struct {
	Type string `json:"type"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = StoreRedis
	}
}

func (c StoreConfig) Validate() error {
	switch c.Type {
	case StoreMemory, StoreRedis:
		return nil
	}
	return fmt.Errorf("unknown store type %q", c.Type)
}

// TransportConfig selects the pub/sub backend.
type TransportConfig struct {
	Type string `json:"type"`
}

func (c *TransportConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = TransportRedis
	}
}

func (c TransportConfig) Validate() error {
	switch c.Type {
	case TransportMemory, TransportRedis, TransportMQTT:
		return nil
	}
	return fmt.Errorf("unknown transport type %q", c.Type)
}
