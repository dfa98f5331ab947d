package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/core/metrics"
	"github.com/kilianp07/vehicle-broker/infra/mqtt"
	"github.com/kilianp07/vehicle-broker/infra/redis"
)

type Config struct {
	Broker    broker.Config   `json:"broker"`
	Store     StoreConfig     `json:"store"`
	Transport TransportConfig `json:"transport"`
	Redis     redis.Config    `json:"redis"`
	MQTT      mqtt.Config     `json:"mqtt"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   metrics.Config  `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
	Sentry    SentryConfig    `json:"sentry"`
	Uplink    UplinkConfig    `json:"uplink"`
	Simulator SimulatorConfig `json:"simulator"`
}

// Load reads a YAML or JSON file, applies K_ prefixed environment overrides
// (K_BROKER__HISTORY_CAPACITY=50 sets broker.history_capacity) and returns
// the defaulted, validated configuration. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.Broker.SetDefaults()
	c.Store.SetDefaults()
	c.Transport.SetDefaults()
	c.Redis.SetDefaults()
	c.MQTT.SetDefaults()
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
	c.Uplink.SetDefaults()
	c.Simulator.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("broker", c.Broker.Validate())
	add("store", c.Store.Validate())
	add("transport", c.Transport.Validate())
	if c.Store.Type == StoreRedis || c.Transport.Type == TransportRedis {
		add("redis", c.Redis.Validate())
	}
	if c.Transport.Type == TransportMQTT {
		add("mqtt", c.MQTT.Validate())
	}
	add("http", c.HTTP.Validate())
	add("logging", c.Logging.Validate())
	if c.Uplink.Enabled {
		add("uplink", c.Uplink.Validate())
	}
	add("simulator", c.Simulator.Validate())
	return errors.Join(errs...)
}
