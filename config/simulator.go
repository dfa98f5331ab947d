package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/vehicle-broker/core/model"
)

// SimulatorConfig configures the built-in sensor simulator.
type SimulatorConfig struct {
	Vehicles []string `json:"vehicles"`
	// SensorIntervalMS paces the temperature sensors.
	SensorIntervalMS int `json:"sensor_interval_ms"`
	// GPSIntervalMS paces the GPS sensor.
	GPSIntervalMS int     `json:"gps_interval_ms"`
	BaseIndoorC   float64 `json:"base_indoor_c"`
	BaseOutdoorC  float64 `json:"base_outdoor_c"`
	NoiseStdDev   float64 `json:"noise_std_dev"`
	CenterLat     float64 `json:"center_lat"`
	CenterLon     float64 `json:"center_lon"`
	RadiusM       float64 `json:"radius_m"`
	Source        string  `json:"source"`
	Seed          uint64  `json:"seed"`
}

// SetDefaults applies fallback values for optional fields.
func (c *SimulatorConfig) SetDefaults() {
	if len(c.Vehicles) == 0 {
		c.Vehicles = []string{"ABC-123"}
	}
	if c.SensorIntervalMS <= 0 {
		c.SensorIntervalMS = 100
	}
	if c.GPSIntervalMS <= 0 {
		c.GPSIntervalMS = 1000
	}
	if c.BaseIndoorC == 0 {
		c.BaseIndoorC = 20
	}
	if c.BaseOutdoorC == 0 {
		c.BaseOutdoorC = 10
	}
	if c.NoiseStdDev == 0 {
		c.NoiseStdDev = 0.1
	}
	if c.CenterLat == 0 && c.CenterLon == 0 {
		c.CenterLat, c.CenterLon = 60.1699, 24.9384
	}
	if c.RadiusM == 0 {
		c.RadiusM = 500
	}
	if c.Source == "" {
		c.Source = "C5_sensors"
	}
}

// Validate checks the configuration ranges.
func (c SimulatorConfig) Validate() error {
	for _, id := range c.Vehicles {
		if err := model.ValidateVehicleID(id); err != nil {
			return err
		}
	}
	if c.NoiseStdDev < 0 {
		return fmt.Errorf("noise_std_dev must be >= 0")
	}
	if c.CenterLat < -90 || c.CenterLat > 90 || c.CenterLon < -180 || c.CenterLon > 180 {
		return fmt.Errorf("center out of range")
	}
	if c.RadiusM < 0 {
		return fmt.Errorf("radius_m must be >= 0")
	}
	return nil
}

func (c SimulatorConfig) SensorInterval() time.Duration {
	return time.Duration(c.SensorIntervalMS) * time.Millisecond
}

func (c SimulatorConfig) GPSInterval() time.Duration {
	return time.Duration(c.GPSIntervalMS) * time.Millisecond
}
