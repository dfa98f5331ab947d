package simulator

import (
	"fmt"
	"math"

	"github.com/kilianp07/vehicle-broker/core/model"
)

// Plausible sensor ranges.
const (
	MinTemperature = -50.0
	MaxTemperature = 100.0
)

// ValidLicensePlate reports whether plate has the AAA-999 format.
func ValidLicensePlate(plate string) bool { return model.IsLicensePlate(plate) }

// ValidTemperature reports whether t is a plausible temperature in °C.
func ValidTemperature(t float64) bool {
	return !math.IsNaN(t) && t >= MinTemperature && t <= MaxTemperature
}

// ValidGPS reports whether p is a valid WGS84 coordinate.
func ValidGPS(p GPS) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Validate checks a value before it is published.
func Validate(sensorType string, v any) error {
	switch sensorType {
	case model.SensorIndoorTemp, model.SensorOutdoorTemp:
		f, ok := v.(float64)
		if !ok || !ValidTemperature(f) {
			return fmt.Errorf("%s: implausible temperature %v", sensorType, v)
		}
	case model.SensorGPS:
		p, ok := v.(GPS)
		if !ok || !ValidGPS(p) {
			return fmt.Errorf("gps: invalid position %v", v)
		}
	}
	return nil
}
