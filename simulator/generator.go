// Package simulator produces synthetic sensor traffic for a fleet of
// vehicles: indoor and outdoor temperature and a GPS position.
package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/vehicle-broker/config"
)

const (
	// metersPerDegree is the length of one degree of latitude.
	metersPerDegree = 111_320.0
	maxTrend        = 5.0
)

// GPS is the value of a gps reading.
type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Generator produces the sensor values of one vehicle. It is not safe for
// concurrent use.
type Generator struct {
	cfg   config.SimulatorConfig
	start time.Time

	indoorJitter  distuv.Uniform
	outdoorJitter distuv.Uniform
	trendStep     distuv.Uniform
	noise         distuv.Normal
	distance      distuv.Uniform

	trend float64
}

// NewGenerator returns a Generator seeded with seed.
func NewGenerator(cfg config.SimulatorConfig, seed uint64, start time.Time) *Generator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Generator{
		cfg:           cfg,
		start:         start,
		indoorJitter:  distuv.Uniform{Min: -2, Max: 5, Src: src},
		outdoorJitter: distuv.Uniform{Min: -1, Max: 1, Src: src},
		trendStep:     distuv.Uniform{Min: -0.1, Max: 0.1, Src: src},
		noise:         distuv.Normal{Mu: 0, Sigma: math.Max(cfg.NoiseStdDev, 1e-9), Src: src},
		distance:      distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// IndoorTemp is the base indoor temperature plus a slow heating drift and
// noise, rounded to 0.1 °C.
func (g *Generator) IndoorTemp(now time.Time) float64 {
	elapsed := now.Sub(g.start).Seconds()
	drift := math.Sin(elapsed*0.01) * 3
	return round(g.cfg.BaseIndoorC+g.indoorJitter.Rand()+drift+g.noise.Rand(), 1)
}

// OutdoorTemp follows a daily cycle peaking at 14:00 UTC plus a bounded
// random-walk weather trend.
func (g *Generator) OutdoorTemp(now time.Time) float64 {
	utc := now.UTC()
	hour := float64(utc.Hour()) + float64(utc.Minute())/60 + float64(utc.Second())/3600
	daily := math.Sin((hour-8)*math.Pi/12) * 8
	g.trend = math.Max(-maxTrend, math.Min(maxTrend, g.trend+g.trendStep.Rand()))
	return round(g.cfg.BaseOutdoorC+daily+g.trend+g.outdoorJitter.Rand(), 1)
}

// Position circles slowly around the configured centre within RadiusM.
func (g *Generator) Position(now time.Time) GPS {
	elapsed := now.Sub(g.start).Seconds()
	angle := elapsed * 0.02
	radiusDeg := g.cfg.RadiusM / metersPerDegree
	d := g.distance.Rand() * radiusDeg
	return GPS{
		Lat: round(g.cfg.CenterLat+math.Cos(angle)*d, 6),
		Lng: round(g.cfg.CenterLon+math.Sin(angle)*d, 6),
	}
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
