// Package climate samples per-region climate perturbations for each step.
// The model is memoryless: every sample is independent of the previous ones.
package climate

import (
	"math/rand"

	"github.com/talgya/agrisim/internal/entity"
)

// Params are the distribution constants for one run.
type Params struct {
	TempChangeMean float64 `yaml:"temp_change_mean" json:"temp_change_mean"` // °C
	TempChangeStd  float64 `yaml:"temp_change_std" json:"temp_change_std"`
	RainChangeMean float64 `yaml:"rain_change_mean" json:"rain_change_mean"` // mm
	RainChangeStd  float64 `yaml:"rain_change_std" json:"rain_change_std"`
}

// DefaultParams returns the baseline distribution: +0.5°C ±0.2, -100mm ±50.
func DefaultParams() Params {
	return Params{
		TempChangeMean: 0.5,
		TempChangeStd:  0.2,
		RainChangeMean: -100,
		RainChangeStd:  50,
	}
}

// Sampler draws ClimateImpact values from its own generator.
type Sampler struct {
	params Params
	rng    *rand.Rand
}

// NewSampler creates a sampler. rng must not be shared with another engine.
func NewSampler(p Params, rng *rand.Rand) *Sampler {
	return &Sampler{params: p, rng: rng}
}

// Params returns the sampler's distribution constants.
func (s *Sampler) Params() Params {
	return s.params
}

// Sample draws a fresh climate impact. The region does not influence the draw.
func (s *Sampler) Sample(region string) entity.ClimateImpact {
	temp := s.params.TempChangeMean + s.rng.NormFloat64()*s.params.TempChangeStd
	rain := s.params.RainChangeMean + s.rng.NormFloat64()*s.params.RainChangeStd
	return Impact(temp, rain)
}

// Impact derives drought and flood risk from a temperature and rainfall change.
func Impact(tempChange, rainChange float64) entity.ClimateImpact {
	return entity.ClimateImpact{
		TemperatureChange: tempChange,
		RainfallChange:    rainChange,
		DroughtRisk:       entity.Clamp01((rainChange + 100) / 200),
		FloodRisk:         entity.Clamp01((-rainChange + 100) / 200),
	}
}

// Fixed always returns the same impact. Useful for pinning a run's climate.
type Fixed entity.ClimateImpact

// Sample returns the fixed impact.
func (f Fixed) Sample(string) entity.ClimateImpact {
	return entity.ClimateImpact(f)
}
