// Package crop computes per-hectare yields from farmer attributes and climate stress.
package crop

import (
	"math"

	"github.com/talgya/agrisim/internal/entity"
)

// Yield weights. They sum to 1 so a perfect farmer in a calm year yields BaseYield.
const (
	technologyWeight = 0.4
	experienceWeight = 0.3
	climateWeight    = 0.3

	// Years of experience at which the experience factor saturates.
	experienceSaturation = 20.0
)

// Params holds the yield constants for one run.
type Params struct {
	BaseYield float64 `yaml:"base_yield" json:"base_yield"` // Tons per hectare
}

// DefaultParams returns a base yield of 4 tons per hectare.
func DefaultParams() Params {
	return Params{BaseYield: 4.0}
}

// Model computes yields. It holds no mutable state.
type Model struct {
	params Params
}

// NewModel creates a yield model.
func NewModel(p Params) Model {
	return Model{params: p}
}

// Yield returns the farmer's yield in tons per hectare for one step. Never negative.
func (m Model) Yield(f entity.FarmerProfile, impact entity.ClimateImpact) float64 {
	technology := f.TechnologyAdoptionLevel
	experience := math.Min(1.0, float64(f.FarmingExperience)/experienceSaturation)
	climate := 1.0 - (impact.DroughtRisk+impact.FloodRisk)/2

	factor := technology*technologyWeight + experience*experienceWeight + climate*climateWeight
	return math.Max(0, m.params.BaseYield*factor)
}

// Production returns the farmer's total output in tons for one step.
func (m Model) Production(f entity.FarmerProfile, impact entity.ClimateImpact) float64 {
	return m.Yield(f, impact) * f.LandHoldingSize
}
