// Package economy provides regional market clearing for aggregate crop output.
package economy

// ratioOffset keeps the price finite when the supply/demand ratio is zero.
const ratioOffset = 0.1

// Params holds the market constants for one run.
type Params struct {
	BasePrice    float64 `yaml:"base_price" json:"base_price"`       // BDT per ton
	DemandFactor float64 `yaml:"demand_factor" json:"demand_factor"` // Demand as a multiple of production
}

// DefaultParams returns a base price of 1000 BDT/ton and 10% structural excess demand.
func DefaultParams() Params {
	return Params{BasePrice: 1000, DemandFactor: 1.1}
}

// Quote is the cleared state of one regional market for one step.
type Quote struct {
	Supply float64 `json:"supply"` // Tons produced
	Demand float64 `json:"demand"` // Tons wanted
	Price  float64 `json:"price"`  // BDT per ton
}

// Model resolves clearing prices. It holds no mutable state.
type Model struct {
	params Params
}

// NewModel creates a market model.
func NewModel(p Params) Model {
	return Model{params: p}
}

// Demand returns the demand implied by a region's production.
func (m Model) Demand(production float64) float64 {
	return production * m.params.DemandFactor
}

// Price returns the clearing price for the given production and demand.
// With no demand the ratio is taken as 0, giving BasePrice/0.1.
func (m Model) Price(production, demand float64) float64 {
	return m.params.BasePrice / (SupplyRatio(production, demand) + ratioOffset)
}

// Clear derives demand from production and resolves the price.
func (m Model) Clear(production float64) Quote {
	demand := m.Demand(production)
	return Quote{
		Supply: production,
		Demand: demand,
		Price:  m.Price(production, demand),
	}
}

// SupplyRatio returns production/demand, or 0 when demand is not positive.
func SupplyRatio(production, demand float64) float64 {
	if demand <= 0 {
		return 0
	}
	return production / demand
}
