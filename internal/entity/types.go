// Package entity provides the plain data records the simulation runs on:
// regions, farmers, policies, infrastructure, and the per-step results.
// Records reference each other by identifier only.
package entity

import "time"

// Agro-ecological zones a Location may belong to.
const (
	ZoneCoastal        = "Coastal Zone"
	ZoneHaorBasin      = "Haor Basin"
	ZoneBarindTract    = "Barind Tract"
	ZoneChittagongHill = "Chittagong Hill Tracts"
	ZoneFloodplains    = "Floodplains"
	ZoneCharIslands    = "Char Islands"
)

// AgroEcologicalZones lists every valid zone in a stable order.
var AgroEcologicalZones = []string{
	ZoneCoastal, ZoneHaorBasin, ZoneBarindTract,
	ZoneChittagongHill, ZoneFloodplains, ZoneCharIslands,
}

// Infrastructure types.
const (
	InfraStorage        = "storage"
	InfraIrrigation     = "irrigation"
	InfraTransportation = "transportation"
)

// InfrastructureTypes lists every valid infrastructure type.
var InfrastructureTypes = []string{InfraStorage, InfraIrrigation, InfraTransportation}

// Infrastructure operational states.
const (
	OpOperational       = "operational"
	OpMaintenance       = "maintenance"
	OpUnderConstruction = "under_construction"
)

// OperationalStatuses lists every valid operational status.
var OperationalStatuses = []string{OpOperational, OpMaintenance, OpUnderConstruction}

// Infrastructure maintenance grades.
const (
	MaintenanceGood = "good"
	MaintenanceFair = "fair"
	MaintenancePoor = "poor"
)

// MaintenanceStatuses lists every valid maintenance status.
var MaintenanceStatuses = []string{MaintenanceGood, MaintenanceFair, MaintenancePoor}

// Policy implementation states.
const (
	StatusPlanned   = "planned"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

// ImplementationStatuses lists every valid policy status.
var ImplementationStatuses = []string{StatusPlanned, StatusOngoing, StatusCompleted}

// Policy target sectors.
const (
	SectorSubsidy             = "subsidy"
	SectorCredit              = "credit"
	SectorInsurance           = "insurance"
	SectorTechnologyAdoption  = "technology_adoption"
	SectorInfrastructure      = "infrastructure_development"
	SectorResearchDevelopment = "research_development"
)

// TargetSectors lists every valid policy target sector.
var TargetSectors = []string{
	SectorSubsidy, SectorCredit, SectorInsurance,
	SectorTechnologyAdoption, SectorInfrastructure, SectorResearchDevelopment,
}

// Location is a simulated region. District is its identifier within a run.
type Location struct {
	District           string  `json:"district"`
	Upazila            string  `json:"upazila"`
	Union              string  `json:"union"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Elevation          float64 `json:"elevation"` // Metres
	AgroEcologicalZone string  `json:"agro_ecological_zone"`
}

// FarmerProfile describes one farming household.
type FarmerProfile struct {
	FarmerID string `json:"farmer_id"`
	District string `json:"district"` // Back-reference to Location.District

	LandHoldingSize   float64  `json:"land_holding_size"`  // Hectares
	FarmingExperience int      `json:"farming_experience"` // Years
	CropsGrown        []string `json:"crops_grown"`
	IrrigationType    string   `json:"irrigation_type"`

	TechnologyAdoptionLevel float64 `json:"technology_adoption_level"` // 0.0–1.0
	RiskTolerance           float64 `json:"risk_tolerance"`            // 0.0–1.0

	AccessToCredit    bool `json:"access_to_credit"`
	AccessToInsurance bool `json:"access_to_insurance"`
}

// Policy is an agricultural policy intervention.
type Policy struct {
	PolicyID             string             `json:"policy_id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	StartDate            time.Time          `json:"start_date"`
	EndDate              *time.Time         `json:"end_date,omitempty"` // nil = open-ended
	TargetSector         string             `json:"target_sector"`
	BudgetAllocation     float64            `json:"budget_allocation"` // BDT
	ImplementationStatus string             `json:"implementation_status"`
	SuccessMetrics       map[string]float64 `json:"success_metrics"` // Each 0.0–1.0
}

// Infrastructure is a physical asset serving a region.
type Infrastructure struct {
	InfrastructureID    string    `json:"infrastructure_id"`
	Type                string    `json:"type"`
	District            string    `json:"district"`
	Capacity            float64   `json:"capacity"` // Tons or cubic metres
	OperationalStatus   string    `json:"operational_status"`
	MaintenanceStatus   string    `json:"maintenance_status"`
	LastInspectionDate  time.Time `json:"last_inspection_date"`
	NextMaintenanceDate time.Time `json:"next_maintenance_date"`
}

// ClimateImpact is the climate perturbation sampled for one region in one step.
type ClimateImpact struct {
	TemperatureChange float64 `json:"temperature_change"` // °C delta
	RainfallChange    float64 `json:"rainfall_change"`    // mm delta
	DroughtRisk       float64 `json:"drought_risk"`       // 0.0–1.0
	FloodRisk         float64 `json:"flood_risk"`         // 0.0–1.0
}

// RegionResult is one region's outcome for one step.
type RegionResult struct {
	Production    float64       `json:"production"`   // Tons
	MarketPrice   float64       `json:"market_price"` // BDT per ton
	ClimateImpact ClimateImpact `json:"climate_impact"`
}

// StepResult holds every region's outcome for the step dated Date.
type StepResult struct {
	Date    time.Time               `json:"date"`
	Regions map[string]RegionResult `json:"regions"`
}

// Set bundles the entity records that seed one simulation run.
type Set struct {
	Regions        []Location       `json:"regions"`
	Farmers        []FarmerProfile  `json:"farmers"`
	Policies       []Policy         `json:"policies"`
	Infrastructure []Infrastructure `json:"infrastructure"`
}

// Clone returns a deep copy so transforms never alias the caller's records.
func (s Set) Clone() Set {
	out := Set{
		Regions:        append([]Location(nil), s.Regions...),
		Farmers:        make([]FarmerProfile, len(s.Farmers)),
		Policies:       make([]Policy, len(s.Policies)),
		Infrastructure: append([]Infrastructure(nil), s.Infrastructure...),
	}
	for i, f := range s.Farmers {
		f.CropsGrown = append([]string(nil), f.CropsGrown...)
		out.Farmers[i] = f
	}
	for i, p := range s.Policies {
		if p.EndDate != nil {
			end := *p.EndDate
			p.EndDate = &end
		}
		if p.SuccessMetrics != nil {
			metrics := make(map[string]float64, len(p.SuccessMetrics))
			for k, v := range p.SuccessMetrics {
				metrics[k] = v
			}
			p.SuccessMetrics = metrics
		}
		out.Policies[i] = p
	}
	return out
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
