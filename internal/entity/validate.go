package entity

import (
	"fmt"
	"math"
	"slices"
)

// ConfigError reports an invalid configuration value or entity attribute.
type ConfigError struct {
	Kind   string // "region", "farmer", "policy", "infrastructure", "engine"
	ID     string // Offending identifier, empty for engine settings
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: invalid %s %v: %s", e.Kind, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s %q: invalid %s %v: %s", e.Kind, e.ID, e.Field, e.Value, e.Reason)
}

func invalid(kind, id, field string, value any, reason string) *ConfigError {
	return &ConfigError{Kind: kind, ID: id, Field: field, Value: value, Reason: reason}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks a Location. Locations are immutable once added, so nothing is clamped.
func (l Location) Validate() error {
	const kind = "region"
	switch {
	case l.District == "":
		return invalid(kind, "", "district", l.District, "must not be empty")
	case !finite(l.Latitude) || l.Latitude < -90 || l.Latitude > 90:
		return invalid(kind, l.District, "latitude", l.Latitude, "must be within [-90, 90]")
	case !finite(l.Longitude) || l.Longitude < -180 || l.Longitude > 180:
		return invalid(kind, l.District, "longitude", l.Longitude, "must be within [-180, 180]")
	case !finite(l.Elevation) || l.Elevation < 0:
		return invalid(kind, l.District, "elevation", l.Elevation, "must be >= 0")
	case !slices.Contains(AgroEcologicalZones, l.AgroEcologicalZone):
		return invalid(kind, l.District, "agro_ecological_zone", l.AgroEcologicalZone, "unknown zone")
	}
	return nil
}

// Normalize returns the profile with its unit-interval attributes clamped.
func (f FarmerProfile) Normalize() FarmerProfile {
	f.TechnologyAdoptionLevel = Clamp01(f.TechnologyAdoptionLevel)
	f.RiskTolerance = Clamp01(f.RiskTolerance)
	return f
}

// Validate checks a FarmerProfile. Adoption level and risk tolerance are
// clamped by Normalize rather than rejected here.
func (f FarmerProfile) Validate() error {
	const kind = "farmer"
	switch {
	case f.FarmerID == "":
		return invalid(kind, "", "farmer_id", f.FarmerID, "must not be empty")
	case f.District == "":
		return invalid(kind, f.FarmerID, "district", f.District, "must not be empty")
	case !finite(f.LandHoldingSize) || f.LandHoldingSize <= 0:
		return invalid(kind, f.FarmerID, "land_holding_size", f.LandHoldingSize, "must be > 0")
	case f.FarmingExperience < 0:
		return invalid(kind, f.FarmerID, "farming_experience", f.FarmingExperience, "must be >= 0")
	case len(f.CropsGrown) == 0:
		return invalid(kind, f.FarmerID, "crops_grown", f.CropsGrown, "must not be empty")
	case math.IsNaN(f.TechnologyAdoptionLevel):
		return invalid(kind, f.FarmerID, "technology_adoption_level", f.TechnologyAdoptionLevel, "must be a number")
	case math.IsNaN(f.RiskTolerance):
		return invalid(kind, f.FarmerID, "risk_tolerance", f.RiskTolerance, "must be a number")
	}
	return nil
}

// Normalize returns the policy with its success metrics clamped into [0, 1].
func (p Policy) Normalize() Policy {
	if len(p.SuccessMetrics) == 0 {
		return p
	}
	metrics := make(map[string]float64, len(p.SuccessMetrics))
	for k, v := range p.SuccessMetrics {
		metrics[k] = Clamp01(v)
	}
	p.SuccessMetrics = metrics
	return p
}

// Validate checks a Policy.
func (p Policy) Validate() error {
	const kind = "policy"
	switch {
	case p.PolicyID == "":
		return invalid(kind, "", "policy_id", p.PolicyID, "must not be empty")
	case p.EndDate != nil && p.EndDate.Before(p.StartDate):
		return invalid(kind, p.PolicyID, "end_date", p.EndDate.Format("2006-01-02"), "must not precede start_date")
	case !finite(p.BudgetAllocation) || p.BudgetAllocation <= 0:
		return invalid(kind, p.PolicyID, "budget_allocation", p.BudgetAllocation, "must be > 0")
	case !slices.Contains(TargetSectors, p.TargetSector):
		return invalid(kind, p.PolicyID, "target_sector", p.TargetSector, "unknown sector")
	case !slices.Contains(ImplementationStatuses, p.ImplementationStatus):
		return invalid(kind, p.PolicyID, "implementation_status", p.ImplementationStatus, "must be planned, ongoing or completed")
	}
	return nil
}

// Validate checks an Infrastructure record.
func (i Infrastructure) Validate() error {
	const kind = "infrastructure"
	switch {
	case i.InfrastructureID == "":
		return invalid(kind, "", "infrastructure_id", i.InfrastructureID, "must not be empty")
	case !slices.Contains(InfrastructureTypes, i.Type):
		return invalid(kind, i.InfrastructureID, "type", i.Type, "must be storage, irrigation or transportation")
	case i.District == "":
		return invalid(kind, i.InfrastructureID, "district", i.District, "must not be empty")
	case !finite(i.Capacity) || i.Capacity <= 0:
		return invalid(kind, i.InfrastructureID, "capacity", i.Capacity, "must be > 0")
	case !slices.Contains(OperationalStatuses, i.OperationalStatus):
		return invalid(kind, i.InfrastructureID, "operational_status", i.OperationalStatus, "must be operational, maintenance or under_construction")
	case !slices.Contains(MaintenanceStatuses, i.MaintenanceStatus):
		return invalid(kind, i.InfrastructureID, "maintenance_status", i.MaintenanceStatus, "must be good, fair or poor")
	}
	return nil
}
