package entity

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFarmer() FarmerProfile {
	return FarmerProfile{
		FarmerID:                "F10001",
		District:                "Dhaka",
		LandHoldingSize:         1.5,
		FarmingExperience:       12,
		CropsGrown:              []string{"Rice"},
		IrrigationType:          "Groundwater",
		TechnologyAdoptionLevel: 0.3,
		RiskTolerance:           0.5,
	}
}

func TestFarmerValidate(t *testing.T) {
	require.NoError(t, testFarmer().Validate())

	tests := []struct {
		name  string
		mut   func(*FarmerProfile)
		field string
	}{
		{"empty id", func(f *FarmerProfile) { f.FarmerID = "" }, "farmer_id"},
		{"zero land", func(f *FarmerProfile) { f.LandHoldingSize = 0 }, "land_holding_size"},
		{"negative land", func(f *FarmerProfile) { f.LandHoldingSize = -2 }, "land_holding_size"},
		{"negative experience", func(f *FarmerProfile) { f.FarmingExperience = -1 }, "farming_experience"},
		{"no crops", func(f *FarmerProfile) { f.CropsGrown = nil }, "crops_grown"},
		{"no district", func(f *FarmerProfile) { f.District = "" }, "district"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFarmer()
			tt.mut(&f)
			err := f.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Equal(t, "farmer", cfgErr.Kind)
		})
	}
}

func TestFarmerNormalizeClamps(t *testing.T) {
	f := testFarmer()
	f.TechnologyAdoptionLevel = 1.7
	f.RiskTolerance = -0.2
	require.NoError(t, f.Validate(), "out-of-range unit values are clamped, not rejected")

	n := f.Normalize()
	assert.Equal(t, 1.0, n.TechnologyAdoptionLevel)
	assert.Equal(t, 0.0, n.RiskTolerance)
}

func TestLocationValidate(t *testing.T) {
	loc := Location{District: "Khulna", Latitude: 22.8, Longitude: 89.5, Elevation: 4, AgroEcologicalZone: ZoneCoastal}
	require.NoError(t, loc.Validate())

	bad := loc
	bad.Latitude = 91
	assert.Error(t, bad.Validate())

	bad = loc
	bad.Elevation = -1
	assert.Error(t, bad.Validate())

	bad = loc
	bad.AgroEcologicalZone = "Tundra"
	assert.Error(t, bad.Validate())
}

func TestPolicyValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	p := Policy{
		PolicyID:             "P1",
		StartDate:            start,
		EndDate:              &end,
		TargetSector:         SectorCredit,
		BudgetAllocation:     5e6,
		ImplementationStatus: StatusOngoing,
		SuccessMetrics:       map[string]float64{"adoption_rate": 1.4},
	}
	require.NoError(t, p.Validate())
	assert.Equal(t, 1.0, p.Normalize().SuccessMetrics["adoption_rate"])
	assert.Equal(t, 1.4, p.SuccessMetrics["adoption_rate"], "Normalize must not mutate the receiver's map")

	openEnded := p
	openEnded.EndDate = nil
	assert.NoError(t, openEnded.Validate())

	before := start.AddDate(0, 0, -1)
	backwards := p
	backwards.EndDate = &before
	assert.Error(t, backwards.Validate())

	broke := p
	broke.BudgetAllocation = 0
	assert.Error(t, broke.Validate())

	unknown := p
	unknown.TargetSector = "lottery"
	var cerr *ConfigError
	require.ErrorAs(t, unknown.Validate(), &cerr)
	assert.Equal(t, "target_sector", cerr.Field)
}

func TestInfrastructureValidate(t *testing.T) {
	valid := Infrastructure{
		InfrastructureID:  "I1",
		Type:              InfraStorage,
		District:          "Sylhet",
		Capacity:          120,
		OperationalStatus: OpOperational,
		MaintenanceStatus: MaintenanceFair,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Infrastructure){
		"capacity":           func(i *Infrastructure) { i.Capacity = 0 },
		"type":               func(i *Infrastructure) { i.Type = "pipeline" },
		"operational_status": func(i *Infrastructure) { i.OperationalStatus = "abandoned" },
		"maintenance_status": func(i *Infrastructure) { i.MaintenanceStatus = "" },
	}
	for field, mutate := range cases {
		i := valid
		mutate(&i)
		var cerr *ConfigError
		require.ErrorAs(t, i.Validate(), &cerr, field)
		assert.Equal(t, field, cerr.Field)
	}
}

func TestSetCloneIsDeep(t *testing.T) {
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Set{
		Farmers:  []FarmerProfile{testFarmer()},
		Policies: []Policy{{PolicyID: "P1", EndDate: &end, SuccessMetrics: map[string]float64{"x": 0.5}}},
	}
	c := s.Clone()
	c.Farmers[0].TechnologyAdoptionLevel = 0.9
	c.Farmers[0].CropsGrown[0] = "Jute"
	c.Policies[0].SuccessMetrics["x"] = 0.1
	*c.Policies[0].EndDate = end.AddDate(1, 0, 0)

	assert.Equal(t, 0.3, s.Farmers[0].TechnologyAdoptionLevel)
	assert.Equal(t, "Rice", s.Farmers[0].CropsGrown[0])
	assert.Equal(t, 0.5, s.Policies[0].SuccessMetrics["x"])
	assert.Equal(t, end, *s.Policies[0].EndDate)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-3))
	assert.Equal(t, 1.0, Clamp01(5))
	assert.Equal(t, 0.25, Clamp01(0.25))
}

func TestStepResultMatchesSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "step_result.schema.json"))
	require.NoError(t, err)

	step := StepResult{
		Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Regions: map[string]RegionResult{
			"Dhaka": {
				Production:  8,
				MarketPrice: 990.99,
				ClimateImpact: ClimateImpact{
					TemperatureChange: 0.4,
					RainfallChange:    -120,
					DroughtRisk:       0,
					FloodRisk:         1,
				},
			},
		},
	}
	raw, err := json.Marshal(step)
	require.NoError(t, err)

	var doc any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NoError(t, schema.Validate(doc))

	var round StepResult
	require.NoError(t, json.Unmarshal(raw, &round))
	assert.Equal(t, step, round)
}
