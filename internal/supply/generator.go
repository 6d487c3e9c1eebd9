// Package supply synthesises plausible entity records for Bangladeshi
// districts: regions, farmers, infrastructure and policies.
// A Generator is seeded and owns its random source.
package supply

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/entropy"
)

// Districts simulated by default, in registry order.
var Districts = []string{
	"Dhaka", "Chittagong", "Khulna", "Rajshahi", "Barishal",
	"Sylhet", "Rangpur", "Mymensingh", "Comilla", "Noakhali",
}

// districtCentroids holds approximate latitude/longitude per district.
var districtCentroids = map[string][2]float64{
	"Dhaka":      {23.8103, 90.4125},
	"Chittagong": {22.3419, 91.8132},
	"Khulna":     {22.8456, 89.5403},
	"Rajshahi":   {24.3745, 88.6042},
	"Barishal":   {22.7010, 90.3535},
	"Sylhet":     {24.8949, 91.8687},
	"Rangpur":    {25.7439, 89.2752},
	"Mymensingh": {24.7471, 90.4203},
	"Comilla":    {23.4607, 91.1809},
	"Noakhali":   {22.8333, 91.1000},
}

// Crops a farmer may grow.
var Crops = []string{
	"Rice", "Wheat", "Maize", "Potato", "Jute",
	"Sugarcane", "Vegetables", "Fruits",
}

// CropBaseYields are typical yields in tons per hectare, for reference.
// The yield model uses a single aggregate base yield.
var CropBaseYields = map[string]float64{
	"Rice":       4.0,
	"Wheat":      3.0,
	"Maize":      5.0,
	"Potato":     20.0,
	"Jute":       2.5,
	"Sugarcane":  60.0,
	"Vegetables": 15.0,
	"Fruits":     10.0,
}

// IrrigationTypes a farmer may use.
var IrrigationTypes = []string{
	"Surface Water", "Groundwater", "Rain-fed",
	"Solar-powered", "Drip", "Sprinkler",
}

var successMetricNames = []string{"adoption_rate", "cost_effectiveness", "farmer_satisfaction"}

// KnownDistrict reports whether name is a district the generator can place.
func KnownDistrict(name string) bool {
	_, ok := districtCentroids[name]
	return ok
}

// CheckDistricts rejects an empty list, unknown names and duplicates.
func CheckDistricts(districts []string) error {
	if len(districts) == 0 {
		return fmt.Errorf("no districts to generate")
	}
	seen := make(map[string]bool, len(districts))
	for _, d := range districts {
		if !KnownDistrict(d) {
			return fmt.Errorf("unknown district %q", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate district %q", d)
		}
		seen[d] = true
	}
	return nil
}

// Counts controls how large a generated entity set is.
type Counts struct {
	Farmers                   int `yaml:"farmers" json:"farmers"`
	InfrastructurePerDistrict int `yaml:"infrastructure_per_district" json:"infrastructure_per_district"`
	Policies                  int `yaml:"policies" json:"policies"`
}

// DefaultCounts returns 1000 farmers, 5 infrastructure items per district and 10 policies.
func DefaultCounts() Counts {
	return Counts{Farmers: 1000, InfrastructurePerDistrict: 5, Policies: 10}
}

// Generator creates entity records.
type Generator struct {
	rng       *rand.Rand
	elevation elevationField
	used      map[string]bool
	serial    int
}

// NewGenerator creates a generator. Equal seeds produce equal records,
// except for dates derived from the supplied reference time.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:       entropy.NewRand(seed, entropy.StreamSupply),
		elevation: newElevationField(entropy.Derive(seed, entropy.StreamNoise)),
		used:      make(map[string]bool),
	}
}

// Location generates a region for a known district.
func (g *Generator) Location(district string) (entity.Location, error) {
	c, ok := districtCentroids[district]
	if !ok {
		return entity.Location{}, fmt.Errorf("unknown district %q", district)
	}
	lat := c[0] + g.rng.NormFloat64()*0.1
	lon := c[1] + g.rng.NormFloat64()*0.1

	return entity.Location{
		District:           district,
		Upazila:            fmt.Sprintf("%s_Upazila_%d", district, 1+g.rng.Intn(9)),
		Union:              fmt.Sprintf("Union_%d", 1+g.rng.Intn(19)),
		Latitude:           lat,
		Longitude:          lon,
		Elevation:          g.elevation.At(lat, lon),
		AgroEcologicalZone: pick(g.rng, entity.AgroEcologicalZones),
	}, nil
}

// Farmer generates a farmer living in district. Most holdings are small and
// most farmers have low technology adoption.
func (g *Generator) Farmer(district string) entity.FarmerProfile {
	return entity.FarmerProfile{
		FarmerID:                g.id("F"),
		District:                district,
		LandHoldingSize:         g.lognormal(0, 0.5),
		FarmingExperience:       1 + g.rng.Intn(39),
		CropsGrown:              g.crops(),
		IrrigationType:          pick(g.rng, IrrigationTypes),
		TechnologyAdoptionLevel: g.beta(2, 5),
		RiskTolerance:           g.beta(2, 2),
		AccessToCredit:          g.rng.Float64() > 0.7,
		AccessToInsurance:       g.rng.Float64() > 0.9,
	}
}

// Infrastructure generates an infrastructure item in district, with
// inspection and maintenance dates around now.
func (g *Generator) Infrastructure(district string, now time.Time) entity.Infrastructure {
	return entity.Infrastructure{
		InfrastructureID:    g.id("I"),
		Type:                pick(g.rng, entity.InfrastructureTypes),
		District:            district,
		Capacity:            g.lognormal(5, 1),
		OperationalStatus:   pick(g.rng, entity.OperationalStatuses),
		MaintenanceStatus:   pick(g.rng, entity.MaintenanceStatuses),
		LastInspectionDate:  now.AddDate(0, 0, -g.rng.Intn(365)),
		NextMaintenanceDate: now.AddDate(0, 0, 30+g.rng.Intn(335)),
	}
}

// Policy generates a policy starting at now and lasting one to ten years.
func (g *Generator) Policy(now time.Time) entity.Policy {
	end := now.AddDate(0, 0, 365+g.rng.Intn(3285))
	metrics := make(map[string]float64, len(successMetricNames))
	for _, name := range successMetricNames {
		metrics[name] = g.rng.Float64()
	}
	return entity.Policy{
		PolicyID:             g.id("P"),
		Name:                 fmt.Sprintf("Policy_%d", 1+g.rng.Intn(99)),
		Description:          "Simulated policy for agricultural development",
		StartDate:            now,
		EndDate:              &end,
		TargetSector:         pick(g.rng, entity.TargetSectors),
		BudgetAllocation:     g.lognormal(10, 1),
		ImplementationStatus: pick(g.rng, entity.ImplementationStatuses),
		SuccessMetrics:       metrics,
	}
}

// Set generates a full entity set over the given districts. Farmers are
// spread uniformly at random across districts.
func (g *Generator) Set(districts []string, counts Counts, now time.Time) (entity.Set, error) {
	if err := CheckDistricts(districts); err != nil {
		return entity.Set{}, err
	}

	var set entity.Set
	for _, d := range districts {
		loc, err := g.Location(d)
		if err != nil {
			return entity.Set{}, err
		}
		set.Regions = append(set.Regions, loc)
	}
	for i := 0; i < counts.Farmers; i++ {
		set.Farmers = append(set.Farmers, g.Farmer(pick(g.rng, districts)))
	}
	for _, d := range districts {
		for i := 0; i < counts.InfrastructurePerDistrict; i++ {
			set.Infrastructure = append(set.Infrastructure, g.Infrastructure(d, now))
		}
	}
	for i := 0; i < counts.Policies; i++ {
		set.Policies = append(set.Policies, g.Policy(now))
	}
	return set, nil
}

// id returns a prefixed five-digit identifier not yet issued by this generator.
func (g *Generator) id(prefix string) string {
	for attempt := 0; attempt < 64; attempt++ {
		id := fmt.Sprintf("%s%d", prefix, 10000+g.rng.Intn(90000))
		if !g.used[id] {
			g.used[id] = true
			return id
		}
	}
	// Random space crowded: fall back to a serial suffix.
	for {
		g.serial++
		id := fmt.Sprintf("%s%d", prefix, 100000+g.serial)
		if !g.used[id] {
			g.used[id] = true
			return id
		}
	}
}

// crops picks one to three distinct crops.
func (g *Generator) crops() []string {
	n := 1 + g.rng.Intn(3)
	perm := g.rng.Perm(len(Crops))
	out := make([]string, n)
	for i := range out {
		out[i] = Crops[perm[i]]
	}
	return out
}

func (g *Generator) lognormal(mu, sigma float64) float64 {
	return math.Exp(mu + sigma*g.rng.NormFloat64())
}

// beta draws from Beta(a, b) for integer shapes via the gamma ratio.
func (g *Generator) beta(a, b int) float64 {
	x := g.gamma(a)
	y := g.gamma(b)
	return x / (x + y)
}

// gamma draws from Gamma(k, 1) for integer k as a sum of exponentials.
func (g *Generator) gamma(k int) float64 {
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += g.rng.ExpFloat64()
	}
	return sum
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}
