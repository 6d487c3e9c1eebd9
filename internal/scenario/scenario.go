// Package scenario derives run variants from a base configuration and entity set.
// Every transform is pure: it returns new values and never touches its inputs.
package scenario

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/agrisim/internal/engine"
	"github.com/talgya/agrisim/internal/entity"
)

// Kind names a scenario.
type Kind string

const (
	Baseline           Kind = "baseline"
	ClimateChange      Kind = "climate_change"
	TechnologyAdoption Kind = "technology_adoption"
)

// Transform is one primitive scenario step.
type Transform func(engine.Config, entity.Set) (engine.Config, entity.Set)

// Scale factors used by the built-in scenarios.
const (
	ClimateMeanFactor = 2.0
	TechnologyFactor  = 1.5
)

var catalog = map[Kind]struct {
	description string
	transforms  []Transform
}{
	Baseline: {
		description: "Current conditions with no modification",
		transforms:  nil,
	},
	ClimateChange: {
		description: "Doubled temperature and rainfall change means",
		transforms:  []Transform{ScaleClimateMeans(ClimateMeanFactor)},
	},
	TechnologyAdoption: {
		description: "Technology adoption scaled by 1.5 and policies retargeted to technology",
		transforms: []Transform{
			ScaleTechnology(TechnologyFactor),
			RetargetPolicies(entity.SectorTechnologyAdoption),
		},
	},
}

// Kinds returns every known scenario in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(catalog))
	for k := range catalog {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Describe returns a one-line description of a scenario.
func Describe(k Kind) string {
	return catalog[k].description
}

// Parse converts a name into a Kind.
func Parse(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := catalog[k]; !ok {
		return "", fmt.Errorf("unknown scenario %q", name)
	}
	return k, nil
}

// Apply derives the named scenario from a base configuration and entity set.
func Apply(k Kind, cfg engine.Config, set entity.Set) (engine.Config, entity.Set, error) {
	entry, ok := catalog[k]
	if !ok {
		return cfg, set, fmt.Errorf("unknown scenario %q", k)
	}
	cfg, set = Compose(entry.transforms...)(cfg, set)
	return cfg, set, nil
}

// Compose chains transforms left to right. The result always works on a copy of set.
func Compose(ts ...Transform) Transform {
	return func(cfg engine.Config, set entity.Set) (engine.Config, entity.Set) {
		set = set.Clone()
		for _, t := range ts {
			cfg, set = t(cfg, set)
		}
		return cfg, set
	}
}

// ScaleClimateMeans multiplies the temperature and rainfall change means.
func ScaleClimateMeans(factor float64) Transform {
	return func(cfg engine.Config, set entity.Set) (engine.Config, entity.Set) {
		cfg.Climate.TempChangeMean *= factor
		cfg.Climate.RainChangeMean *= factor
		return cfg, set
	}
}

// ScaleTechnology multiplies every farmer's adoption level, capped at 1.
func ScaleTechnology(factor float64) Transform {
	return func(cfg engine.Config, set entity.Set) (engine.Config, entity.Set) {
		out := set.Clone()
		for i := range out.Farmers {
			f := &out.Farmers[i]
			f.TechnologyAdoptionLevel = math.Min(1.0, f.TechnologyAdoptionLevel*factor)
		}
		return cfg, out
	}
}

// RetargetPolicies points every policy at the given sector.
func RetargetPolicies(sector string) Transform {
	return func(cfg engine.Config, set entity.Set) (engine.Config, entity.Set) {
		out := set.Clone()
		for i := range out.Policies {
			out.Policies[i].TargetSector = sector
		}
		return cfg, out
	}
}
