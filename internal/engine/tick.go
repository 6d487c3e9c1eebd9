// Package engine provides the stepwise simulation core: entity registries,
// the date cursor, and the per-step climate → yield → price transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/agrisim/internal/climate"
	"github.com/talgya/agrisim/internal/crop"
	"github.com/talgya/agrisim/internal/economy"
	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/entropy"
)

// ConfigError is returned for invalid configuration and entity attributes.
type ConfigError = entity.ConfigError

var (
	// ErrRegistryClosed is returned by Add* once the first step has run.
	ErrRegistryClosed = errors.New("entity registries are closed once the run has started")
	// ErrRunComplete is returned by RunFull after the run has already finished.
	ErrRunComplete = errors.New("simulation run already complete")
)

// State is the engine lifecycle phase.
type State uint8

const (
	StateConfiguring State = iota // Entities may be added
	StateRunning                  // Steps have begun; registries closed
	StateComplete                 // Cursor is past End
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Sampler draws one climate impact per region per step.
type Sampler interface {
	Sample(region string) entity.ClimateImpact
}

// Option customises an Engine at construction.
type Option func(*Engine)

// WithSampler replaces the seeded climate sampler, e.g. to pin the climate.
func WithSampler(s Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// Engine drives one simulation run. It is not safe for concurrent use;
// independent engines share nothing and may run in parallel.
type Engine struct {
	cfg     Config
	sampler Sampler
	yield   crop.Model
	market  economy.Model

	current time.Time
	state   State
	steps   int

	regions     *registry[entity.Location]
	farmers     *registry[entity.FarmerProfile]
	infra       *registry[entity.Infrastructure]
	policies    *registry[entity.Policy]
	regionIndex map[string][]string // district → farmer IDs, built on the first step
	gaps        int

	// OnStep, if set, receives every result as it is produced.
	OnStep func(entity.StepResult)
}

// New creates an engine in the configuring state.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Seed = entropy.Resolve(cfg.Seed)

	e := &Engine{
		cfg:      cfg,
		yield:    crop.NewModel(cfg.Yield),
		market:   economy.NewModel(cfg.Market),
		current:  cfg.Start,
		regions:  newRegistry[entity.Location](),
		farmers:  newRegistry[entity.FarmerProfile](),
		infra:    newRegistry[entity.Infrastructure](),
		policies: newRegistry[entity.Policy](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sampler == nil {
		e.sampler = climate.NewSampler(cfg.Climate, entropy.NewRand(cfg.Seed, entropy.StreamClimate))
	}
	return e, nil
}

// Config returns the engine's configuration with the resolved seed.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current lifecycle phase.
func (e *Engine) State() State { return e.state }

// CurrentDate returns the date the next step will simulate.
func (e *Engine) CurrentDate() time.Time { return e.current }

// StepsTaken returns how many steps have produced results.
func (e *Engine) StepsTaken() int { return e.steps }

// ReferenceGaps returns how many farmers reference a region that does not exist.
// Only meaningful once the run has started.
func (e *Engine) ReferenceGaps() int { return e.gaps }

// Step simulates the date under the cursor and advances it by one step.
// The boolean is false once the cursor has passed End; no result is produced then.
func (e *Engine) Step() (entity.StepResult, bool) {
	if e.current.After(e.cfg.End) {
		e.state = StateComplete
		return entity.StepResult{}, false
	}
	if e.state == StateConfiguring {
		e.start()
	}

	result := entity.StepResult{
		Date:    e.current,
		Regions: make(map[string]entity.RegionResult, e.regions.len()),
	}
	for _, district := range e.regions.order {
		impact := e.sampler.Sample(district)

		production := 0.0
		for _, id := range e.regionIndex[district] {
			production += e.yield.Production(e.farmers.items[id], impact)
		}

		quote := e.market.Clear(production)
		result.Regions[district] = entity.RegionResult{
			Production:    production,
			MarketPrice:   quote.Price,
			ClimateImpact: impact,
		}
	}

	slog.Debug("step complete", "date", e.current.Format(time.DateOnly), "regions", len(result.Regions))

	e.current = e.current.Add(e.cfg.Step)
	e.steps++
	if e.current.After(e.cfg.End) {
		e.state = StateComplete
	}
	if e.OnStep != nil {
		e.OnStep(result)
	}
	return result, true
}

// RunFull steps until the cursor passes End and returns the results in
// chronological order. If steps were already taken it continues from the
// current cursor. A finished run cannot be re-run.
func (e *Engine) RunFull() ([]entity.StepResult, error) {
	return e.RunFullContext(context.Background())
}

// RunFullContext is RunFull with cancellation checked before every step.
// On cancellation it returns the results produced so far with ctx's error;
// the cursor stays put, so a later call resumes the run.
func (e *Engine) RunFullContext(ctx context.Context) ([]entity.StepResult, error) {
	if e.state == StateComplete {
		return nil, ErrRunComplete
	}

	slog.Info("simulation run starting",
		"start", e.current.Format(time.DateOnly),
		"end", e.cfg.End.Format(time.DateOnly),
		"regions", e.regions.len(),
		"farmers", e.farmers.len(),
		"seed", e.cfg.Seed,
	)

	results := make([]entity.StepResult, 0, e.remainingSteps())
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation run cancelled", "steps", len(results), "at", e.current.Format(time.DateOnly))
			return results, err
		}
		step, ok := e.Step()
		if !ok {
			break
		}
		results = append(results, step)
	}

	slog.Info("simulation run complete", "steps", len(results), "reference_gaps", e.gaps)
	return results, nil
}

func (e *Engine) remainingSteps() int {
	if e.current.After(e.cfg.End) {
		return 0
	}
	return int(e.cfg.End.Sub(e.current)/e.cfg.Step) + 1
}

// start closes the registries and indexes farmers by region.
func (e *Engine) start() {
	e.state = StateRunning
	e.regionIndex = make(map[string][]string, e.regions.len())
	for _, id := range e.farmers.order {
		f := e.farmers.items[id]
		if _, ok := e.regions.items[f.District]; !ok {
			e.gaps++
			slog.Debug("farmer references unknown region", "farmer", id, "district", f.District)
			continue
		}
		e.regionIndex[f.District] = append(e.regionIndex[f.District], id)
	}
	if e.gaps > 0 {
		slog.Warn("farmers skipped: unknown region", "count", e.gaps)
	}
}
