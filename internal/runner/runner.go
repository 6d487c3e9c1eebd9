// Package runner drives complete simulation runs: it generates the input
// entities, applies a scenario, steps an engine to the end and optionally
// stores everything.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/agrisim/internal/climate"
	"github.com/talgya/agrisim/internal/crop"
	"github.com/talgya/agrisim/internal/economy"
	"github.com/talgya/agrisim/internal/engine"
	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/entropy"
	"github.com/talgya/agrisim/internal/persistence"
	"github.com/talgya/agrisim/internal/scenario"
	"github.com/talgya/agrisim/internal/supply"
)

// Store is the subset of persistence the runner writes to.
type Store interface {
	CreateRun(ctx context.Context, scenario string, start, end time.Time, params any) (persistence.Run, error)
	SetRunStatus(ctx context.Context, id uuid.UUID, status persistence.RunStatus, msg string) error
	SaveEntitySet(ctx context.Context, runID uuid.UUID, set entity.Set) error
	UpdateRunResults(ctx context.Context, id uuid.UUID, results []entity.StepResult) error
}

// Request describes one run.
type Request struct {
	Scenario   scenario.Kind
	Engine     engine.Config
	Districts  []string
	Counts     supply.Counts
	SupplySeed int64 // 0 = use the engine seed
}

// Outcome is everything a finished run produced.
type Outcome struct {
	RunID         uuid.UUID // Zero when the run was not stored
	Scenario      scenario.Kind
	Config        engine.Config
	Entities      entity.Set
	Results       []entity.StepResult
	ReferenceGaps int
}

// Parameters is the JSON record stored alongside a run.
type Parameters struct {
	Seed       int64          `json:"seed"`
	SupplySeed int64          `json:"supply_seed"`
	StepDays   float64        `json:"time_step_days"`
	Districts  []string       `json:"districts"`
	Counts     supply.Counts  `json:"counts"`
	Climate    climate.Params `json:"climate"`
	Yield      crop.Params    `json:"yield"`
	Market     economy.Params `json:"market"`
}

// Runner executes requests. Store may be nil to skip persistence.
type Runner struct {
	Store Store
}

// New creates a runner writing to store, which may be nil.
func New(store Store) *Runner {
	return &Runner{Store: store}
}

// resolve fixes both seeds so scenario runs derived from one request share inputs.
func (req Request) resolve() Request {
	req.Engine.Seed = entropy.Resolve(req.Engine.Seed)
	if req.SupplySeed == 0 {
		req.SupplySeed = req.Engine.Seed
	}
	if len(req.Districts) == 0 {
		req.Districts = supply.Districts
	}
	return req
}

// Run executes one request. onStep, if non-nil, receives each result as it
// is produced. Cancelling ctx stops the run between steps.
func (r *Runner) Run(ctx context.Context, req Request, onStep func(entity.StepResult)) (Outcome, error) {
	req = req.resolve()

	base, err := supply.NewGenerator(req.SupplySeed).Set(req.Districts, req.Counts, req.Engine.Start)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate entities: %w", err)
	}
	cfg, set, err := scenario.Apply(req.Scenario, req.Engine, base)
	if err != nil {
		return Outcome{}, err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Load(set); err != nil {
		return Outcome{}, fmt.Errorf("load entities: %w", err)
	}
	eng.OnStep = onStep

	out := Outcome{
		Scenario: req.Scenario,
		Config:   eng.Config(),
		Entities: eng.Snapshot(),
	}

	if r.Store != nil {
		run, err := r.Store.CreateRun(ctx, string(req.Scenario), cfg.Start, cfg.End, req.parameters(cfg))
		if err != nil {
			return out, fmt.Errorf("create run: %w", err)
		}
		out.RunID = run.ID
		if err := r.Store.SaveEntitySet(ctx, run.ID, out.Entities); err != nil {
			return out, r.fail(ctx, run.ID, fmt.Errorf("save entities: %w", err))
		}
		if err := r.Store.SetRunStatus(ctx, run.ID, persistence.RunRunning, ""); err != nil {
			return out, r.fail(ctx, run.ID, fmt.Errorf("mark run running: %w", err))
		}
	}

	slog.Info("scenario starting", "scenario", req.Scenario, "steps", cfg.Steps(), "seed", out.Config.Seed)

	results, err := eng.RunFullContext(ctx)
	if err != nil {
		return out, r.fail(ctx, out.RunID, err)
	}
	out.Results = results
	out.ReferenceGaps = eng.ReferenceGaps()

	slog.Info("scenario complete", "scenario", req.Scenario, "steps", len(results), "reference_gaps", out.ReferenceGaps)

	if r.Store != nil {
		if err := r.Store.UpdateRunResults(ctx, out.RunID, results); err != nil {
			return out, r.fail(ctx, out.RunID, fmt.Errorf("save results: %w", err))
		}
	}
	return out, nil
}

// fail marks a stored run failed and returns err.
func (r *Runner) fail(ctx context.Context, id uuid.UUID, err error) error {
	if r.Store == nil || id == uuid.Nil {
		return err
	}
	// The run context may already be cancelled.
	if serr := r.Store.SetRunStatus(context.WithoutCancel(ctx), id, persistence.RunFailed, err.Error()); serr != nil {
		slog.Error("mark run failed", "run", id, "error", serr)
	}
	return err
}

// RunAll runs every listed scenario concurrently from the same input entities.
// Each scenario gets its own engine; they share nothing mutable.
func (r *Runner) RunAll(ctx context.Context, req Request, kinds []scenario.Kind) (map[scenario.Kind]Outcome, error) {
	req = req.resolve()

	outcomes := make([]Outcome, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		i, k := i, k
		g.Go(func() error {
			sub := req
			sub.Scenario = k
			out, err := r.Run(gctx, sub, nil)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", k, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKind := make(map[scenario.Kind]Outcome, len(kinds))
	for i, k := range kinds {
		byKind[k] = outcomes[i]
	}
	return byKind, nil
}

func (req Request) parameters(cfg engine.Config) Parameters {
	return Parameters{
		Seed:       cfg.Seed,
		SupplySeed: req.SupplySeed,
		StepDays:   cfg.Step.Hours() / 24,
		Districts:  req.Districts,
		Counts:     req.Counts,
		Climate:    cfg.Climate,
		Yield:      cfg.Yield,
		Market:     cfg.Market,
	}
}
