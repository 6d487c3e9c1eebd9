// Command agrisim runs agricultural climate-resilience simulations for
// Bangladeshi districts.
//
// Usage:
//
//	agrisim run      [flags]   run one scenario and write its results
//	agrisim run-all  [flags]   run every scenario in parallel and compare them
//	agrisim serve    [flags]   serve the HTTP API
//	agrisim version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/agrisim/internal/api"
	"github.com/talgya/agrisim/internal/config"
	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/persistence"
	"github.com/talgya/agrisim/internal/report"
	"github.com/talgya/agrisim/internal/runner"
	"github.com/talgya/agrisim/internal/scenario"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = cmdRun(args)
	case "run-all":
		err = cmdRunAll(args)
	case "serve":
		err = cmdServe(args)
	case "version":
		fmt.Println("agrisim", version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agrisim <run|run-all|serve|version> [flags]")
	fmt.Fprintln(os.Stderr, "run 'agrisim <command> -h' for command flags")
}

// common holds the flags every simulation command accepts.
type common struct {
	configPath string
	start      string
	end        string
	farmers    int
	seed       int64
	outputDir  string
	noStore    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.start, "start-date", "", "simulation start date (YYYY-MM-DD)")
	fs.StringVar(&c.end, "end-date", "", "simulation end date (YYYY-MM-DD, inclusive)")
	fs.IntVar(&c.farmers, "farmer-count", -1, "number of farmers to simulate")
	fs.Int64Var(&c.seed, "seed", 0, "random seed (0 = random)")
	fs.StringVar(&c.outputDir, "output-dir", "", "directory for result files")
	fs.BoolVar(&c.noStore, "no-store", false, "do not persist runs to the database")
}

// load resolves the configuration: file, then environment, then flags.
func (c *common) load() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	if c.start != "" {
		cfg.Simulation.StartDate = c.start
	}
	if c.end != "" {
		cfg.Simulation.EndDate = c.end
	}
	if c.farmers >= 0 {
		cfg.Entities.Counts.Farmers = c.farmers
	}
	if c.seed != 0 {
		cfg.Simulation.Seed = c.seed
	}
	if c.outputDir != "" {
		cfg.Output.Dir = c.outputDir
	}
	if c.noStore {
		cfg.Storage.Driver = ""
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// setup opens storage (if configured) and builds the base request.
func setup(cfg config.Config) (*runner.Runner, *persistence.DB, runner.Request, error) {
	ec, err := cfg.Engine()
	if err != nil {
		return nil, nil, runner.Request{}, err
	}
	req := runner.Request{
		Engine:     ec,
		Districts:  cfg.Entities.Districts,
		Counts:     cfg.Entities.Counts,
		SupplySeed: cfg.Entities.SupplySeed,
	}

	if cfg.Storage.Driver == "" {
		return runner.New(nil), nil, req, nil
	}
	if cfg.Storage.Driver == persistence.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0o755); err != nil {
			return nil, nil, req, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, req, err
	}
	slog.Info("database opened", "driver", cfg.Storage.Driver)
	if err := db.SaveMeta(context.Background(), "last_started", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("save meta failed", "error", err)
	}
	return runner.New(db), db, req, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("scenario", string(scenario.Baseline), "scenario to run")
	fs.Parse(args)

	kind, err := scenario.Parse(*name)
	if err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	r, db, req, err := setup(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	req.Scenario = kind
	started := time.Now()
	out, err := r.Run(ctx, req, nil)
	if err != nil {
		return err
	}

	summary := report.Summarize(string(kind), out.Config.Start, out.Config.End, len(out.Entities.Farmers), out.Results)
	report.Print(os.Stdout, "Simulation Results:", summary.Metrics)

	summaryPath, err := report.WriteSummary(cfg.Output.Dir, summary)
	if err != nil {
		return err
	}
	if _, err := report.WriteResults(cfg.Output.Dir, string(kind), out.Results); err != nil {
		return err
	}

	fmt.Printf("\n%s steps over %d regions and %s farmers in %s\n",
		humanize.Comma(int64(len(out.Results))), len(out.Entities.Regions),
		humanize.Comma(int64(len(out.Entities.Farmers))), time.Since(started).Round(time.Millisecond))
	if out.ReferenceGaps > 0 {
		fmt.Printf("%d farmers skipped: unknown region\n", out.ReferenceGaps)
	}
	fmt.Printf("Results saved to: %s\n", summaryPath)
	if out.RunID != uuid.Nil {
		fmt.Printf("Run id: %s\n", out.RunID)
	}
	return nil
}

func cmdRunAll(args []string) error {
	fs := flag.NewFlagSet("run-all", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	r, db, req, err := setup(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Println("Running all scenarios...")
	outs, err := r.RunAll(ctx, req, scenario.Kinds())
	if err != nil {
		return err
	}

	byName := make(map[string][]entity.StepResult, len(outs))
	for k, out := range outs {
		byName[string(k)] = out.Results
		if _, err := report.WriteResults(cfg.Output.Dir, string(k), out.Results); err != nil {
			return err
		}
	}
	cmp := report.Compare(byName)

	fmt.Println("\nScenario Comparison Results:")
	report.PrintComparison(os.Stdout, cmp)

	path, err := report.WriteComparison(cfg.Output.Dir, cmp)
	if err != nil {
		return err
	}
	fmt.Printf("\nComparison results saved to: %s\n", path)
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	port := fs.Int("port", 0, "HTTP port (overrides config)")
	fs.Parse(args)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.API.Port = *port
	}
	r, db, req, err := setup(cfg)
	if err != nil {
		return err
	}

	if cfg.API.AdminKey == "" {
		slog.Warn("AGRISIM_ADMIN_KEY not set, admin POST/DELETE endpoints will be disabled")
	}

	s := &api.Server{
		Runner:   r,
		Base:     req,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
		Version:  version,
	}
	if db != nil {
		defer db.Close()
		s.Store = db
	}
	srv := s.Start()
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
