package engine

import (
	"time"

	"github.com/talgya/agrisim/internal/climate"
	"github.com/talgya/agrisim/internal/crop"
	"github.com/talgya/agrisim/internal/economy"
	"github.com/talgya/agrisim/internal/entity"
)

// Day is the conventional step length.
const Day = 24 * time.Hour

// Config holds everything one run needs beyond its entities.
// Each engine gets its own copy; nothing here is process-wide.
type Config struct {
	Start time.Time     // First simulated date
	End   time.Time     // Last simulated date (inclusive)
	Step  time.Duration // Cursor advance per step
	Seed  int64         // 0 = random

	Climate climate.Params
	Yield   crop.Params
	Market  economy.Params
}

// DefaultConfig returns the calendar-year 2024 daily configuration.
func DefaultConfig() Config {
	return Config{
		Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Step:    Day,
		Climate: climate.DefaultParams(),
		Yield:   crop.DefaultParams(),
		Market:  economy.DefaultParams(),
	}
}

// Validate rejects configurations that cannot produce a run.
func (c Config) Validate() error {
	switch {
	case c.Start.IsZero():
		return configErr("start_date", c.Start, "must be set")
	case c.End.Before(c.Start):
		return configErr("end_date", c.End.Format(time.DateOnly), "must not precede start_date "+c.Start.Format(time.DateOnly))
	case c.Step <= 0:
		return configErr("time_step", c.Step, "must be positive")
	case c.Yield.BaseYield < 0:
		return configErr("base_yield", c.Yield.BaseYield, "must be >= 0")
	case c.Market.BasePrice <= 0:
		return configErr("base_price", c.Market.BasePrice, "must be positive")
	case c.Market.DemandFactor <= 0:
		return configErr("demand_factor", c.Market.DemandFactor, "must be positive")
	case c.Climate.TempChangeStd < 0 || c.Climate.RainChangeStd < 0:
		return configErr("climate_std", c.Climate, "standard deviations must be >= 0")
	}
	return nil
}

// Steps returns how many steps a full run executes.
func (c Config) Steps() int {
	if c.Step <= 0 || c.End.Before(c.Start) {
		return 0
	}
	return int(c.End.Sub(c.Start)/c.Step) + 1
}

func configErr(field string, value any, reason string) error {
	return &entity.ConfigError{Kind: "engine", Field: field, Value: value, Reason: reason}
}
