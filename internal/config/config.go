// Package config loads the agrisim YAML configuration and applies
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/agrisim/internal/climate"
	"github.com/talgya/agrisim/internal/crop"
	"github.com/talgya/agrisim/internal/economy"
	"github.com/talgya/agrisim/internal/engine"
	"github.com/talgya/agrisim/internal/supply"
)

// Config is the on-disk configuration.
type Config struct {
	Simulation Simulation     `yaml:"simulation"`
	Entities   Entities       `yaml:"entities"`
	Climate    climate.Params `yaml:"climate"`
	Yield      crop.Params    `yaml:"yield"`
	Market     economy.Params `yaml:"market"`
	Storage    Storage        `yaml:"storage"`
	Output     Output         `yaml:"output"`
	API        API            `yaml:"api"`
	Log        Log            `yaml:"log"`
}

type Simulation struct {
	StartDate    string `yaml:"start_date"` // YYYY-MM-DD
	EndDate      string `yaml:"end_date"`   // YYYY-MM-DD, inclusive
	TimeStepDays int    `yaml:"time_step_days"`
	Seed         int64  `yaml:"seed"` // 0 = random
}

type Entities struct {
	Districts  []string      `yaml:"districts"`
	Counts     supply.Counts `yaml:",inline"`
	SupplySeed int64         `yaml:"supply_seed"` // 0 = use the simulation seed
}

type Storage struct {
	Driver string `yaml:"driver"` // sqlite | postgres; empty disables persistence
	DSN    string `yaml:"dsn"`
}

type Output struct {
	Dir string `yaml:"dir"`
}

type API struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Simulation: Simulation{
			StartDate:    "2024-01-01",
			EndDate:      "2024-12-31",
			TimeStepDays: 1,
		},
		Entities: Entities{
			Districts: append([]string(nil), supply.Districts...),
			Counts:    supply.DefaultCounts(),
		},
		Climate: climate.DefaultParams(),
		Yield:   crop.DefaultParams(),
		Market:  economy.DefaultParams(),
		Storage: Storage{Driver: "sqlite", DSN: "data/agrisim.db"},
		Output:  Output{Dir: "results"},
		API:     API{Port: 8080},
		Log:     Log{Level: "info"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Driver = envOrDefault("AGRISIM_DB_DRIVER", c.Storage.Driver)
	c.Storage.DSN = envOrDefault("AGRISIM_DB_DSN", c.Storage.DSN)
	c.API.AdminKey = envOrDefault("AGRISIM_ADMIN_KEY", c.API.AdminKey)
	c.API.Port = envIntOrDefault("AGRISIM_PORT", c.API.Port)
	c.Log.Level = envOrDefault("AGRISIM_LOG_LEVEL", c.Log.Level)
	c.Output.Dir = envOrDefault("AGRISIM_OUTPUT_DIR", c.Output.Dir)
}

// Validate rejects configurations that cannot drive a run.
func (c Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	if err := supply.CheckDistricts(c.Entities.Districts); err != nil {
		return fmt.Errorf("entities.districts: %w", err)
	}
	if c.Entities.Counts.Farmers < 0 || c.Entities.Counts.InfrastructurePerDistrict < 0 || c.Entities.Counts.Policies < 0 {
		return fmt.Errorf("entities: counts must be >= 0")
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port: %d out of range", c.API.Port)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Engine converts the simulation section into an engine configuration.
func (c Config) Engine() (engine.Config, error) {
	start, err := time.Parse(time.DateOnly, c.Simulation.StartDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("simulation.start_date: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.Simulation.EndDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("simulation.end_date: %w", err)
	}
	ec := engine.Config{
		Start:   start,
		End:     end,
		Step:    time.Duration(c.Simulation.TimeStepDays) * engine.Day,
		Seed:    c.Simulation.Seed,
		Climate: c.Climate,
		Yield:   c.Yield,
		Market:  c.Market,
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// ParseLevel maps a config level name onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
