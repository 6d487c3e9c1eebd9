// Package report condenses run results into headline metrics and writes
// them to disk as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/agrisim/internal/entity"
)

// Metrics are computed from the final step of a run.
type Metrics struct {
	TotalProduction float64 `json:"total_production"` // Tons, summed over regions
	AveragePrice    float64 `json:"average_price"`    // BDT per ton, mean over regions
	AverageRisk     float64 `json:"average_risk"`     // Mean of (drought+flood)/2 over regions
}

// Summary is the per-scenario record written to summary.json.
type Summary struct {
	Scenario    string `json:"scenario"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	FarmerCount int    `json:"farmer_count"`
	Metrics
}

// Final computes metrics from the last step. No steps or no regions yields zero metrics.
func Final(results []entity.StepResult) Metrics {
	if len(results) == 0 {
		return Metrics{}
	}
	last := results[len(results)-1]
	if len(last.Regions) == 0 {
		return Metrics{}
	}

	// Sum in district order so equal inputs give bit-identical metrics.
	districts := make([]string, 0, len(last.Regions))
	for d := range last.Regions {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	var m Metrics
	for _, d := range districts {
		r := last.Regions[d]
		m.TotalProduction += r.Production
		m.AveragePrice += r.MarketPrice
		m.AverageRisk += (r.ClimateImpact.DroughtRisk + r.ClimateImpact.FloodRisk) / 2
	}
	n := float64(len(last.Regions))
	m.AveragePrice /= n
	m.AverageRisk /= n
	return m
}

// Summarize builds the summary record of one run.
func Summarize(scenario string, start, end time.Time, farmers int, results []entity.StepResult) Summary {
	return Summary{
		Scenario:    scenario,
		StartDate:   start.Format(time.DateOnly),
		EndDate:     end.Format(time.DateOnly),
		FarmerCount: farmers,
		Metrics:     Final(results),
	}
}

// Compare computes final metrics for every scenario.
func Compare(byScenario map[string][]entity.StepResult) map[string]Metrics {
	out := make(map[string]Metrics, len(byScenario))
	for name, results := range byScenario {
		out[name] = Final(results)
	}
	return out
}

// ByDate re-keys results by ISO date, the layout of simulation_results.json.
func ByDate(results []entity.StepResult) map[string]map[string]entity.RegionResult {
	out := make(map[string]map[string]entity.RegionResult, len(results))
	for _, r := range results {
		out[r.Date.Format(time.DateOnly)] = r.Regions
	}
	return out
}

// WriteSummary writes <dir>/<scenario>/summary.json and returns its path.
func WriteSummary(dir string, s Summary) (string, error) {
	return writeJSON(filepath.Join(dir, s.Scenario, "summary.json"), s)
}

// WriteResults writes <dir>/<scenario>/simulation_results.json and returns its path.
func WriteResults(dir, scenario string, results []entity.StepResult) (string, error) {
	return writeJSON(filepath.Join(dir, scenario, "simulation_results.json"), ByDate(results))
}

// WriteComparison writes <dir>/scenario_comparison.json and returns its path.
func WriteComparison(dir string, cmp map[string]Metrics) (string, error) {
	return writeJSON(filepath.Join(dir, "scenario_comparison.json"), cmp)
}

func writeJSON(path string, v any) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Print renders metrics for a terminal.
func Print(w io.Writer, title string, m Metrics) {
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "Total Production: %s tons\n", humanize.CommafWithDigits(m.TotalProduction, 2))
	fmt.Fprintf(w, "Average Price: %s BDT/ton\n", humanize.CommafWithDigits(m.AveragePrice, 2))
	fmt.Fprintf(w, "Average Risk: %.2f%%\n", m.AverageRisk*100)
}

// PrintComparison renders every scenario in name order.
func PrintComparison(w io.Writer, cmp map[string]Metrics) {
	names := make([]string, 0, len(cmp))
	for name := range cmp {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		Print(w, fmt.Sprintf("%s SCENARIO:", name), cmp[name])
	}
}
