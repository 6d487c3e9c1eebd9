package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agrisim/internal/entity"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func twoSteps() []entity.StepResult {
	return []entity.StepResult{
		{Date: day(1), Regions: map[string]entity.RegionResult{
			"Dhaka": {Production: 100, MarketPrice: 1},
		}},
		{Date: day(2), Regions: map[string]entity.RegionResult{
			"Dhaka":  {Production: 8, MarketPrice: 1000, ClimateImpact: entity.ClimateImpact{DroughtRisk: 0.2, FloodRisk: 0.4}},
			"Khulna": {Production: 2, MarketPrice: 3000, ClimateImpact: entity.ClimateImpact{DroughtRisk: 0.0, FloodRisk: 0.2}},
		}},
	}
}

func TestFinalUsesLastStep(t *testing.T) {
	m := Final(twoSteps())
	assert.Equal(t, 10.0, m.TotalProduction)
	assert.Equal(t, 2000.0, m.AveragePrice)
	assert.InDelta(t, 0.2, m.AverageRisk, 1e-12)
}

func TestFinalSumsInDistrictOrder(t *testing.T) {
	// Magnitudes chosen so any other summation order gives a different float.
	steps := []entity.StepResult{{Date: day(1), Regions: map[string]entity.RegionResult{
		"Barishal": {Production: 1e16},
		"Comilla":  {Production: 1},
		"Dhaka":    {Production: -1e16},
		"Khulna":   {Production: 1},
	}}}
	for i := 0; i < 200; i++ {
		require.Equal(t, 1.0, Final(steps).TotalProduction)
	}
}

func TestFinalOfNothing(t *testing.T) {
	assert.Equal(t, Metrics{}, Final(nil))
	assert.Equal(t, Metrics{}, Final([]entity.StepResult{{Date: day(1)}}))
}

func TestCompare(t *testing.T) {
	cmp := Compare(map[string][]entity.StepResult{
		"baseline":       twoSteps(),
		"climate_change": twoSteps()[:1],
	})
	assert.Equal(t, 10.0, cmp["baseline"].TotalProduction)
	assert.Equal(t, 100.0, cmp["climate_change"].TotalProduction)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()

	s := Summarize("baseline", day(1), day(2), 1000, twoSteps())
	path, err := WriteSummary(dir, s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "baseline", "summary.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "baseline", decoded["scenario"])
	assert.Equal(t, "2024-01-01", decoded["start_date"])
	assert.Equal(t, 10.0, decoded["total_production"], "metrics are flattened into the summary")

	path, err = WriteResults(dir, "baseline", twoSteps())
	require.NoError(t, err)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	var byDate map[string]map[string]entity.RegionResult
	require.NoError(t, json.Unmarshal(raw, &byDate))
	assert.Contains(t, byDate, "2024-01-02")
	assert.Equal(t, 2.0, byDate["2024-01-02"]["Khulna"].Production)

	path, err = WriteComparison(dir, Compare(map[string][]entity.StepResult{"baseline": twoSteps()}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scenario_comparison.json"), path)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	PrintComparison(&buf, map[string]Metrics{
		"technology_adoption": {TotalProduction: 12345.678, AveragePrice: 990.99, AverageRisk: 0.25},
		"baseline":            {TotalProduction: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "12,345.")
	assert.Contains(t, out, "25.00%")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("baseline")), bytes.Index(buf.Bytes(), []byte("technology_adoption")))
}
