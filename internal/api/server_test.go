package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agrisim/internal/engine"
	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/persistence"
	"github.com/talgya/agrisim/internal/report"
	"github.com/talgya/agrisim/internal/runner"
	"github.com/talgya/agrisim/internal/supply"
)

const testKey = "test-admin-key"

func newTestServer(t *testing.T, withStore bool) *httptest.Server {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.End = cfg.Start.AddDate(0, 0, 4)
	cfg.Seed = 11

	s := &Server{
		Base: runner.Request{
			Engine:    cfg,
			Districts: []string{"Dhaka", "Khulna"},
			Counts:    supply.Counts{Farmers: 20, InfrastructurePerDistrict: 1, Policies: 2},
		},
		AdminKey: testKey,
		Version:  "test",
	}
	if withStore {
		db, err := persistence.Open(persistence.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s.Store = db
		s.Runner = runner.New(db)
	} else {
		s.Runner = runner.New(nil)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, auth bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPublicCatalogEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]any](t, resp)
	assert.Equal(t, "agrisim", status["name"])
	assert.Equal(t, false, status["storage"])

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/scenarios", "", false)
	scenarios := decode[[]map[string]string](t, resp)
	require.Len(t, scenarios, 3)
	assert.Equal(t, "baseline", scenarios[0]["name"])

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/regions", "", false)
	regions := decode[map[string][]string](t, resp)
	assert.Equal(t, []string{"Dhaka", "Khulna"}, regions["districts"])

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/crops", "", false)
	crops := decode[struct {
		Crops      []string           `json:"crops"`
		BaseYields map[string]float64 `json:"base_yields"`
	}](t, resp)
	assert.Contains(t, crops.Crops, "Rice")
	assert.Equal(t, 4.0, crops.BaseYields["Rice"])
	assert.Len(t, crops.BaseYields, len(crops.Crops))

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/policies", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	policies := decode[map[string][]string](t, resp)
	assert.Equal(t, entity.TargetSectors, policies["policy_types"])
}

func TestSimulateRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, false)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/simulate", `{}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/simulate", "", false)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSimulateValidatesInput(t *testing.T) {
	ts := newTestServer(t, false)

	cases := []string{
		`{"scenario": "apocalypse"}`,
		`{"start_date": "2024-02-01", "end_date": "2024-01-01"}`,
		`{"start_date": "Jan 1"}`,
		`{"farmers": -1}`,
		`{"start_date": "2000-01-01", "end_date": "2024-01-01"}`,
		`{"districts": ["Atlantis"]}`,
		`{"districts": ["Dhaka", "Dhaka"]}`,
		`not json`,
	}
	for _, body := range cases {
		resp := do(t, http.MethodPost, ts.URL+"/api/v1/simulate", body, true)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestSimulateWithoutStore(t *testing.T) {
	ts := newTestServer(t, false)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/simulate?include_results=true", `{"scenario": "climate_change"}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Scenario string              `json:"scenario"`
		Steps    int                 `json:"steps"`
		RunID    string              `json:"run_id"`
		Results  []entity.StepResult `json:"results"`
		Summary  map[string]any      `json:"summary"`
	}](t, resp)
	assert.Equal(t, "climate_change", body.Scenario)
	assert.Equal(t, 5, body.Steps)
	assert.Empty(t, body.RunID)
	assert.Len(t, body.Results, 5)
	assert.Equal(t, float64(20), body.Summary["farmer_count"])

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/simulations", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStoredSimulationLifecycle(t *testing.T) {
	ts := newTestServer(t, true)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/simulate", `{"scenario": "technology_adoption", "farmers": 10}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	id, ok := created["run_id"].(string)
	require.True(t, ok)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/simulations", "", false)
	runs := decode[[]persistence.Run](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID.String())
	assert.Equal(t, persistence.RunCompleted, runs[0].Status)

	base := ts.URL + "/api/v1/simulations/" + id
	resp = do(t, http.MethodGet, base, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/results", "", false)
	results := decode[[]entity.StepResult](t, resp)
	require.Len(t, results, 5)
	assert.Len(t, results[0].Regions, 2)

	resp = do(t, http.MethodGet, base+"/results?region=Khulna", "", false)
	results = decode[[]entity.StepResult](t, resp)
	require.Len(t, results, 5)
	assert.Len(t, results[0].Regions, 1)
	assert.Contains(t, results[0].Regions, "Khulna")

	resp = do(t, http.MethodGet, base+"/farmers", "", false)
	farmers := decode[[]entity.FarmerProfile](t, resp)
	assert.Len(t, farmers, 10)

	resp = do(t, http.MethodGet, base+"/policies", "", false)
	policies := decode[[]entity.Policy](t, resp)
	require.Len(t, policies, 2)
	assert.Equal(t, entity.SectorTechnologyAdoption, policies[0].TargetSector)

	resp = do(t, http.MethodGet, base+"/regions", "", false)
	assert.Len(t, decode[[]entity.Location](t, resp), 2)

	resp = do(t, http.MethodGet, base+"/infrastructure", "", false)
	assert.Len(t, decode[[]entity.Infrastructure](t, resp), 2)

	resp = do(t, http.MethodGet, base+"/weather", "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, base, "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, http.MethodDelete, base, "", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base, "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodGet, base+"/farmers", "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSimulationIDMustBeUUID(t *testing.T) {
	ts := newTestServer(t, true)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/simulations/42", "", false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// readStream dials the stream endpoint and reads frames until the summary.
func readStream(t *testing.T, ts *httptest.Server, query string) ([]entity.StepResult, *report.Summary) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var steps []entity.StepResult
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "summary" {
			require.NotNil(t, msg.Summary)
			return steps, msg.Summary
		}
		require.Equal(t, "step", msg.Type, msg.Error)
		require.NotNil(t, msg.Step)
		steps = append(steps, *msg.Step)
	}
}

func TestStreamPushesEveryStep(t *testing.T) {
	ts := newTestServer(t, false)

	steps, summary := readStream(t, ts, "scenario=baseline&seed=5")
	assert.Equal(t, "baseline", summary.Scenario)
	require.Len(t, steps, 5)
	for _, step := range steps {
		assert.Len(t, step.Regions, 2)
	}
}

func TestStreamWithoutAuthStoresNothing(t *testing.T) {
	ts := newTestServer(t, true)

	steps, _ := readStream(t, ts, "scenario=climate_change&seed=9")
	assert.Len(t, steps, 5)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/simulations", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]persistence.Run](t, resp))
}

func TestStreamRejectsBadParams(t *testing.T) {
	ts := newTestServer(t, false)
	for _, query := range []string{"seed=abc", "districts=Atlantis", "districts=Dhaka,Dhaka"} {
		resp := do(t, http.MethodGet, ts.URL+"/api/v1/stream?"+query, "", false)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 61, rl.RetryAfter("10.0.0.1"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
