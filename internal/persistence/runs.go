package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/talgya/agrisim/internal/entity"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one stored simulation run. Results are loaded separately.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	Scenario   string          `json:"scenario"`
	Start      time.Time       `json:"start_date"`
	End        time.Time       `json:"end_date"`
	Parameters json.RawMessage `json:"parameters"`
	Status     RunStatus       `json:"status"`
	Steps      int             `json:"steps"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type runRow struct {
	ID         string `db:"id"`
	Scenario   string `db:"scenario"`
	StartDate  string `db:"start_date"`
	EndDate    string `db:"end_date"`
	Parameters string `db:"parameters"`
	Status     string `db:"status"`
	Steps      int    `db:"steps"`
	Error      string `db:"error"`
	CreatedAt  string `db:"created_at"`
}

// createdLayout is fixed-width so created_at sorts lexically.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = "id, scenario, start_date, end_date, parameters, status, steps, error, created_at"

func (r runRow) run() (Run, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Run{}, fmt.Errorf("run id %q: %w", r.ID, err)
	}
	start, err := time.Parse(time.DateOnly, r.StartDate)
	if err != nil {
		return Run{}, fmt.Errorf("run %s start_date: %w", r.ID, err)
	}
	end, err := time.Parse(time.DateOnly, r.EndDate)
	if err != nil {
		return Run{}, fmt.Errorf("run %s end_date: %w", r.ID, err)
	}
	created, err := time.Parse(createdLayout, r.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s created_at: %w", r.ID, err)
	}
	return Run{
		ID:         id,
		Scenario:   r.Scenario,
		Start:      start,
		End:        end,
		Parameters: json.RawMessage(r.Parameters),
		Status:     RunStatus(r.Status),
		Steps:      r.Steps,
		Error:      r.Error,
		CreatedAt:  created,
	}, nil
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// CreateRun stores a new pending run. params is any JSON-encodable value
// describing how the run was configured.
func (db *DB) CreateRun(ctx context.Context, scenario string, start, end time.Time, params any) (Run, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Run{}, fmt.Errorf("marshal parameters: %w", err)
	}
	run := Run{
		ID:         uuid.New(),
		Scenario:   scenario,
		Start:      start,
		End:        end,
		Parameters: raw,
		Status:     RunPending,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID.String(), run.Scenario,
		run.Start.Format(time.DateOnly), run.End.Format(time.DateOnly),
		string(raw), string(run.Status), 0, "",
		run.CreatedAt.Format(createdLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun loads a run without its results.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var row runRow
	err := db.conn.GetContext(ctx, &row, db.conn.Rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return row.run()
}

// ListRuns returns stored runs, newest first. limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []runRow
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// SetRunStatus updates a run's status and error message.
func (db *DB) SetRunStatus(ctx context.Context, id uuid.UUID, status RunStatus, msg string) error {
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		"UPDATE runs SET status = ?, error = ? WHERE id = ?"),
		string(status), msg, id.String(),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return mustAffect(res, "run", id.String())
}

// UpdateRunResults stores a run's step results compressed and marks it completed.
func (db *DB) UpdateRunResults(ctx context.Context, id uuid.UUID, results []entity.StepResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	blob := encoder.EncodeAll(raw, nil)

	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		"UPDATE runs SET results = ?, steps = ?, status = ?, error = '' WHERE id = ?"),
		blob, len(results), string(RunCompleted), id.String(),
	)
	if err != nil {
		return fmt.Errorf("save results for run %s: %w", id, err)
	}
	if err := mustAffect(res, "run", id.String()); err != nil {
		return err
	}

	slog.Info("run results saved", "run", id, "steps", len(results), "bytes", len(blob), "raw_bytes", len(raw))
	return nil
}

// LoadRunResults returns a run's step results. A run with no stored results
// yields an empty slice.
func (db *DB) LoadRunResults(ctx context.Context, id uuid.UUID) ([]entity.StepResult, error) {
	var blob []byte
	err := db.conn.GetContext(ctx, &blob, db.conn.Rebind("SELECT results FROM runs WHERE id = ?"), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load results for run %s: %w", id, err)
	}
	if len(blob) == 0 {
		return []entity.StepResult{}, nil
	}

	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress results for run %s: %w", id, err)
	}
	var results []entity.StepResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode results for run %s: %w", id, err)
	}
	return results, nil
}

// DeleteRun removes a run and all its entities.
func (db *DB) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM entities WHERE run_id = ?"), id.String()); err != nil {
		return fmt.Errorf("delete entities of run %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM runs WHERE id = ?"), id.String())
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if err := mustAffect(res, "run", id.String()); err != nil {
		return err
	}

	return tx.Commit()
}

func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
