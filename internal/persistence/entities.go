package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talgya/agrisim/internal/entity"
)

// Entity kinds stored per run.
const (
	KindRegion         = "region"
	KindFarmer         = "farmer"
	KindPolicy         = "policy"
	KindInfrastructure = "infrastructure"
)

// Kinds lists every entity kind.
var Kinds = []string{KindRegion, KindFarmer, KindPolicy, KindInfrastructure}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// upsertEntity keeps the original position when an entity is replaced.
func upsertEntity(ctx context.Context, ex execer, runID uuid.UUID, kind, id string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	_, err = ex.ExecContext(ctx, ex.Rebind(
		`INSERT INTO entities (run_id, kind, entity_id, position, body)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM entities WHERE run_id = ? AND kind = ?), ?)
		 ON CONFLICT (run_id, kind, entity_id) DO UPDATE SET body = excluded.body`),
		runID.String(), kind, id, runID.String(), kind, string(body),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", kind, id, err)
	}
	return nil
}

// PutEntity stores or replaces one entity of a run.
func (db *DB) PutEntity(ctx context.Context, runID uuid.UUID, kind, id string, v any) error {
	return upsertEntity(ctx, db.conn, runID, kind, id, v)
}

// GetEntity decodes one entity into out.
func (db *DB) GetEntity(ctx context.Context, runID uuid.UUID, kind, id string, out any) error {
	var body string
	err := db.conn.GetContext(ctx, &body, db.conn.Rebind(
		"SELECT body FROM entities WHERE run_id = ? AND kind = ? AND entity_id = ?"),
		runID.String(), kind, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return json.Unmarshal([]byte(body), out)
}

// ListEntities returns the raw JSON bodies of one kind in insertion order.
func (db *DB) ListEntities(ctx context.Context, runID uuid.UUID, kind string) ([]json.RawMessage, error) {
	var bodies []string
	err := db.conn.SelectContext(ctx, &bodies, db.conn.Rebind(
		"SELECT body FROM entities WHERE run_id = ? AND kind = ? ORDER BY position"),
		runID.String(), kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]json.RawMessage, len(bodies))
	for i, b := range bodies {
		out[i] = json.RawMessage(b)
	}
	return out, nil
}

// DeleteEntity removes one entity.
func (db *DB) DeleteEntity(ctx context.Context, runID uuid.UUID, kind, id string) error {
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		"DELETE FROM entities WHERE run_id = ? AND kind = ? AND entity_id = ?"),
		runID.String(), kind, id,
	)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return mustAffect(res, kind, id)
}

// SaveEntitySet stores every entity of a run in one transaction.
func (db *DB) SaveEntitySet(ctx context.Context, runID uuid.UUID, set entity.Set) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveSet(ctx, tx, runID, set); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("entities saved", "run", runID,
		"regions", len(set.Regions),
		"farmers", len(set.Farmers),
		"policies", len(set.Policies),
		"infrastructure", len(set.Infrastructure),
	)
	return nil
}

func saveSet(ctx context.Context, tx *sqlx.Tx, runID uuid.UUID, set entity.Set) error {
	for _, r := range set.Regions {
		if err := upsertEntity(ctx, tx, runID, KindRegion, r.District, r); err != nil {
			return err
		}
	}
	for _, f := range set.Farmers {
		if err := upsertEntity(ctx, tx, runID, KindFarmer, f.FarmerID, f); err != nil {
			return err
		}
	}
	for _, p := range set.Policies {
		if err := upsertEntity(ctx, tx, runID, KindPolicy, p.PolicyID, p); err != nil {
			return err
		}
	}
	for _, i := range set.Infrastructure {
		if err := upsertEntity(ctx, tx, runID, KindInfrastructure, i.InfrastructureID, i); err != nil {
			return err
		}
	}
	return nil
}

// LoadEntitySet reads back every entity of a run in insertion order.
func (db *DB) LoadEntitySet(ctx context.Context, runID uuid.UUID) (entity.Set, error) {
	var set entity.Set
	if err := loadKind(ctx, db, runID, KindRegion, &set.Regions); err != nil {
		return set, err
	}
	if err := loadKind(ctx, db, runID, KindFarmer, &set.Farmers); err != nil {
		return set, err
	}
	if err := loadKind(ctx, db, runID, KindPolicy, &set.Policies); err != nil {
		return set, err
	}
	if err := loadKind(ctx, db, runID, KindInfrastructure, &set.Infrastructure); err != nil {
		return set, err
	}
	return set, nil
}

func loadKind[T any](ctx context.Context, db *DB, runID uuid.UUID, kind string, out *[]T) error {
	bodies, err := db.ListEntities(ctx, runID, kind)
	if err != nil {
		return err
	}
	items := make([]T, 0, len(bodies))
	for _, b := range bodies {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("decode %s: %w", kind, err)
		}
		items = append(items, v)
	}
	*out = items
	return nil
}
