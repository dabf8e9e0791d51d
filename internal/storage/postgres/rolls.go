package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dicetray/internal/game/dice"
	"github.com/cory-johannsen/dicetray/internal/game/roll"
	"github.com/cory-johannsen/dicetray/internal/game/tray"
)

// ErrRollNotFound is returned when a roll lookup yields no results.
var ErrRollNotFound = errors.New("roll not found")

// RollRepository persists roll records and their physical dice snapshots.
type RollRepository struct {
	db *pgxpool.Pool
}

// NewRollRepository creates a RollRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRollRepository(db *pgxpool.Pool) *RollRepository {
	return &RollRepository{db: db}
}

// SaveSnapshot upserts a roll and replaces its per-die physical state in one
// transaction, so a stored snapshot is never half of a roll.
//
// Precondition: snap.Record must be non-nil.
func (r *RollRepository) SaveSnapshot(ctx context.Context, snap tray.Snapshot) error {
	rec := snap.Record

	groups, err := json.Marshal(rec.Groups)
	if err != nil {
		return fmt.Errorf("encoding roll groups: %w", err)
	}
	groupResults, err := json.Marshal(rec.GroupResults)
	if err != nil {
		return fmt.Errorf("encoding group results: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO rolls (id, formula, template, groups, group_results, result, breakdown, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			group_results = EXCLUDED.group_results,
			result        = EXCLUDED.result,
			breakdown     = EXCLUDED.breakdown`,
		rec.ID, rec.Formula, rec.Template, groups, groupResults,
		rec.Result, rec.Breakdown, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting roll %d: %w", rec.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM roll_dice WHERE roll_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("clearing dice for roll %d: %w", rec.ID, err)
	}

	for i, d := range snap.Dice {
		_, err := tx.Exec(ctx, `
			INSERT INTO roll_dice
				(roll_id, die_index, sides, part, group_index, logical_index,
				 face, settled, position, orientation, velocity, angular_velocity)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			rec.ID, i, d.Type.Sides(), d.Part.String(), d.GroupIndex, d.LogicalIndex,
			d.Face, d.Settled,
			d.Kinematics.Position[:], d.Kinematics.Orientation[:],
			d.Kinematics.Velocity[:], d.Kinematics.AngularVelocity[:],
		)
		if err != nil {
			return fmt.Errorf("inserting die %d of roll %d: %w", i, rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot for roll %d: %w", rec.ID, err)
	}
	return nil
}

// GetRoll retrieves a roll record by id.
//
// Postcondition: Returns the Record or ErrRollNotFound.
func (r *RollRepository) GetRoll(ctx context.Context, id int64) (*roll.Record, error) {
	rec, err := scanRoll(r.db.QueryRow(ctx, `
		SELECT id, formula, template, groups, group_results, result, breakdown, created_at
		FROM rolls WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRollNotFound
		}
		return nil, fmt.Errorf("querying roll %d: %w", id, err)
	}
	return rec, nil
}

// LoadSnapshot retrieves a roll and its per-die physical state, suitable for
// resuming the tray after a restart.
//
// Postcondition: Returns the Snapshot or ErrRollNotFound.
func (r *RollRepository) LoadSnapshot(ctx context.Context, id int64) (tray.Snapshot, error) {
	rec, err := r.GetRoll(ctx, id)
	if err != nil {
		return tray.Snapshot{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT sides, part, group_index, logical_index, face, settled,
		       position, orientation, velocity, angular_velocity
		FROM roll_dice WHERE roll_id = $1 ORDER BY die_index ASC`,
		id,
	)
	if err != nil {
		return tray.Snapshot{}, fmt.Errorf("querying dice for roll %d: %w", id, err)
	}
	defer rows.Close()

	snap := tray.Snapshot{Record: rec}
	for rows.Next() {
		var (
			sides   int
			part    string
			ds      tray.DieSnapshot
			pos     []float64
			orient  []float64
			vel     []float64
			angular []float64
		)
		if err := rows.Scan(
			&sides, &part, &ds.GroupIndex, &ds.LogicalIndex, &ds.Face, &ds.Settled,
			&pos, &orient, &vel, &angular,
		); err != nil {
			return tray.Snapshot{}, fmt.Errorf("scanning die row: %w", err)
		}

		t, ok := dice.ParseSides(sides)
		if !ok {
			return tray.Snapshot{}, fmt.Errorf("stored die has unsupported sides %d", sides)
		}
		ds.Type = t
		ds.Part, err = parseDiePart(part)
		if err != nil {
			return tray.Snapshot{}, err
		}
		copy(ds.Kinematics.Position[:], pos)
		copy(ds.Kinematics.Orientation[:], orient)
		copy(ds.Kinematics.Velocity[:], vel)
		copy(ds.Kinematics.AngularVelocity[:], angular)
		ds.Kinematics.Settled = ds.Settled

		snap.Dice = append(snap.Dice, ds)
	}
	return snap, rows.Err()
}

// ListRecent returns the most recently created rolls, newest first.
//
// Precondition: limit must be > 0.
func (r *RollRepository) ListRecent(ctx context.Context, limit int) ([]*roll.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, formula, template, groups, group_results, result, breakdown, created_at
		FROM rolls ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing rolls: %w", err)
	}
	defer rows.Close()

	recs := make([]*roll.Record, 0)
	for rows.Next() {
		rec, err := scanRoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning roll row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRoll removes a roll and, via cascade, its dice.
//
// Postcondition: Returns ErrRollNotFound when nothing was deleted.
func (r *RollRepository) DeleteRoll(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rolls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting roll %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRollNotFound
	}
	return nil
}

// MaxRollID returns the highest stored roll id, or 0 when no rolls exist.
// Used to seed the id sequence above anything already persisted.
func (r *RollRepository) MaxRollID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM rolls`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max roll id: %w", err)
	}
	return max, nil
}

// scanRoll reads one roll row.
func scanRoll(row pgx.Row) (*roll.Record, error) {
	var (
		rec          roll.Record
		groups       []byte
		groupResults []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.Formula, &rec.Template, &groups, &groupResults,
		&rec.Result, &rec.Breakdown, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &rec.Groups); err != nil {
		return nil, fmt.Errorf("decoding roll groups: %w", err)
	}
	if len(groupResults) > 0 {
		if err := json.Unmarshal(groupResults, &rec.GroupResults); err != nil {
			return nil, fmt.Errorf("decoding group results: %w", err)
		}
	}
	return &rec, nil
}

func parseDiePart(s string) (dice.Part, error) {
	switch s {
	case "whole":
		return dice.PartWhole, nil
	case "tens":
		return dice.PartTens, nil
	case "units":
		return dice.PartUnits, nil
	default:
		return dice.PartWhole, fmt.Errorf("stored die has unknown part %q", s)
	}
}
