package store

import (
	"context"
	"database/sql"
	"fmt"
)

type Stage struct {
	ID        int64  `json:"id"`
	UserID    *int64 `json:"userId,omitempty"` // nil means system-wide
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sortOrder"`
	IsSystem  bool   `json:"isSystem"`
	IsDefault bool   `json:"isDefault"`
}

// SeedSystemStages inserts the default board once. Exactly one system stage
// carries is_default.
func SeedSystemStages(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stages WHERE is_system = 1;`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	seed := []struct {
		name, color string
		order       int
		def         bool
	}{
		{"Inbox", "#64748b", 1, true},
		{"Applied", "#3b82f6", 2, false},
		{"Interview", "#f59e0b", 3, false},
		{"Offer", "#22c55e", 4, false},
		{"Rejected", "#ef4444", 5, false},
	}
	for _, s := range seed {
		if _, err := db.ExecContext(ctx, `
INSERT INTO stages (user_id, name, color, sort_order, is_system, is_default)
VALUES (NULL, ?, ?, ?, 1, ?);`,
			s.name, s.color, s.order, boolInt(s.def)); err != nil {
			return fmt.Errorf("seed stages: %w", err)
		}
	}
	return nil
}

// ListStagesForUser returns system stages unioned with the user's custom
// stages, sort order ascending, ties broken by id for determinism.
func ListStagesForUser(ctx context.Context, db *sql.DB, userID int64) ([]Stage, error) {
	rows, err := db.QueryContext(ctx, `
SELECT id, user_id, name, color, sort_order, is_system, is_default
FROM stages
WHERE user_id IS NULL OR user_id = ?
ORDER BY sort_order ASC, id ASC;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DefaultStage returns the single system stage flagged as default; it seeds
// new tracking records.
func DefaultStage(ctx context.Context, db *sql.DB) (Stage, error) {
	row := db.QueryRowContext(ctx, `
SELECT id, user_id, name, color, sort_order, is_system, is_default
FROM stages
WHERE is_system = 1 AND is_default = 1
LIMIT 1;`)
	s, err := scanStageRow(row)
	if err == sql.ErrNoRows {
		return Stage{}, ErrNotFound
	}
	return s, err
}

func GetStage(ctx context.Context, db *sql.DB, id int64) (Stage, error) {
	row := db.QueryRowContext(ctx, `
SELECT id, user_id, name, color, sort_order, is_system, is_default
FROM stages WHERE id = ?;`, id)
	s, err := scanStageRow(row)
	if err == sql.ErrNoRows {
		return Stage{}, ErrNotFound
	}
	return s, err
}

// CreateStage adds a custom stage for a user, appended after the user's
// current board.
func CreateStage(ctx context.Context, db *sql.DB, userID int64, name, color string) (Stage, error) {
	var maxOrder sql.NullInt64
	if err := db.QueryRowContext(ctx, `
SELECT MAX(sort_order) FROM stages WHERE user_id IS NULL OR user_id = ?;`, userID).Scan(&maxOrder); err != nil {
		return Stage{}, err
	}
	order := int(maxOrder.Int64) + 1

	res, err := db.ExecContext(ctx, `
INSERT INTO stages (user_id, name, color, sort_order, is_system, is_default)
VALUES (?, ?, ?, ?, 0, 0);`, userID, name, color, order)
	if err != nil {
		return Stage{}, fmt.Errorf("create stage: %w", err)
	}
	id, _ := res.LastInsertId()
	return Stage{ID: id, UserID: &userID, Name: name, Color: color, SortOrder: order}, nil
}

type StageOrder struct {
	StageID   int64 `json:"stageId"`
	SortOrder int   `json:"sortOrder"`
}

// ReorderStages applies every assignment in one transaction: all or nothing.
// Assignments run in request order, so the last assignment for a stage id
// wins. An assignment that does not hit exactly one row visible to the user
// fails the whole transaction with ErrReorderFailed.
func ReorderStages(ctx context.Context, db *sql.DB, userID int64, orders []StageOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range orders {
		res, err := tx.ExecContext(ctx, `
UPDATE stages SET sort_order = ?
WHERE id = ? AND (user_id IS NULL OR user_id = ?);`,
			o.SortOrder, o.StageID, userID)
		if err != nil {
			return fmt.Errorf("%w: stage %d: %v", ErrReorderFailed, o.StageID, err)
		}
		n, _ := res.RowsAffected()
		if n != 1 {
			return fmt.Errorf("%w: stage %d not visible", ErrReorderFailed, o.StageID)
		}
	}

	return tx.Commit()
}

// DeleteStage removes a user's custom stage. System stages and stages still
// referenced by tracking records are protected.
func DeleteStage(ctx context.Context, db *sql.DB, userID, stageID int64) error {
	s, err := GetStage(ctx, db, stageID)
	if err != nil {
		return err
	}
	if s.IsSystem || s.UserID == nil || *s.UserID != userID {
		return ErrStageNotVisible
	}

	var refs int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_jobs WHERE stage_id = ?;`, stageID).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrStageInUse
	}

	_, err = db.ExecContext(ctx, `DELETE FROM stages WHERE id = ?;`, stageID)
	return err
}

type stageScanner interface {
	Scan(dest ...any) error
}

func scanStage(r stageScanner) (Stage, error) {
	var s Stage
	var userID sql.NullInt64
	var system, def int
	if err := r.Scan(&s.ID, &userID, &s.Name, &s.Color, &s.SortOrder, &system, &def); err != nil {
		return Stage{}, err
	}
	if userID.Valid {
		s.UserID = &userID.Int64
	}
	s.IsSystem = system != 0
	s.IsDefault = def != 0
	return s, nil
}

func scanStageRow(row *sql.Row) (Stage, error) {
	return scanStage(row)
}
