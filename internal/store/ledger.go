package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ProcessedEmail is the per-message ledger row that keeps the pipeline from
// reprocessing a source message across runs.
type ProcessedEmail struct {
	ID             int64  `json:"id"`
	MessageID      string `json:"messageId"`
	Sender         string `json:"sender"`
	CandidateCount int    `json:"candidateCount"`
	Deleted        bool   `json:"deleted"`
	ProcessedAt    string `json:"processedAt"`
}

func HasProcessed(ctx context.Context, db *sql.DB, messageID string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_emails WHERE message_id = ? LIMIT 1;`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordProcessed creates the ledger row. A second record for the same
// message id returns ErrDuplicateRecord; callers absorb it as a no-op since
// it only signals a race between overlapping runs.
func RecordProcessed(ctx context.Context, db *sql.DB, messageID, sender string, candidateCount int) error {
	res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO processed_emails (message_id, sender, candidate_count, deleted, processed_at)
VALUES (?, ?, ?, 0, ?);`,
		messageID, sender, candidateCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record processed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

// MarkEmailDeleted flips the deletion flag. Idempotent; an absent record is
// not an error.
func MarkEmailDeleted(ctx context.Context, db *sql.DB, messageID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE processed_emails SET deleted = 1 WHERE message_id = ?;`, messageID)
	return err
}

func ListProcessedEmails(ctx context.Context, db *sql.DB, limit int) ([]ProcessedEmail, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, message_id, sender, candidate_count, deleted, processed_at
FROM processed_emails
ORDER BY id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessedEmail
	for rows.Next() {
		var p ProcessedEmail
		var deleted int
		if err := rows.Scan(&p.ID, &p.MessageID, &p.Sender, &p.CandidateCount, &deleted, &p.ProcessedAt); err != nil {
			return nil, err
		}
		p.Deleted = deleted != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
