package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Job struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    *string  `json:"location,omitempty"`
	Remote      bool     `json:"remote"`
	Description *string  `json:"description,omitempty"`
	URL         string   `json:"url"`
	Salary      *string  `json:"salary,omitempty"`
	PostedAt    *string  `json:"postedAt,omitempty"`
	Source      string   `json:"source"`
	Relevance   *float64 `json:"relevance,omitempty"`
	Processed   bool     `json:"processed"`
	CreatedAt   string   `json:"createdAt"`
}

// JobCandidate is an extractor-produced posting awaiting deduplication.
// Optional fields are pointers: absent means unknown, not empty string.
type JobCandidate struct {
	Title       string
	Company     string
	Location    *string
	Remote      bool
	Description *string
	URL         string
	Salary      *string
	PostedAt    *string
	Source      string
	Relevance   *float64
}

// DeduplicateAndInsert computes each candidate's dedup key and inserts the
// ones not seen before. The unique index on dedup_key is the source of truth:
// under concurrent runs the second writer's insert is ignored, first wins.
// Returns the subset actually inserted, with ids filled in.
func DeduplicateAndInsert(ctx context.Context, db *sql.DB, cands []JobCandidate, prefer string) ([]Job, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var inserted []Job
	for _, c := range cands {
		if c.Title == "" || c.Company == "" {
			continue
		}
		key := DedupKey(c, prefer)
		if key == "" {
			continue
		}

		res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO jobs (title, company, location, remote, description, url, salary, posted_at, source, relevance, processed, dedup_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?);`,
			c.Title, c.Company, c.Location, boolInt(c.Remote), c.Description,
			c.URL, c.Salary, c.PostedAt, c.Source, c.Relevance, key, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert job: %w", err)
		}

		n, _ := res.RowsAffected()
		if n == 0 {
			// already seen; counted by the caller, not persisted
			continue
		}
		id, _ := res.LastInsertId()

		j := Job{
			ID: id, Title: c.Title, Company: c.Company, Location: c.Location,
			Remote: c.Remote, Description: c.Description, URL: c.URL,
			Salary: c.Salary, PostedAt: c.PostedAt, Source: c.Source,
			Relevance: c.Relevance, CreatedAt: now,
		}
		inserted = append(inserted, j)
	}
	return inserted, nil
}

// MarkJobsProcessed flips the processed flag once notification has been
// attempted, so a later run does not re-notify.
func MarkJobsProcessed(ctx context.Context, db *sql.DB, ids []int64) error {
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, `UPDATE jobs SET processed = 1 WHERE id = ?;`, id); err != nil {
			return fmt.Errorf("mark job processed: %w", err)
		}
	}
	return nil
}

type ListJobsOpts struct {
	Limit  int
	Offset int
}

type Page struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func ListJobs(ctx context.Context, db *sql.DB, opts ListJobsOpts) ([]Job, Page, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs;`).Scan(&total); err != nil {
		return nil, Page{}, err
	}

	rows, err := db.QueryContext(ctx, `
SELECT id, title, company, location, remote, description, url, salary, posted_at, source, relevance, processed, created_at
FROM jobs
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, Page{}, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var remote, processed int
		if err := rows.Scan(
			&j.ID, &j.Title, &j.Company, &j.Location, &remote, &j.Description,
			&j.URL, &j.Salary, &j.PostedAt, &j.Source, &j.Relevance, &processed, &j.CreatedAt,
		); err != nil {
			return nil, Page{}, err
		}
		j.Remote = remote != 0
		j.Processed = processed != 0
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, Page{}, err
	}

	page := Page{Total: total, Limit: opts.Limit, Offset: opts.Offset, Count: len(out)}
	return out, page, nil
}

func GetJob(ctx context.Context, db *sql.DB, id int64) (Job, error) {
	var j Job
	var remote, processed int
	err := db.QueryRowContext(ctx, `
SELECT id, title, company, location, remote, description, url, salary, posted_at, source, relevance, processed, created_at
FROM jobs WHERE id = ?;`, id).Scan(
		&j.ID, &j.Title, &j.Company, &j.Location, &remote, &j.Description,
		&j.URL, &j.Salary, &j.PostedAt, &j.Source, &j.Relevance, &processed, &j.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.Remote = remote != 0
	j.Processed = processed != 0
	return j, nil
}

// DeleteJob removes a job and its dependent tracking records in one
// transaction. The cascade is explicit here rather than a schema rule so the
// ownership graph stays visible.
func DeleteJob(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_jobs WHERE job_id = ?;`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanupOldJobs deletes stale rows nobody tracks.
func CleanupOldJobs(db *sql.DB) (deleted int64, err error) {
	res, err := db.Exec(`
DELETE FROM jobs
WHERE created_at < datetime('now', '-3 months')
  AND id NOT IN (SELECT job_id FROM user_jobs);`)
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
