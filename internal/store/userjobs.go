package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserJob is the per-(user, job) tracking record behind the kanban board.
type UserJob struct {
	ID                int64   `json:"id"`
	UserID            int64   `json:"userId"`
	JobID             int64   `json:"jobId"`
	StageID           int64   `json:"stageId"`
	Interested        bool    `json:"isInterested"`
	AppliedAt         *string `json:"appliedAt,omitempty"`
	InterviewAt       *string `json:"interviewAt,omitempty"`
	Notes             string  `json:"notes"`
	ApplicationURL    string  `json:"applicationUrl"`
	Contact           string  `json:"contact"`
	SalaryExpectation string  `json:"salaryExpectation"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// GetOrCreateUserJob returns the existing tracking record or creates one
// seeded with the system default stage and interested=false.
func GetOrCreateUserJob(ctx context.Context, db *sql.DB, userID, jobID int64) (UserJob, error) {
	uj, err := getUserJob(ctx, db, userID, jobID)
	if err == nil {
		return uj, nil
	}
	if err != ErrNotFound {
		return UserJob{}, err
	}

	if _, err := GetJob(ctx, db, jobID); err != nil {
		return UserJob{}, err
	}
	def, err := DefaultStage(ctx, db)
	if err != nil {
		return UserJob{}, fmt.Errorf("default stage: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
INSERT OR IGNORE INTO user_jobs (user_id, job_id, stage_id, interested, notes, application_url, contact, salary_expectation, created_at, updated_at)
VALUES (?, ?, ?, 0, '', '', '', '', ?, ?);`,
		userID, jobID, def.ID, now, now)
	if err != nil {
		return UserJob{}, fmt.Errorf("create tracking record: %w", err)
	}

	// OR IGNORE covers the race where two requests create the same pair;
	// read back whichever row won.
	return getUserJob(ctx, db, userID, jobID)
}

// UpdateUserJobStage moves the record to a stage visible to the user
// (system-wide or owned). A stage owned by someone else is rejected with
// ErrStageNotVisible and the record is left unchanged.
func UpdateUserJobStage(ctx context.Context, db *sql.DB, userID, jobID, stageID int64) (UserJob, error) {
	s, err := GetStage(ctx, db, stageID)
	if err != nil {
		return UserJob{}, err
	}
	if s.UserID != nil && *s.UserID != userID {
		return UserJob{}, ErrStageNotVisible
	}

	return updateUserJob(ctx, db, userID, jobID,
		`stage_id = ?`, stageID)
}

func UpdateUserJobInterested(ctx context.Context, db *sql.DB, userID, jobID int64, interested bool) (UserJob, error) {
	return updateUserJob(ctx, db, userID, jobID,
		`interested = ?`, boolInt(interested))
}

func UpdateUserJobNotes(ctx context.Context, db *sql.DB, userID, jobID int64, notes string) (UserJob, error) {
	return updateUserJob(ctx, db, userID, jobID,
		`notes = ?`, notes)
}

// UpdateUserJobDates sets applied/interview dates. A nil pointer leaves the
// stored value alone; to clear a date pass a pointer to the empty string.
func UpdateUserJobDates(ctx context.Context, db *sql.DB, userID, jobID int64, appliedAt, interviewAt *string) (UserJob, error) {
	uj, err := getUserJob(ctx, db, userID, jobID)
	if err != nil {
		return UserJob{}, err
	}
	applied := uj.AppliedAt
	interview := uj.InterviewAt
	if appliedAt != nil {
		applied = nilIfEmpty(*appliedAt)
	}
	if interviewAt != nil {
		interview = nilIfEmpty(*interviewAt)
	}
	return updateUserJob(ctx, db, userID, jobID,
		`applied_at = ?, interview_at = ?`, applied, interview)
}

// UpdateUserJobMeta covers the application-side fields: URL override, contact
// person, salary expectation.
func UpdateUserJobMeta(ctx context.Context, db *sql.DB, userID, jobID int64, applicationURL, contact, salaryExpectation string) (UserJob, error) {
	return updateUserJob(ctx, db, userID, jobID,
		`application_url = ?, contact = ?, salary_expectation = ?`,
		applicationURL, contact, salaryExpectation)
}

func DeleteUserJob(ctx context.Context, db *sql.DB, userID, jobID int64) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM user_jobs WHERE user_id = ? AND job_id = ?;`, userID, jobID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserJobs returns the user's board, newest first.
func ListUserJobs(ctx context.Context, db *sql.DB, userID int64) ([]UserJob, error) {
	rows, err := db.QueryContext(ctx, `
SELECT id, user_id, job_id, stage_id, interested, applied_at, interview_at, notes, application_url, contact, salary_expectation, created_at, updated_at
FROM user_jobs
WHERE user_id = ?
ORDER BY updated_at DESC, id DESC;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserJob
	for rows.Next() {
		uj, err := scanUserJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, uj)
	}
	return out, rows.Err()
}

func getUserJob(ctx context.Context, db *sql.DB, userID, jobID int64) (UserJob, error) {
	row := db.QueryRowContext(ctx, `
SELECT id, user_id, job_id, stage_id, interested, applied_at, interview_at, notes, application_url, contact, salary_expectation, created_at, updated_at
FROM user_jobs
WHERE user_id = ? AND job_id = ?;`, userID, jobID)

	uj, err := scanUserJob(row)
	if err == sql.ErrNoRows {
		return UserJob{}, ErrNotFound
	}
	return uj, err
}

// updateUserJob runs a field-level partial update; every variant bumps
// updated_at. Single-row updates are last-writer-wins, the client reconciles
// optimistically.
func updateUserJob(ctx context.Context, db *sql.DB, userID, jobID int64, setClause string, args ...any) (UserJob, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	q := fmt.Sprintf(`UPDATE user_jobs SET %s, updated_at = ? WHERE user_id = ? AND job_id = ?;`, setClause)
	args = append(args, now, userID, jobID)

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return UserJob{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return UserJob{}, ErrNotFound
	}
	return getUserJob(ctx, db, userID, jobID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserJob(r rowScanner) (UserJob, error) {
	var uj UserJob
	var interested int
	if err := r.Scan(
		&uj.ID, &uj.UserID, &uj.JobID, &uj.StageID, &interested,
		&uj.AppliedAt, &uj.InterviewAt, &uj.Notes, &uj.ApplicationURL,
		&uj.Contact, &uj.SalaryExpectation, &uj.CreatedAt, &uj.UpdatedAt,
	); err != nil {
		return UserJob{}, err
	}
	uj.Interested = interested != 0
	return uj, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
