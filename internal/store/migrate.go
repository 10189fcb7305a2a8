package store

import "database/sql"

// Migrate brings the schema to the current version. Versioned with
// PRAGMA user_version so re-running is cheap.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL UNIQUE,
  telegram_chat_id TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  location TEXT,
  remote INTEGER NOT NULL DEFAULT 0,
  description TEXT,
  url TEXT NOT NULL,
  salary TEXT,
  posted_at TEXT,
  source TEXT NOT NULL DEFAULT '',
  relevance REAL,
  processed INTEGER NOT NULL DEFAULT 0,
  dedup_key TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS processed_emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  message_id TEXT NOT NULL,
  sender TEXT NOT NULL DEFAULT '',
  candidate_count INTEGER NOT NULL DEFAULT 0,
  deleted INTEGER NOT NULL DEFAULT 0,
  processed_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS stages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER,
  name TEXT NOT NULL,
  color TEXT NOT NULL DEFAULT '',
  sort_order INTEGER NOT NULL,
  is_system INTEGER NOT NULL DEFAULT 0,
  is_default INTEGER NOT NULL DEFAULT 0
);`,
		`
CREATE TABLE IF NOT EXISTS user_jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  job_id INTEGER NOT NULL,
  stage_id INTEGER NOT NULL,
  interested INTEGER NOT NULL DEFAULT 0,
  applied_at TEXT,
  interview_at TEXT,
  notes TEXT NOT NULL DEFAULT '',
  application_url TEXT NOT NULL DEFAULT '',
  contact TEXT NOT NULL DEFAULT '',
  salary_expectation TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,

		// ---- Schema v1: indexes ----

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedup_key ON jobs(dedup_key);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_emails_message_id ON processed_emails(message_id);`,
		`CREATE INDEX IF NOT EXISTS idx_stages_user_order ON stages(user_id, sort_order);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_jobs_user_job ON user_jobs(user_id, job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_jobs_stage ON user_jobs(stage_id);`,

		`PRAGMA user_version = 1;`,
	}

	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}

	return tx.Commit()
}
