package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func CreateUser(ctx context.Context, db *sql.DB, email, telegramChatID string) (User, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.ExecContext(ctx, `
INSERT INTO users (email, telegram_chat_id, created_at) VALUES (?, ?, ?);`,
		email, telegramChatID, now)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return User{ID: id, Email: email, TelegramChatID: telegramChatID, CreatedAt: now}, nil
}

func ListUsers(ctx context.Context, db *sql.DB) ([]User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, email, telegram_chat_id, created_at FROM users ORDER BY id ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.TelegramChatID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteUser removes the user together with their tracking records and
// custom stages in one transaction.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_jobs WHERE user_id = ?;`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE user_id = ?;`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?;`, id); err != nil {
		return err
	}
	return tx.Commit()
}
