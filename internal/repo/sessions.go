package repo

import (
	"context"
	"database/sql"
	"time"
)

func (r Repo) SessionGet(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM kv_sessions WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) SessionSet(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO kv_sessions(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

// SessionDelete is idempotent.
func (r Repo) SessionDelete(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM kv_sessions WHERE key=?`, key)
	return err
}
