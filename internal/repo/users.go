package repo

import (
	"context"
	"database/sql"

	"suratline/internal/domain"
)

const userColumns = `id,name,role,password_hash,created_at,updated_at`

func scanUser(s scanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,role,password_hash,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Role, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET name=?, role=?, password_hash=?, updated_at=? WHERE id=?`,
		u.Name, u.Role, u.PasswordHash, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the account only; reports keep the name.
func (r Repo) DeleteUser(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
