package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"suratline/internal/config"
)

func (r Repo) UpsertCatalogConfig(ctx context.Context, cfg *config.Config) error {
	return upsertCatalogConfig(ctx, r.DB, cfg)
}

func (r Repo) UpsertCatalogConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	return upsertCatalogConfig(ctx, tx, cfg)
}

func upsertCatalogConfig(ctx context.Context, q queryer, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = q.ExecContext(ctx, `INSERT INTO catalog_config(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

// GetCatalogConfig returns the stored catalog, ErrNotFound before bootstrap.
func (r Repo) GetCatalogConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM catalog_config WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}
