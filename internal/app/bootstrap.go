package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"suratline/internal/config"
	"suratline/internal/domain"
	"suratline/internal/engine/auth"
	"suratline/internal/repo"
)

// SeedUser is an account created on first start.
type SeedUser struct {
	ID       string
	Name     string
	Role     domain.Role
	Password string
}

// DefaultUsers are the accounts a fresh workspace starts with.
var DefaultUsers = []SeedUser{
	{ID: "admin1", Name: "Administrator", Role: domain.RoleAdmin, Password: "admin123"},
	{ID: "tu1", Name: "Bagian TU", Role: domain.RoleTU, Password: "tu123"},
	{ID: "coord1", Name: "Suwarti, S.H", Role: domain.RoleCoordinator, Password: "coord123"},
	{ID: "coord2", Name: "Achamd Evianto", Role: domain.RoleCoordinator, Password: "coord123"},
	{ID: "staff1", Name: "Budi Santoso", Role: domain.RoleStaff, Password: "staff123"},
	{ID: "staff2", Name: "Sari Wijaya", Role: domain.RoleStaff, Password: "staff123"},
}

// LoadCatalog returns the catalog stored in the database, seeding it from
// suratline.yml in the workspace (or the built-in default) when missing.
func LoadCatalog(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetCatalogConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.UpsertCatalogConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	return seed, nil
}

// SeedUsers creates users only when the table is empty.
func SeedUsers(ctx context.Context, users auth.Service, seeds []SeedUser, log *zap.Logger) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, s := range seeds {
		if _, err := users.CreateUser(ctx, auth.NewUser{ID: s.ID, Name: s.Name, Role: s.Role, Password: s.Password}); err != nil {
			return fmt.Errorf("seed user %s: %w", s.ID, err)
		}
	}
	if log != nil {
		log.Info("seeded default users", zap.Int("count", len(seeds)))
	}
	return nil
}
