package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"suratline/internal/db"
	"suratline/internal/domain"
	"suratline/internal/migrate"
	"suratline/internal/repo"
)

func newService(t *testing.T) Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Service{
		Repo: repo.Repo{DB: conn},
		Now:  func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
		Cost: bcrypt.MinCost,
	}
}

func TestLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, NewUser{ID: "coord1", Name: "Suwarti, S.H", Role: domain.RoleCoordinator, Password: "coord123"})
	require.NoError(t, err)

	u, err := s.Login(ctx, "coord1", "coord123")
	require.NoError(t, err)
	assert.Equal(t, "Suwarti, S.H", u.Name)
	assert.NotEqual(t, "coord123", u.PasswordHash)

	_, err = s.Login(ctx, "coord1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "coord123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserLifecycle(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, NewUser{ID: "staff1", Name: "Budi Santoso", Role: domain.RoleStaff, Password: "staff123"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, NewUser{ID: "staff1", Name: "Other", Role: domain.RoleStaff, Password: "x"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = s.CreateUser(ctx, NewUser{ID: "x", Name: "X", Role: "Auditor", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidUser)

	pw := "new-secret"
	role := domain.RoleCoordinator
	u, err := s.UpdateUser(ctx, "staff1", UserUpdate{Role: &role, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCoordinator, u.Role)
	_, err = s.Login(ctx, "staff1", "new-secret")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, "staff1"))
	_, err = s.UpdateUser(ctx, "staff1", UserUpdate{})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(domain.Actor{Role: domain.RoleAdmin}, "forward", domain.RoleTU))
	assert.NoError(t, Require(domain.Actor{Role: domain.RoleTU}, "forward", domain.RoleTU))
	err := Require(domain.Actor{Role: domain.RoleStaff}, "forward", domain.RoleTU)
	var fe ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.RoleStaff, fe.Role)
}
