package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"suratline/internal/domain"
	"suratline/internal/repo"
)

// ForbiddenError indicates the actor's role may not perform an action.
type ForbiddenError struct {
	Role   domain.Role
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUserExists         = errors.New("user already exists")
)

// Require passes when the actor holds one of roles. Admin always passes.
func Require(actor domain.Actor, action string, roles ...domain.Role) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return ForbiddenError{Role: actor.Role, Action: action}
}

// Service manages user accounts and credential checks.
type Service struct {
	Repo repo.Repo
	Now  func() time.Time
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

func (s Service) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (s Service) hash(secret string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

type NewUser struct {
	ID       string
	Name     string
	Role     domain.Role
	Password string
}

func (s Service) CreateUser(ctx context.Context, in NewUser) (domain.User, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.Name == "" {
		return domain.User{}, fmt.Errorf("%w: id and name are required", ErrInvalidUser)
	}
	if !in.Role.Valid() {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, in.Role)
	}
	if in.Password == "" {
		return domain.User{}, fmt.Errorf("%w: password is required", ErrInvalidUser)
	}
	if _, err := s.Repo.GetUser(ctx, in.ID); err == nil {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserExists, in.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now()
	u := domain.User{ID: in.ID, Name: in.Name, Role: in.Role, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if err := s.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserUpdate carries the fields to change; nil leaves a field as is.
type UserUpdate struct {
	Name     *string
	Role     *domain.Role
	Password *string
}

func (s Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (domain.User, error) {
	u, err := s.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return domain.User{}, fmt.Errorf("%w: name is required", ErrInvalidUser)
		}
		u.Name = name
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, *upd.Role)
		}
		u.Role = *upd.Role
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return domain.User{}, fmt.Errorf("%w: password is required", ErrInvalidUser)
		}
		if u.PasswordHash, err = s.hash(*upd.Password); err != nil {
			return domain.User{}, err
		}
	}
	u.UpdatedAt = s.now()
	if err := s.Repo.UpdateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s Service) DeleteUser(ctx context.Context, id string) error {
	return s.Repo.DeleteUser(ctx, id)
}

func (s Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Repo.ListUsers(ctx)
}

func (s Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.Repo.GetUser(ctx, id)
}

// Login returns the user whose id and secret both match.
func (s Service) Login(ctx context.Context, id, secret string) (domain.User, error) {
	u, err := s.Repo.GetUser(ctx, strings.TrimSpace(id))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}
