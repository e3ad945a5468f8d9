// Package session remembers which user is logged in on this workstation.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v7"

	"suratline/internal/repo"
)

// DefaultKey is the slot the CLI keeps its login in.
const DefaultKey = "suratline:current_user"

var ErrNoSession = errors.New("not logged in")

// Store persists the id of the logged-in user.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// SQLStore keeps the session in the workspace database.
type SQLStore struct {
	Repo repo.Repo
	Key  string
}

func (s SQLStore) key() string {
	if s.Key == "" {
		return DefaultKey
	}
	return s.Key
}

func (s SQLStore) Get(ctx context.Context) (string, error) {
	v, err := s.Repo.SessionGet(ctx, s.key())
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNoSession
	}
	return v, err
}

func (s SQLStore) Set(ctx context.Context, userID string) error {
	return s.Repo.SessionSet(ctx, s.key(), userID)
}

func (s SQLStore) Clear(ctx context.Context) error {
	return s.Repo.SessionDelete(ctx, s.key())
}

// RedisStore keeps the session in Redis so several workstations can share it.
type RedisStore struct {
	client *redis.Client
	Key    string
}

func NewRedisStore(address, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		Key: DefaultKey,
	}
}

func (s *RedisStore) Ping() (string, error) {
	return s.client.Ping().Result()
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	v, err := s.client.WithContext(ctx).Get(s.Key).Result()
	if err == redis.Nil {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, userID string) error {
	if err := s.client.WithContext(ctx).Set(s.Key, userID, 0).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.WithContext(ctx).Del(s.Key).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
