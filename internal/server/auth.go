package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"suratline/internal/domain"
	"suratline/internal/engine/auth"
)

const defaultTokenTTL = 12 * time.Hour

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return defaultTokenTTL
}

type principalKey struct{}

func withPrincipal(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

func principalFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(principalKey{}).(domain.User)
	return u, ok
}

// actorFromContext returns the workflow identity of the authenticated user.
func actorFromContext(ctx context.Context) (domain.Actor, huma.StatusError) {
	if u, ok := principalFromContext(ctx); ok && u.ID != "" {
		return u.Actor(), nil
	}
	return domain.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Name string      `json:"name,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

func signToken(secret string, u domain.User, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	exp := now.Add(ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name: u.Name,
		Role: u.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, exp, err
}

// authenticateJWT returns the user id in a valid token.
func authenticateJWT(token string, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the bearer token to a current user record, so
// deleted accounts and role changes take effect immediately.
func newAuthMiddleware(basePath string, cfg AuthConfig, users auth.Service) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "track"):        true,
		path.Join(basePath, "auth/login"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			userID, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			u, err := users.GetUser(req.Context(), userID)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), u)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
