package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"suratline/internal/engine/auth"
)

func registerLogin(api huma.API, users auth.Service, cfg AuthConfig, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := users.Login(ctx, input.Body.ID, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, exp, err := signToken(cfg.JWTSecret, u, now(), cfg.ttl())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{
			Token:     token,
			ExpiresAt: exp.UTC().Format(time.RFC3339),
			User:      userResponse(u),
		}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ID: actor.ID, Name: actor.Name, Role: actor.Role}}, nil
	})
}

// requireAdmin gates user administration.
func requireAdmin(ctx context.Context, action string) huma.StatusError {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	if err := auth.Require(actor, action); err != nil {
		return handleError(err)
	}
	return nil
}

type userOutput struct {
	Body UserResponse `json:"body"`
}

func registerUsers(api huma.API, users auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, "list users"); err != nil {
			return nil, err
		}
		list, err := users.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(list))
		for _, u := range list {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*userOutput, error) {
		if err := requireAdmin(ctx, "create users"); err != nil {
			return nil, err
		}
		u, err := users.CreateUser(ctx, auth.NewUser{
			ID:       input.Body.ID,
			Name:     input.Body.Name,
			Role:     input.Body.Role,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &userOutput{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*userOutput, error) {
		if err := requireAdmin(ctx, "update users"); err != nil {
			return nil, err
		}
		u, err := users.UpdateUser(ctx, input.ID, auth.UserUpdate{
			Name:     input.Body.Name,
			Role:     input.Body.Role,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &userOutput{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx, "delete users"); err != nil {
			return nil, err
		}
		if err := users.DeleteUser(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
