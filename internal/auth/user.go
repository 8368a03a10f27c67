package auth

import (
	"context"

	"example.com/trainingsync/internal/domain"
)

// UserFunc returns the current user id, or false when nobody is signed in.
type UserFunc func(ctx context.Context) (string, bool)

// StaticUser always reports userID. An empty id means signed out.
func StaticUser(userID string) UserFunc {
	return func(context.Context) (string, bool) {
		return userID, userID != ""
	}
}

// ContextUser reads the user from claims stored on the context.
func ContextUser() UserFunc {
	return func(ctx context.Context) (string, bool) {
		claims, ok := FromContext(ctx)
		if !ok || claims.Subject == "" {
			return "", false
		}
		return claims.Subject, true
	}
}

// TokenUser validates token on every call so an expired session signs the user out.
func TokenUser(token string, cfg Config) UserFunc {
	return func(ctx context.Context) (string, bool) {
		if claims, ok := FromContext(ctx); ok && claims.Subject != "" {
			return claims.Subject, true
		}
		claims, err := Parse(token, cfg)
		if err != nil {
			return "", false
		}
		return claims.Subject, true
	}
}

// RequireUser resolves the current user or fails with domain.ErrNotAuthenticated.
func RequireUser(ctx context.Context, user UserFunc) (string, error) {
	if user == nil {
		return "", domain.ErrNotAuthenticated
	}
	id, ok := user(ctx)
	if !ok || id == "" {
		return "", domain.ErrNotAuthenticated
	}
	return id, nil
}
