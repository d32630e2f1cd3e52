package middleware

import (
	"context"
	"net/http"

	"github.com/htmlshot/htmlshot/pkg/models"
)

type contextKey string

const (
	principalKey   contextKey = "principal"
	bearerTokenKey contextKey = "bearer_token"
)

func SetPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(r *http.Request) (models.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(models.Principal)
	return p, ok
}

// SetBearerToken stashes the raw token a principal was resolved from, so
// logout can revoke it. API-key requests leave it unset.
func SetBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

func GetBearerToken(r *http.Request) (string, bool) {
	token, ok := r.Context().Value(bearerTokenKey).(string)
	return token, ok
}
