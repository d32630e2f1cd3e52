package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// APIKeyHeader carries long-lived key credentials.
const APIKeyHeader = "X-API-Key"

// SessionCookie is the browser session's token cookie.
const SessionCookie = "token"

// TokenVerifier validates bearer tokens. *auth.TokenService satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Principal, error)
}

// KeyVerifier validates raw API keys. *auth.APIKeyService satisfies it.
type KeyVerifier interface {
	Verify(ctx context.Context, rawKey string) (*models.Principal, error)
}

// Auth resolves request credentials into a principal.
type Auth struct {
	tokens TokenVerifier
	keys   KeyVerifier
}

func NewAuth(tokens TokenVerifier, keys KeyVerifier) *Auth {
	return &Auth{tokens: tokens, keys: keys}
}

// Resolve attaches the request's principal to the context if any
// credential verifies. Credentials are checked in priority order: API-key
// header, bearer Authorization header, session cookie; first match wins.
// Absence of all three leaves the request anonymous; Resolve never
// rejects.
func (a *Auth) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(APIKeyHeader); key != "" {
			if p, err := a.keys.Verify(r.Context(), key); err == nil {
				r = r.WithContext(SetPrincipal(r.Context(), *p))
				annotateLog(r.Context(), p)
			}
			next.ServeHTTP(w, r)
			return
		}

		if token := bearerToken(r); token != "" {
			if p, err := a.tokens.Verify(r.Context(), token); err == nil {
				ctx := SetPrincipal(r.Context(), *p)
				ctx = SetBearerToken(ctx, token)
				r = r.WithContext(ctx)
				annotateLog(ctx, p)
			}
			next.ServeHTTP(w, r)
			return
		}

		if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
			if p, err := a.tokens.Verify(r.Context(), cookie.Value); err == nil {
				ctx := SetPrincipal(r.Context(), *p)
				ctx = SetBearerToken(ctx, cookie.Value)
				r = r.WithContext(ctx)
				annotateLog(ctx, p)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects anonymous requests. Bad and missing credentials get
// the same answer; the response never says why a credential failed.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipal(r); !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_CREDENTIAL", "Authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects non-admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok || !p.IsAdmin {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// annotateLog tags the request's completion log line with the resolved
// principal, when a Logger is installed upstream.
func annotateLog(ctx context.Context, p *models.Principal) {
	if entry := logEntry(ctx); entry != nil {
		entry.principalID = p.ID
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
