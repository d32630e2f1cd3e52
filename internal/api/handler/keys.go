package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/auth"
	"github.com/htmlshot/htmlshot/internal/store"
)

// KeyIssuer creates API keys. *auth.APIKeyService satisfies it.
type KeyIssuer interface {
	Issue(ctx context.Context, userID int64, name *string) (*auth.IssuedKey, error)
}

// NewCreateKeyHandler returns the handler for POST /api/v1/keys. The raw
// key appears in this response and nowhere else, ever.
func NewCreateKeyHandler(issuer KeyIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		var req struct {
			Name *string `json:"name"`
		}
		if r.Body != nil {
			// Body is optional; a bare POST creates an unnamed key.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		issued, err := issuer.Issue(r.Context(), p.ID, req.Name)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key", nil)
			return
		}

		response.Created(w, map[string]any{
			"id":         issued.ID,
			"key":        issued.RawKey,
			"key_prefix": issued.KeyPrefix,
		})
	}
}

// NewListKeysHandler returns the handler for GET /api/v1/keys. Only
// active keys are listed, and only their non-secret fields.
func NewListKeysHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		keys, err := s.ListAPIKeys(r.Context(), p.ID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API keys", nil)
			return
		}
		response.JSON(w, keys)
	}
}

// NewDeactivateKeyHandler returns the handler for DELETE /api/v1/keys/{id}.
// Keys are soft-deleted: the row stays, the active flag flips.
func NewDeactivateKeyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid key id", nil)
			return
		}

		if err := s.DeactivateAPIKey(r.Context(), id, p.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to deactivate API key", nil)
			return
		}

		response.JSON(w, map[string]any{"success": true})
	}
}
