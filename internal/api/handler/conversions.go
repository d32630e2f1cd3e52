package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/history"
	"github.com/htmlshot/htmlshot/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// HistoryReader lists and deletes conversion records. *history.Writer
// satisfies it.
type HistoryReader interface {
	List(ctx context.Context, ownerID int64, limit, offset int) ([]*history.Record, int, error)
	Delete(ctx context.Context, ownerID int64, id uuid.UUID) error
}

// NewListConversionsHandler returns the handler for GET /api/v1/conversions.
func NewListConversionsHandler(records HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		limit := queryInt(r, "limit", defaultPageLimit)
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		recs, total, err := records.List(r.Context(), p.ID, limit, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list conversions", nil)
			return
		}

		response.Collection(w, recs, response.PaginationMeta{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		})
	}
}

// NewDeleteConversionHandler returns the handler for DELETE /api/v1/conversions/{id}.
func NewDeleteConversionHandler(records HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid conversion id", nil)
			return
		}

		if err := records.Delete(r.Context(), p.ID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Conversion not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete conversion", nil)
			return
		}

		response.JSON(w, map[string]any{"success": true})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
