package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/render"
	"github.com/htmlshot/htmlshot/internal/telemetry"
)

const (
	minDimension = 100
)

// Renderer converts HTML to PNG bytes. *render.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, req render.Request) ([]byte, error)
}

// HistoryRecorder persists conversion records best-effort.
// *history.Writer satisfies it.
type HistoryRecorder interface {
	Save(ctx context.Context, ownerID int64, html string, width int, height *int, dpr int, fullPage bool, byteSize int) uuid.UUID
}

// ConvertDeps bundles the conversion handler's collaborators.
type ConvertDeps struct {
	Renderer     Renderer
	History      HistoryRecorder
	Metrics      *telemetry.Metrics
	DefaultWidth int
	MaxWidth     int
	MaxHeight    int
	// Development gates diagnostic detail in failure responses. In
	// production callers get a generic message only.
	Development bool
}

// NewConvertHandler returns the handler for POST /api/v1/convert.
// Validation happens entirely here; the rendering pipeline assumes its
// inputs are in bounds.
func NewConvertHandler(deps ConvertDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		var req struct {
			HTML     string `json:"html"`
			Width    int    `json:"width"`
			Height   *int   `json:"height"`
			DPR      int    `json:"dpr"`
			FullPage bool   `json:"full_page"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.HTML == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "html is required", nil)
			return
		}
		if req.Width == 0 {
			req.Width = deps.DefaultWidth
		}
		if req.Width < minDimension || req.Width > deps.MaxWidth {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("width must be between %d and %d", minDimension, deps.MaxWidth), nil)
			return
		}
		if req.Height != nil && (*req.Height < minDimension || *req.Height > deps.MaxHeight) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("height must be between %d and %d", minDimension, deps.MaxHeight), nil)
			return
		}
		if req.DPR == 0 {
			req.DPR = 1
		}
		if req.DPR != 1 && req.DPR != 2 && req.DPR != 3 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "dpr must be 1, 2, or 3", nil)
			return
		}

		start := time.Now()
		png, err := deps.Renderer.Render(r.Context(), render.Request{
			HTML:     req.HTML,
			Width:    req.Width,
			Height:   req.Height,
			DPR:      req.DPR,
			FullPage: req.FullPage,
		})
		if err != nil {
			slog.Error("conversion failed", "user_id", p.ID, "error", err)
			if deps.Metrics != nil {
				deps.Metrics.ConversionsTotal.WithLabelValues("failure").Inc()
			}
			var details any
			if deps.Development {
				details = err.Error()
			}
			response.Error(w, http.StatusInternalServerError, "RENDER_FAILED", "Conversion failed", details)
			return
		}

		if deps.Metrics != nil {
			deps.Metrics.ConversionsTotal.WithLabelValues("success").Inc()
			deps.Metrics.ConversionDuration.Observe(time.Since(start).Seconds())
		}

		// History is telemetry; a failed write never fails the response.
		if deps.History != nil {
			id := deps.History.Save(r.Context(), p.ID, req.HTML,
				req.Width, req.Height, req.DPR, req.FullPage, len(png))
			if id == uuid.Nil && deps.Metrics != nil {
				deps.Metrics.HistoryWriteFailures.Inc()
			}
		}

		response.PNG(w, png)
	}
}
