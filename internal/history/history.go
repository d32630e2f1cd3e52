// Package history persists conversion records: a bounded plaintext
// preview for display plus the full body sealed by the encryption codec.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/htmlshot/htmlshot/internal/crypto"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// previewLimit bounds the stored plaintext fragment.
const previewLimit = 500

// truncationMarker flags a preview that was cut short.
const truncationMarker = "..."

// DecryptFailedPlaceholder is shown in place of a body that can no longer
// be decrypted, e.g. after a key rotation.
const DecryptFailedPlaceholder = "[decryption failed]"

// RecordStore is the persistence surface the writer needs.
// *store.PostgresStore satisfies it.
type RecordStore interface {
	CreateConversion(ctx context.Context, c *models.Conversion) error
	ListConversions(ctx context.Context, userID int64, limit, offset int) ([]*models.Conversion, int, error)
	DeleteConversion(ctx context.Context, id uuid.UUID, userID int64) error
}

// Record is a history entry with its body already opened for display.
type Record struct {
	models.Conversion
	HTML string `json:"html"`
}

// Writer records conversions best-effort. History is telemetry, not part
// of the conversion contract: a failed write never fails the conversion.
type Writer struct {
	store RecordStore
	codec *crypto.Codec
}

func NewWriter(store RecordStore, codec *crypto.Codec) *Writer {
	return &Writer{store: store, codec: codec}
}

// Save persists one conversion record and returns its id. Errors are
// logged here and swallowed; the zero id means nothing was written.
func (w *Writer) Save(ctx context.Context, ownerID int64, html string, width int, height *int, dpr int, fullPage bool, byteSize int) uuid.UUID {
	id, err := w.save(ctx, ownerID, html, width, height, dpr, fullPage, byteSize)
	if err != nil {
		slog.Error("save conversion record", "user_id", ownerID, "error", err)
		return uuid.Nil
	}
	return id
}

func (w *Writer) save(ctx context.Context, ownerID int64, html string, width int, height *int, dpr int, fullPage bool, byteSize int) (uuid.UUID, error) {
	encrypted, err := w.codec.Encrypt(html)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encrypt body: %w", err)
	}

	rec := &models.Conversion{
		ID:            uuid.New(),
		UserID:        ownerID,
		HTMLPreview:   preview(html),
		HTMLEncrypted: encrypted,
		Width:         width,
		Height:        height,
		DPR:           dpr,
		FullPage:      fullPage,
		ByteSize:      byteSize,
		CreatedAt:     time.Now(),
	}
	if err := w.store.CreateConversion(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// List returns a page of the owner's records with decrypted bodies. A
// record whose envelope cannot be opened gets the placeholder body;
// listing continues past it.
func (w *Writer) List(ctx context.Context, ownerID int64, limit, offset int) ([]*Record, int, error) {
	rows, total, err := w.store.ListConversions(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversions: %w", err)
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		body, err := w.codec.Decrypt(row.HTMLEncrypted)
		if err != nil {
			body = DecryptFailedPlaceholder
		}
		records = append(records, &Record{Conversion: *row, HTML: body})
	}
	return records, total, nil
}

// Delete removes one record by explicit owner action.
func (w *Writer) Delete(ctx context.Context, ownerID int64, id uuid.UUID) error {
	return w.store.DeleteConversion(ctx, id, ownerID)
}

// preview truncates to at most previewLimit bytes without splitting a
// rune, so the stored fragment is always valid UTF-8.
func preview(html string) string {
	if len(html) <= previewLimit {
		return html
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(html[cut]) {
		cut--
	}
	return html[:cut] + truncationMarker
}
