package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htmlshot/htmlshot/internal/crypto"
	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

type fakeRecordStore struct {
	records   []*models.Conversion
	createErr error
	listErr   error
}

func (f *fakeRecordStore) CreateConversion(_ context.Context, c *models.Conversion) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, c)
	return nil
}

func (f *fakeRecordStore) ListConversions(_ context.Context, userID int64, limit, offset int) ([]*models.Conversion, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []*models.Conversion
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeRecordStore) DeleteConversion(_ context.Context, id uuid.UUID, userID int64) error {
	for i, r := range f.records {
		if r.ID == id && r.UserID == userID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func testCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	return crypto.NewCodec(strings.Repeat("a", 64))
}

func TestWriter_SaveEncryptsBody(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	html := "<html><body>hello</body></html>"
	id := w.Save(ctx, 1, html, 1200, nil, 2, true, 4096)
	require.NotEqual(t, uuid.Nil, id)

	require.Len(t, fs.records, 1)
	rec := fs.records[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, html, rec.HTMLPreview)
	assert.True(t, strings.HasPrefix(rec.HTMLEncrypted, "enc:"))
	assert.NotContains(t, rec.HTMLEncrypted, "hello")
	assert.Equal(t, 1200, rec.Width)
	assert.Nil(t, rec.Height)
	assert.Equal(t, 2, rec.DPR)
	assert.True(t, rec.FullPage)
	assert.Equal(t, 4096, rec.ByteSize)
}

func TestWriter_SaveTruncatesPreview(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	html := strings.Repeat("x", previewLimit+100)
	id := w.Save(ctx, 1, html, 800, nil, 1, false, 100)
	require.NotEqual(t, uuid.Nil, id)

	preview := fs.records[0].HTMLPreview
	assert.Len(t, preview, previewLimit+len(truncationMarker))
	assert.True(t, strings.HasSuffix(preview, truncationMarker))
}

func TestWriter_PreviewKeepsRunesIntact(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	// A two-byte rune straddling the byte limit must not be split.
	html := strings.Repeat("a", previewLimit-1) + "é" + strings.Repeat("b", 50)
	id := w.Save(ctx, 1, html, 800, nil, 1, false, 100)
	require.NotEqual(t, uuid.Nil, id)

	preview := fs.records[0].HTMLPreview
	assert.True(t, utf8.ValidString(preview))
	assert.True(t, strings.HasSuffix(preview, "a"+truncationMarker))
	assert.Len(t, preview, previewLimit-1+len(truncationMarker))
}

func TestWriter_SaveSwallowsStoreErrors(t *testing.T) {
	fs := &fakeRecordStore{createErr: errors.New("connection refused")}
	w := NewWriter(fs, testCodec(t))

	id := w.Save(context.Background(), 1, "<p>hi</p>", 800, nil, 1, false, 100)
	assert.Equal(t, uuid.Nil, id)
}

func TestWriter_ListDecryptsBodies(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	w.Save(ctx, 1, "<p>first</p>", 800, nil, 1, false, 100)
	w.Save(ctx, 1, "<p>second</p>", 800, nil, 1, false, 100)
	w.Save(ctx, 2, "<p>other user</p>", 800, nil, 1, false, 100)

	records, total, err := w.List(ctx, 1, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, "<p>first</p>", records[0].HTML)
	assert.Equal(t, "<p>second</p>", records[1].HTML)
}

func TestWriter_ListSubstitutesPlaceholderForBadEnvelope(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	w.Save(ctx, 1, "<p>ok</p>", 800, nil, 1, false, 100)
	fs.records = append(fs.records, &models.Conversion{
		ID:            uuid.New(),
		UserID:        1,
		HTMLEncrypted: "enc:deadbeef:deadbeef:deadbeef",
	})

	records, _, err := w.List(ctx, 1, 20, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "<p>ok</p>", records[0].HTML)
	assert.Equal(t, DecryptFailedPlaceholder, records[1].HTML)
}

func TestWriter_ListPropagatesStoreError(t *testing.T) {
	fs := &fakeRecordStore{listErr: errors.New("connection refused")}
	w := NewWriter(fs, testCodec(t))

	_, _, err := w.List(context.Background(), 1, 20, 0)
	assert.Error(t, err)
}

func TestWriter_Delete(t *testing.T) {
	ctx := context.Background()
	fs := &fakeRecordStore{}
	w := NewWriter(fs, testCodec(t))

	id := w.Save(ctx, 1, "<p>hi</p>", 800, nil, 1, false, 100)

	require.NoError(t, w.Delete(ctx, 1, id))
	assert.ErrorIs(t, w.Delete(ctx, 1, id), store.ErrNotFound)
}

func TestWriter_PlainModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	codec := crypto.NewCodec("")
	fs := &fakeRecordStore{}
	w := NewWriter(fs, codec)

	id := w.Save(ctx, 1, "<p>unencrypted</p>", 800, nil, 1, false, 100)
	require.NotEqual(t, uuid.Nil, id)
	assert.True(t, strings.HasPrefix(fs.records[0].HTMLEncrypted, "plain:"))

	records, _, err := w.List(ctx, 1, 20, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "<p>unencrypted</p>", records[0].HTML)
}
