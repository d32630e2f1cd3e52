package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// fakeKeyStore is an in-memory KeyStore.
type fakeKeyStore struct {
	mu       sync.Mutex
	keys     map[string]*models.APIKey // by hash
	users    map[int64]*models.User
	lastUsed map[uuid.UUID]time.Time
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:     make(map[string]*models.APIKey),
		users:    make(map[int64]*models.User),
		lastUsed: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key.KeyHash] = key
	return nil
}

func (f *fakeKeyStore) GetActiveAPIKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[keyHash]
	if !ok || !key.IsActive {
		return nil, store.ErrNotFound
	}
	return key, nil
}

func (f *fakeKeyStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed[id] = time.Now()
	return nil
}

func (f *fakeKeyStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeKeyStore) deactivate(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[hash].IsActive = false
}

func TestAPIKeyService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	fs := newFakeKeyStore()
	fs.users[5] = &models.User{ID: 5, Email: "owner@example.com", IsAdmin: true}
	svc := NewAPIKeyService(fs)

	name := "ci key"
	issued, err := svc.Issue(ctx, 5, &name)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.RawKey, KeyPrefix))
	assert.True(t, strings.HasSuffix(issued.KeyPrefix, "..."))
	assert.Equal(t, issued.RawKey[:8], strings.TrimSuffix(issued.KeyPrefix, "..."))

	// Only the hash is persisted, never the raw secret.
	stored := fs.keys[HashKey(issued.RawKey)]
	require.NotNil(t, stored)
	assert.NotEqual(t, issued.RawKey, stored.KeyHash)

	p, err := svc.Verify(ctx, issued.RawKey)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{ID: 5, Email: "owner@example.com", IsAdmin: true}, *p)
}

func TestAPIKeyService_VerifyRejectsBadFormat(t *testing.T) {
	svc := NewAPIKeyService(newFakeKeyStore())

	for _, raw := range []string{"", "h2p_", "sk_live_abc", "bearer-token-value"} {
		_, err := svc.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidCredential, "raw %q", raw)
	}
}

func TestAPIKeyService_VerifyUnknownKey(t *testing.T) {
	svc := NewAPIKeyService(newFakeKeyStore())

	_, err := svc.Verify(context.Background(), KeyPrefix+strings.Repeat("ab", 32))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAPIKeyService_VerifyDeactivatedKey(t *testing.T) {
	ctx := context.Background()
	fs := newFakeKeyStore()
	fs.users[1] = &models.User{ID: 1, Email: "u@example.com"}
	svc := NewAPIKeyService(fs)

	issued, err := svc.Issue(ctx, 1, nil)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, issued.RawKey)
	require.NoError(t, err)

	fs.deactivate(HashKey(issued.RawKey))

	_, err = svc.Verify(ctx, issued.RawKey)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAPIKeyService_VerifyRecordsLastUsed(t *testing.T) {
	ctx := context.Background()
	fs := newFakeKeyStore()
	fs.users[1] = &models.User{ID: 1, Email: "u@example.com"}
	svc := NewAPIKeyService(fs)

	issued, err := svc.Issue(ctx, 1, nil)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, issued.RawKey)
	require.NoError(t, err)

	// The update is async and best-effort.
	assert.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		_, ok := fs.lastUsed[issued.ID]
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestAPIKeyService_IssuedKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	fs := newFakeKeyStore()
	fs.users[1] = &models.User{ID: 1, Email: "u@example.com"}
	svc := NewAPIKeyService(fs)

	a, err := svc.Issue(ctx, 1, nil)
	require.NoError(t, err)
	b, err := svc.Issue(ctx, 1, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.RawKey, b.RawKey)
}
