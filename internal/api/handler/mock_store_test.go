package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// mockStore is an in-memory store.Store for handler tests.
type mockStore struct {
	mu          sync.Mutex
	nextUserID  int64
	users       map[int64]*models.User
	keys        map[uuid.UUID]*models.APIKey
	conversions map[uuid.UUID]*models.Conversion
	invitations map[uuid.UUID]*models.Invitation
	settings    map[string]string

	// forcedErr, when set, is returned by every method.
	forcedErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		nextUserID:  1,
		users:       make(map[int64]*models.User),
		keys:        make(map[uuid.UUID]*models.APIKey),
		conversions: make(map[uuid.UUID]*models.Conversion),
		invitations: make(map[uuid.UUID]*models.Invitation),
		settings:    make(map[string]string),
	}
}

func (m *mockStore) Ping(context.Context) error { return m.forcedErr }

func (m *mockStore) CreateUser(_ context.Context, email, passwordHash string, isAdmin bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return nil, store.ErrDuplicateKey
		}
	}
	u := &models.User{
		ID:           m.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}
	m.nextUserID++
	m.users[u.ID] = u
	return u, nil
}

func (m *mockStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListUsers(context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockStore) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *mockStore) SetUserAdmin(_ context.Context, email string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.IsAdmin = isAdmin
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.keys[key.ID] = key
	return nil
}

func (m *mockStore) GetActiveAPIKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.KeyHash == keyHash && k.IsActive {
			return k, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		now := time.Now()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *mockStore) ListAPIKeys(_ context.Context, userID int64) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.UserID == userID && k.IsActive {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) DeactivateAPIKey(_ context.Context, id uuid.UUID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	k, ok := m.keys[id]
	if !ok || k.UserID != userID || !k.IsActive {
		return store.ErrNotFound
	}
	k.IsActive = false
	return nil
}

func (m *mockStore) CreateConversion(_ context.Context, c *models.Conversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.conversions[c.ID] = c
	return nil
}

func (m *mockStore) ListConversions(_ context.Context, userID int64, limit, offset int) ([]*models.Conversion, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, 0, m.forcedErr
	}
	var all []*models.Conversion
	for _, c := range m.conversions {
		if c.UserID == userID {
			all = append(all, c)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockStore) GetConversion(_ context.Context, id uuid.UUID, userID int64) (*models.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversions[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) DeleteConversion(_ context.Context, id uuid.UUID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	c, ok := m.conversions[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.conversions, id)
	return nil
}

func (m *mockStore) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.invitations[inv.ID] = inv
	return nil
}

func (m *mockStore) GetInvitationByCode(_ context.Context, code string) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Code == code {
			return inv, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) MarkInvitationUsed(_ context.Context, id uuid.UUID, usedBy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	inv.UsedBy = &usedBy
	inv.UsedAt = &now
	return nil
}

func (m *mockStore) ListInvitations(context.Context) ([]*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	out := make([]*models.Invitation, 0, len(m.invitations))
	for _, inv := range m.invitations {
		out = append(out, inv)
	}
	return out, nil
}

func (m *mockStore) DeleteInvitation(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if _, ok := m.invitations[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.invitations, id)
	return nil
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	m.settings[key] = value
	return nil
}

var _ store.Store = (*mockStore)(nil)

// --- request and response helpers ---

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func asPrincipal(r *http.Request, p models.Principal) *http.Request {
	return r.WithContext(mw.SetPrincipal(r.Context(), p))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), "body: %s", rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), "body: %s", rec.Body.String())
	return env.Error.Code
}
