package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htmlshot/htmlshot/internal/auth"
)

func TestAdminCreateUserHandler(t *testing.T) {
	ms := newMockStore()
	h := NewAdminCreateUserHandler(ms)

	t.Run("success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/admin/users",
			map[string]any{"email": "ops@example.com", "password": "long enough", "is_admin": true}))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		u, err := ms.GetUserByEmail(context.Background(), "ops@example.com")
		require.NoError(t, err)
		assert.True(t, u.IsAdmin)
		assert.True(t, auth.VerifyPassword(u.PasswordHash, "long enough"))
	})

	t.Run("short password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/admin/users",
			map[string]any{"email": "x@example.com", "password": "tiny"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/admin/users",
			map[string]any{"email": "ops@example.com", "password": "long enough"}))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_EMAIL", decodeError(t, rec))
	})
}

func TestAdminDeleteUserHandler(t *testing.T) {
	ms := newMockStore()
	admin := seedUser(t, ms, "admin@example.com", "admin password", true)
	victim := seedUser(t, ms, "victim@example.com", "user password", false)

	router := chi.NewRouter()
	router.Delete("/api/v1/admin/users/{id}", NewAdminDeleteUserHandler(ms))

	do := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := asPrincipal(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/users/"+id, nil), admin.Principal())
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("cannot delete self", func(t *testing.T) {
		rec := do(strconv.FormatInt(admin.ID, 10))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		rec := do(strconv.FormatInt(victim.ID, 10))
		require.Equal(t, http.StatusOK, rec.Code)

		_, err := ms.GetUserByID(context.Background(), victim.ID)
		assert.Error(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := do("99999")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminInvitationHandlers(t *testing.T) {
	ms := newMockStore()
	admin := seedUser(t, ms, "admin@example.com", "admin password", true)

	var code string
	t.Run("create", func(t *testing.T) {
		req := asPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/admin/invitations", nil), admin.Principal())
		rec := httptest.NewRecorder()
		NewAdminCreateInvitationHandler(ms).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		data := decodeData(t, rec)
		code = data["code"].(string)
		assert.Len(t, code, 16)
	})

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewAdminListInvitationsHandler(ms).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/invitations", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), code)
	})

	t.Run("delete", func(t *testing.T) {
		inv, err := ms.GetInvitationByCode(context.Background(), code)
		require.NoError(t, err)

		router := chi.NewRouter()
		router.Delete("/api/v1/admin/invitations/{id}", NewAdminDeleteInvitationHandler(ms))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/invitations/"+inv.ID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		_, err = ms.GetInvitationByCode(context.Background(), code)
		assert.Error(t, err)
	})

	t.Run("delete unknown", func(t *testing.T) {
		router := chi.NewRouter()
		router.Delete("/api/v1/admin/invitations/{id}", NewAdminDeleteInvitationHandler(ms))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/invitations/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminSettingsHandlers(t *testing.T) {
	ms := newMockStore()

	t.Run("defaults", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewAdminGetSettingsHandler(ms).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, true, data["registration_enabled"])
		assert.Equal(t, false, data["invitation_required"])
	})

	t.Run("partial update", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewAdminUpdateSettingsHandler(ms).ServeHTTP(rec, jsonRequest(t, http.MethodPut, "/api/v1/admin/settings",
			map[string]any{"registration_enabled": false}))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		data := decodeData(t, rec)
		assert.Equal(t, false, data["registration_enabled"])
		assert.Equal(t, false, data["invitation_required"])

		// The untouched key stays unset in the store.
		_, err := ms.GetSetting(context.Background(), SettingInvitationRequired)
		assert.Error(t, err)
	})

	t.Run("update both", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewAdminUpdateSettingsHandler(ms).ServeHTTP(rec, jsonRequest(t, http.MethodPut, "/api/v1/admin/settings",
			map[string]any{"registration_enabled": true, "invitation_required": true}))

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, true, data["registration_enabled"])
		assert.Equal(t, true, data["invitation_required"])
	})
}

func TestAdminListUsersHandler(t *testing.T) {
	ms := newMockStore()
	seedUser(t, ms, "a@example.com", "password one", false)
	seedUser(t, ms, "b@example.com", "password two", true)

	rec := httptest.NewRecorder()
	NewAdminListUsersHandler(ms).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@example.com")
	assert.Contains(t, rec.Body.String(), "b@example.com")
	assert.NotContains(t, rec.Body.String(), "password_hash")
}
