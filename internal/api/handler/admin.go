package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/auth"
	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// Admin handlers are thin data-entry glue over the store. The interesting
// access control happens in middleware; these assume RequireAdmin ran.

// NewAdminListUsersHandler returns the handler for GET /api/v1/admin/users.
func NewAdminListUsersHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.ListUsers(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list users", nil)
			return
		}
		response.JSON(w, users)
	}
}

// NewAdminCreateUserHandler returns the handler for POST /api/v1/admin/users.
func NewAdminCreateUserHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			IsAdmin  bool   `json:"is_admin"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Email == "" || len(req.Password) < minPasswordLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email and a password of at least 8 characters are required", nil)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user", nil)
			return
		}
		user, err := s.CreateUser(r.Context(), req.Email, hash, req.IsAdmin)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_EMAIL", "Email already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user", nil)
			return
		}
		response.Created(w, user)
	}
}

// NewAdminDeleteUserHandler returns the handler for DELETE /api/v1/admin/users/{id}.
// Admins cannot delete themselves.
func NewAdminDeleteUserHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id", nil)
			return
		}
		if id == p.ID {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Cannot delete your own account", nil)
			return
		}

		if err := s.DeleteUser(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete user", nil)
			return
		}
		response.JSON(w, map[string]any{"success": true})
	}
}

// NewAdminListInvitationsHandler returns the handler for GET /api/v1/admin/invitations.
func NewAdminListInvitationsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invitations, err := s.ListInvitations(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list invitations", nil)
			return
		}
		response.JSON(w, invitations)
	}
}

// NewAdminCreateInvitationHandler returns the handler for POST /api/v1/admin/invitations.
func NewAdminCreateInvitationHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		code := make([]byte, 8)
		if _, err := rand.Read(code); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create invitation", nil)
			return
		}

		inv := &models.Invitation{
			ID:        uuid.New(),
			Code:      hex.EncodeToString(code),
			CreatedBy: p.ID,
			CreatedAt: time.Now(),
		}
		if err := s.CreateInvitation(r.Context(), inv); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create invitation", nil)
			return
		}
		response.Created(w, inv)
	}
}

// NewAdminDeleteInvitationHandler returns the handler for DELETE /api/v1/admin/invitations/{id}.
func NewAdminDeleteInvitationHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid invitation id", nil)
			return
		}

		if err := s.DeleteInvitation(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Invitation not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete invitation", nil)
			return
		}
		response.JSON(w, map[string]any{"success": true})
	}
}

// NewAdminGetSettingsHandler returns the handler for GET /api/v1/admin/settings.
func NewAdminGetSettingsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"registration_enabled": settingEnabled(r.Context(), s, SettingRegistrationEnabled, true),
			"invitation_required":  settingEnabled(r.Context(), s, SettingInvitationRequired, false),
		})
	}
}

// NewAdminUpdateSettingsHandler returns the handler for PUT /api/v1/admin/settings.
func NewAdminUpdateSettingsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RegistrationEnabled *bool `json:"registration_enabled"`
			InvitationRequired  *bool `json:"invitation_required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.RegistrationEnabled != nil {
			if err := s.SetSetting(r.Context(), SettingRegistrationEnabled, strconv.FormatBool(*req.RegistrationEnabled)); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings", nil)
				return
			}
		}
		if req.InvitationRequired != nil {
			if err := s.SetSetting(r.Context(), SettingInvitationRequired, strconv.FormatBool(*req.InvitationRequired)); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings", nil)
				return
			}
		}

		response.JSON(w, map[string]any{
			"registration_enabled": settingEnabled(r.Context(), s, SettingRegistrationEnabled, true),
			"invitation_required":  settingEnabled(r.Context(), s, SettingInvitationRequired, false),
		})
	}
}
