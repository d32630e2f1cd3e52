package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/auth"
	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

const minPasswordLen = 8

// Settings keys read by the registration gate.
const (
	SettingRegistrationEnabled = "registration_enabled"
	SettingInvitationRequired  = "invitation_required"
)

// TokenIssuer issues and revokes bearer tokens. *auth.TokenService
// satisfies it.
type TokenIssuer interface {
	Issue(p models.Principal) (string, error)
	Revoke(ctx context.Context, token string) error
}

// AuthDeps bundles the collaborators of the account handlers.
type AuthDeps struct {
	Store        store.Store
	Tokens       TokenIssuer
	TokenTTL     time.Duration
	SecureCookie bool
}

func setSessionCookie(w http.ResponseWriter, deps AuthDeps, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(deps.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   deps.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewLoginHandler returns the handler for POST /api/v1/auth/login.
func NewLoginHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Email == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required", nil)
			return
		}

		user, err := deps.Store.GetUserByEmail(r.Context(), req.Email)
		if err != nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Invalid email or password", nil)
			return
		}

		token, err := deps.Tokens.Issue(user.Principal())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed", nil)
			return
		}

		setSessionCookie(w, deps, token)
		response.JSON(w, map[string]any{
			"user":  map[string]any{"id": user.ID, "email": user.Email},
			"token": token,
		})
	}
}

// NewRegisterHandler returns the handler for POST /api/v1/auth/register.
// Registration may be closed entirely or gated behind single-use
// invitation codes, both controlled by settings.
func NewRegisterHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !settingEnabled(r.Context(), deps.Store, SettingRegistrationEnabled, true) {
			response.Error(w, http.StatusForbidden, "REGISTRATION_CLOSED", "Registration is currently disabled", nil)
			return
		}

		var req struct {
			Email          string `json:"email"`
			Password       string `json:"password"`
			InvitationCode string `json:"invitation_code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Email == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required", nil)
			return
		}
		if len(req.Password) < minPasswordLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "password must be at least 8 characters", nil)
			return
		}

		var invitation *models.Invitation
		if settingEnabled(r.Context(), deps.Store, SettingInvitationRequired, false) {
			if req.InvitationCode == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invitation code is required", nil)
				return
			}
			inv, err := deps.Store.GetInvitationByCode(r.Context(), req.InvitationCode)
			if err != nil || inv.UsedBy != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invitation code is invalid or already used", nil)
				return
			}
			invitation = inv
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed", nil)
			return
		}

		user, err := deps.Store.CreateUser(r.Context(), req.Email, hash, false)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_EMAIL", "Email already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed", nil)
			return
		}

		if invitation != nil {
			if err := deps.Store.MarkInvitationUsed(r.Context(), invitation.ID, user.ID); err != nil {
				// The account exists; a lost invitation mark is not worth failing over.
				slogWarn("mark invitation used", err)
			}
		}

		token, err := deps.Tokens.Issue(user.Principal())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed", nil)
			return
		}

		setSessionCookie(w, deps, token)
		response.Created(w, map[string]any{
			"user":  map[string]any{"id": user.ID, "email": user.Email},
			"token": token,
		})
	}
}

// NewLogoutHandler returns the handler for POST /api/v1/auth/logout. The
// session token's hash goes to the revocation store until its natural
// expiry; API-key sessions have nothing to revoke.
func NewLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token, ok := mw.GetBearerToken(r); ok {
			if err := deps.Tokens.Revoke(r.Context(), token); err != nil {
				slogWarn("revoke token", err)
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     mw.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		response.JSON(w, map[string]any{"success": true})
	}
}

// NewMeHandler returns the handler for GET /api/v1/auth/me.
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)
		response.JSON(w, p)
	}
}

// NewChangePasswordHandler returns the handler for POST /api/v1/auth/change-password.
func NewChangePasswordHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := mw.GetPrincipal(r)

		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.NewPassword) < minPasswordLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "password must be at least 8 characters", nil)
			return
		}

		user, err := deps.Store.GetUserByID(r.Context(), p.ID)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Authentication required", nil)
			return
		}
		if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIAL", "Current password is incorrect", nil)
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Password change failed", nil)
			return
		}
		if err := deps.Store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Password change failed", nil)
			return
		}

		response.JSON(w, map[string]any{"success": true})
	}
}

// settingEnabled reads a boolean setting, treating a missing row as the
// provided default.
func settingEnabled(ctx context.Context, s store.Store, key string, def bool) bool {
	value, err := s.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return def
	}
	if err != nil {
		return def
	}
	return value == "true"
}
