package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/auth"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

const (
	oauthStateKey = "oauth_state"
	// pendingKey - аккаунт Google, ожидающий выбора роли
	pendingKey = "pending_google"
)

// POST /login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var form auth.LoginForm
	if err := Decode(r, &form); err != nil {
		h.Fail(w, r, err)
		return
	}
	user, err := h.flow(h.Session(w, r)).Login(r.Context(), form)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.Page(r, "Главная", user))
}

// POST /register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var form auth.RegisterForm
	if err := Decode(r, &form); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.flow(h.Session(w, r)).Register(r.Context(), form); err != nil {
		h.Fail(w, r, err)
		return
	}
	// регистрация не входит в систему, дальше форма входа
	WriteJSON(w, http.StatusCreated, map[string]string{
		"message":  "Регистрация прошла успешно",
		"redirect": "/login",
	})
}

// GET|POST /logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.ForgetWorkspace(w, r)
	if err := h.flow(h.Session(w, r)).Logout(); err != nil {
		h.Log.Warn("logout failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// GET /auth/google/login
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := h.flow(h.Session(w, r)).FederatedURL(state)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := session.SetValue(h.Store, w, r, oauthStateKey, state); err != nil {
		h.Log.Error("oauth state save failed", "error", err)
		jsonError(w, "Ошибка входа через Google", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

type roleChoice struct {
	State auth.State    `json:"state"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Roles []models.Role `json:"roles"`
}

// GET /auth/google/callback
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	expected := session.Value(h.Store, r, oauthStateKey)
	if expected == "" || r.URL.Query().Get("state") != expected {
		jsonError(w, "Invalid state", http.StatusUnauthorized)
		return
	}
	// state одноразовый
	if err := session.SetValue(h.Store, w, r, oauthStateKey, ""); err != nil {
		h.Log.Warn("oauth state clear failed", "error", err)
	}

	outcome, err := h.flow(h.Session(w, r)).CompleteFederated(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	if outcome.State == auth.StateFederatedNeedsRole && outcome.Pending != nil {
		data, err := json.Marshal(outcome.Pending)
		if err == nil {
			err = session.SetValue(h.Store, w, r, pendingKey, string(data))
		}
		if err != nil {
			h.Log.Error("pending account save failed", "error", err)
			jsonError(w, "Ошибка входа через Google", http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusOK, roleChoice{
			State: outcome.State,
			Name:  outcome.Pending.DisplayName,
			Email: outcome.Pending.Email,
			Roles: models.Roles(),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// POST /auth/google/role
func (h *Handler) HandleGoogleRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}

	raw := session.Value(h.Store, r, pendingKey)
	var pending identity.Account
	if raw == "" || json.Unmarshal([]byte(raw), &pending) != nil || pending.UID == "" {
		h.Fail(w, r, apperr.Field("role", "Сначала войдите через Google"))
		return
	}

	user, err := h.flow(h.Session(w, r)).ChooseRole(r.Context(), pending, models.Role(req.Role))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := session.SetValue(h.Store, w, r, pendingKey, ""); err != nil {
		h.Log.Warn("pending account clear failed", "error", err)
	}
	WriteJSON(w, http.StatusOK, h.Page(r, "Главная", user))
}
