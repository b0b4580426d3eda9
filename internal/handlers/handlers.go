package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/auth"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

type Handler struct {
	Store      sessions.Store
	Gateway    *gateway.Client
	Passwords  identity.PasswordProvider
	Federated  identity.FederatedProvider
	Workspaces *Workspaces
	Log        *logger.Logger
}

func NewHandler(store sessions.Store, gw *gateway.Client, passwords identity.PasswordProvider, federated identity.FederatedProvider, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Store:      store,
		Gateway:    gw,
		Passwords:  passwords,
		Federated:  federated,
		Workspaces: NewWorkspaces(gw, log),
		Log:        log.With("component", "web"),
	}
}

// PageData - общая часть ответа каждой страницы.
type PageData struct {
	Title           string              `json:"title"`
	IsAuthenticated bool                `json:"is_authenticated"`
	User            *models.User        `json:"user,omitempty"`
	Permissions     session.Permissions `json:"permissions"`
	CurrentPath     string              `json:"current_path"`
}

func (h *Handler) Page(r *http.Request, title string, user *models.User) PageData {
	if user != nil {
		u := *user
		// токен провайдера наружу не отдаем
		u.IDToken = ""
		user = &u
	}
	return PageData{
		Title:           title,
		IsAuthenticated: user != nil,
		User:            user,
		Permissions:     session.PermissionsFor(user),
		CurrentPath:     r.URL.Path,
	}
}

// Session - хранилище пользователя поверх cookie текущего запроса.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) *session.Session {
	s := session.New(session.NewCookieBackend(h.Store, w, r), h.Log)
	s.Load()
	return s
}

// CurrentUser - пользователь из cookie или nil.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) *models.User {
	return h.Session(w, r).Current()
}

func (h *Handler) flow(sess *session.Session) *auth.Flow {
	return auth.NewFlow(h.Gateway, sess, h.Passwords, h.Federated, h.Log)
}

func (h *Handler) HandleMain(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(w, r)
	WriteJSON(w, http.StatusOK, h.Page(r, "Главная", user))
}

func (h *Handler) HandleForbiddenPage(w http.ResponseWriter, r *http.Request) {
	jsonError(w, "Недостаточно прав", http.StatusForbidden)
}

func (h *Handler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	jsonError(w, "Необходимо войти в систему", http.StatusUnauthorized)
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"error": message})
}

type errorBody struct {
	Error  string            `json:"error"`
	Kind   apperr.Kind       `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Fail отдает ошибку в виде JSON со статусом по ее классу.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Kind: apperr.KindOf(err)}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		body.Fields = appErr.Fields
	}
	if body.Error == "" {
		switch body.Kind {
		case apperr.KindValidation:
			body.Error = "Проверьте заполнение формы"
		default:
			body.Error = "Сервер недоступен, попробуйте позже"
		}
	}
	code := apperr.Status(err)
	if code >= http.StatusInternalServerError {
		h.Log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteJSON(w, code, body)
}

// Decode читает JSON-тело запроса.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.KindValidation, "Некорректный запрос", err)
	}
	return nil
}
