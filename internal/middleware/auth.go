package middleware

import (
	"net/http"

	"github.com/s/eduPortal/internal/handlers"
	"github.com/s/eduPortal/internal/models"
)

// Authenticated пропускает только вошедших пользователей.
func Authenticated(h *handlers.Handler) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if h.CurrentUser(w, r) == nil {
				h.HandleUnauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

// RequiredRole создает Middleware, требующее определенной роли.
// Роль берется из записи сессии, бэкенд не опрашивается.
func RequiredRole(h *handlers.Handler, role models.Role) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// 1. Проверка аутентификации
			user := h.CurrentUser(w, r)
			if user == nil {
				h.HandleUnauthorized(w, r)
				return
			}

			// 2. Проверка роли
			if !user.Is(role) {
				h.Log.Info("access denied", "path", r.URL.Path, "role", string(user.Role))
				h.HandleForbiddenPage(w, r)
				return
			}

			next.ServeHTTP(w, r)
		}
	}
}
