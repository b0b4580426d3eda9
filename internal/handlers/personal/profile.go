package personal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/s/eduPortal/internal/handlers"
	"github.com/s/eduPortal/internal/profile"
)

// maxAvatarSize - предел тела запроса с аватаром.
const maxAvatarSize = 5 << 20

type Service struct {
	*handlers.Handler
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s Service) profile(w http.ResponseWriter, r *http.Request) (*profile.Service, bool) {
	sess := s.Session(w, r)
	if sess.Current() == nil {
		jsonError(w, "Необходимо войти в систему", http.StatusUnauthorized)
		return nil, false
	}
	return profile.New(s.Gateway, sess, s.Passwords, s.Log), true
}

// GET /personal
func (s Service) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := s.CurrentUser(w, r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, s.Page(r, "Мой Профиль", user))
}

// POST /personal - multipart: name и необязательный файл avatar
func (s Service) HandleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.profile(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		jsonError(w, "Файл слишком большой", http.StatusBadRequest)
		return
	}

	var avatar *profile.Upload
	file, header, err := r.FormFile("avatar")
	if err == nil {
		defer file.Close()
		avatar = &profile.Upload{FileName: header.Filename, Reader: file}
	}

	user, err := svc.Update(r.Context(), r.FormValue("name"), avatar)
	if err != nil {
		s.Fail(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, s.Page(r, "Мой Профиль", user))
}

// POST /personal/delete?confirm=true
func (s Service) HandleProfileDelete(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.profile(w, r)
	if !ok {
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := svc.Delete(r.Context(), confirmed); err != nil {
		s.Fail(w, r, err)
		return
	}
	s.ForgetWorkspace(w, r)
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"message":  "Профиль успешно удалён",
		"redirect": "/login",
	})
}
