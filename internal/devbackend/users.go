package devbackend

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/storage"
)

// maxAvatarSize - предел размера загружаемого аватара.
const maxAvatarSize = 5 << 20

// ==========================================
// GET /users?email=&password= (Вход)
// GET /users?uid= (Поиск по uid)
// GET /users (Список)
// POST /users (Создание; с id - обновление профиля)
// ==========================================
func (s *Service) HandleUsersAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getUsers(w, r)
	case http.MethodPost:
		if err := r.ParseMultipartForm(maxAvatarSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			jsonError(w, "Invalid form", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(r.FormValue("id")) != "" {
			s.updateUser(w, r)
			return
		}
		s.createUser(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DELETE /users/{id}
func (s *Service) HandleUserByIDAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := storage.DeleteUser(s.DB, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "Пользователь не найден", http.StatusNotFound)
			return
		}
		s.dbError(w, r, err)
		return
	}
	s.audit(r, id, "users.delete")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
}

func (s *Service) getUsers(w http.ResponseWriter, r *http.Request) {
	if email := r.FormValue("email"); email != "" {
		user, err := storage.FindByCredentials(s.DB, email, r.FormValue("password"))
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "user": nil})
			return
		}
		if err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "user": user})
		return
	}

	query := s.DB.Order("id")
	if uid := r.FormValue("uid"); uid != "" {
		query = query.Where("uid = ?", uid)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	for i := range users {
		users[i] = users[i].SessionRecord()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Service) createUser(w http.ResponseWriter, r *http.Request) {
	input := models.User{
		UID:      strings.TrimSpace(r.FormValue("uid")),
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if input.Email == "" && input.UID == "" {
		jsonError(w, "Email is required", http.StatusBadRequest)
		return
	}
	if raw := r.FormValue("role"); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			jsonError(w, "Unknown role", http.StatusBadRequest)
			return
		}
		input.Role = role
	}

	user, err := storage.SaveUser(s.DB, input)
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, user.ID, "users.create")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "user": user})
}

func (s *Service) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := requiredID(w, r, "id")
	if !ok {
		return
	}

	avatar := ""
	file, header, err := r.FormFile("avatar")
	switch {
	case err == nil:
		defer file.Close()
		avatar, err = s.saveUpload(file, header.Filename)
		if err != nil {
			s.Log.Error("avatar save failed", "user_id", id.String(), "error", err)
			jsonError(w, "Не удалось сохранить аватар", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		jsonError(w, "Invalid avatar", http.StatusBadRequest)
		return
	}

	user, err := storage.UpdateProfile(s.DB, id, r.FormValue("name"), avatar)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "Пользователь не найден", http.StatusNotFound)
			return
		}
		s.dbError(w, r, err)
		return
	}
	s.audit(r, id, "users.update")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "user": user})
}

// saveUpload кладет файл в UploadDir под случайным именем и возвращает его адрес.
func (s *Service) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(name))
	fileName := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.UploadDir, fileName))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(src, maxAvatarSize)); err != nil {
		return "", fmt.Errorf("copy upload: %w", err)
	}
	return "/uploads/" + fileName, nil
}
