// Package devbackend - REST-бэкенд для локальной разработки портала.
// Отвечает теми же разнородными конвертами, что и боевой бэкенд.
package devbackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
)

type Service struct {
	DB        *gorm.DB
	Log       *logger.Logger
	UploadDir string

	now func() time.Time
}

func New(db *gorm.DB, log *logger.Logger, uploadDir string) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	return &Service{DB: db, Log: log, UploadDir: uploadDir, now: time.Now}
}

// Router - все маршруты бэкенда.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/users", s.HandleUsersAPI).Methods("GET", "POST")
	r.HandleFunc("/users/{id}", s.HandleUserByIDAPI).Methods("DELETE")

	r.HandleFunc("/courses", s.HandleCoursesAPI).Methods("GET", "POST")
	r.HandleFunc("/lessons", s.HandleLessonsAPI).Methods("GET", "POST")
	r.HandleFunc("/course_enrollments", s.HandleEnrollmentsAPI).Methods("GET", "POST")
	r.HandleFunc("/lesson_progress", s.HandleProgressAPI).Methods("GET", "POST")

	r.HandleFunc("/chats", s.HandleChatsAPI).Methods("GET", "POST")
	r.HandleFunc("/chats/{id}", s.HandleChatByIDAPI).Methods("DELETE")
	r.HandleFunc("/messages/support", s.HandleSupportAPI).Methods("GET", "POST")
	r.HandleFunc("/messages", s.HandleMessagesAPI).Methods("GET", "POST", "PUT", "DELETE")

	r.HandleFunc("/group_chats", s.HandleGroupsAPI).Methods("GET", "POST")
	r.HandleFunc("/group_chats/{id}", s.HandleGroupByIDAPI).Methods("DELETE")
	r.HandleFunc("/group_chats/{id}/{userId}", s.HandleGroupMemberAPI).Methods("DELETE")
	r.HandleFunc("/group_messages", s.HandleGroupMessagesAPI).Methods("GET", "POST", "DELETE")

	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.UploadDir))))
	return r
}

// -------------------------------------------------------------------------
// Вспомогательные функции
// -------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]interface{}{"status": code, "error": message})
}

// dbError - ошибка базы: пишем в лог, клиенту общий текст.
func (s *Service) dbError(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.Error("database error", "method", r.Method, "path", r.URL.Path, "error", err)
	jsonError(w, "Database error", http.StatusInternalServerError)
}

// idValue читает id из формы или строки запроса. Пустое значение - 0.
func idValue(r *http.Request, key string) (models.ID, bool) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, true
	}
	id, err := models.ParseID(raw)
	return id, err == nil
}

// requiredID - как idValue, но 0 считается ошибкой.
func requiredID(w http.ResponseWriter, r *http.Request, key string) (models.ID, bool) {
	id, ok := idValue(r, key)
	if !ok || id == 0 {
		jsonError(w, "Invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (models.ID, bool) {
	id, err := models.ParseID(mux.Vars(r)[key])
	if err != nil {
		jsonError(w, "Invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// audit сохраняет изменяющий запрос в user_logs. Пароль не пишется.
// Ошибка записи журнала запрос не ломает.
func (s *Service) audit(r *http.Request, userID models.ID, action string) {
	details := map[string]interface{}{}
	for key, values := range r.Form {
		if strings.Contains(strings.ToLower(key), "password") {
			continue
		}
		if len(values) == 1 {
			details[key] = values[0]
		} else {
			details[key] = values
		}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		s.Log.Warn("audit marshal failed", "action", action, "error", err)
		return
	}
	entry := models.UserLog{UserID: userID, Action: action, Details: datatypes.JSON(raw)}
	if err := s.DB.Create(&entry).Error; err != nil {
		s.Log.Warn("audit write failed", "action", action, "error", err)
	}
}
