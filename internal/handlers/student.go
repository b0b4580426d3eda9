package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/s/eduPortal/internal/catalog"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

// LessonsPage - страница уроков.
type LessonsPage struct {
	PageData
	Courses []models.Course      `json:"courses"`
	Lessons []catalog.LessonView `json:"lessons"`
}

func (h *Handler) lessonsPage(r *http.Request, ws *Workspace) LessonsPage {
	return LessonsPage{
		PageData: h.Page(r, "Уроки", ws.Session.Current()),
		Courses:  ws.Catalog.Courses(),
		Lessons:  ws.Catalog.Lessons(),
	}
}

// ensureCatalog загружает каталог, если рабочая область только что создана.
func (h *Handler) ensureCatalog(r *http.Request, ws *Workspace) {
	if len(ws.Catalog.Courses()) == 0 {
		ws.Catalog.Activate(r.Context())
	}
}

// GET /lessons
func (h *Handler) HandleLessons(w http.ResponseWriter, r *http.Request) {
	if h.CurrentUser(w, r) == nil {
		h.guestLessons(w, r)
		return
	}
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	if err := ws.Catalog.Activate(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.lessonsPage(r, ws))
}

// guestLessons отдает гостю все уроки без записей и прогресса.
// Рабочая область гостю не заводится.
func (h *Handler) guestLessons(w http.ResponseWriter, r *http.Request) {
	vm := catalog.New(h.Gateway, session.New(&session.MemoryBackend{}, h.Log), h.Log)
	if err := vm.Activate(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, LessonsPage{
		PageData: h.Page(r, "Уроки", nil),
		Courses:  vm.Courses(),
		Lessons:  vm.Lessons(),
	})
}

// POST /lessons
func (h *Handler) HandleCreateLesson(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	var form catalog.LessonForm
	if err := Decode(r, &form); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.ensureCatalog(r, ws)
	lesson, err := ws.Catalog.CreateLesson(r.Context(), form)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, lesson)
}

// POST /courses/{id}/enroll
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	courseID, err := models.ParseID(mux.Vars(r)["id"])
	if err != nil {
		jsonError(w, "Некорректный id курса", http.StatusBadRequest)
		return
	}
	h.ensureCatalog(r, ws)
	if err := ws.Catalog.Enroll(r.Context(), courseID); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.lessonsPage(r, ws))
}

// POST /lessons/{id}/complete
func (h *Handler) HandleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	lessonID, err := models.ParseID(mux.Vars(r)["id"])
	if err != nil {
		jsonError(w, "Некорректный id урока", http.StatusBadRequest)
		return
	}
	h.ensureCatalog(r, ws)
	if err := ws.Catalog.CompleteLesson(r.Context(), lessonID); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.lessonsPage(r, ws))
}
