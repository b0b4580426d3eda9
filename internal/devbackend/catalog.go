package devbackend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/s/eduPortal/internal/models"
)

// ==========================================
// GET /courses  -> {"status":200,"courses":[...]}
// POST /courses -> {"status":200,"course":{...}}
// ==========================================
func (s *Service) HandleCoursesAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var courses []models.Course
		if err := s.DB.Order("id").Find(&courses).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "courses": courses})
	case http.MethodPost:
		course := models.Course{
			Title:       strings.TrimSpace(r.FormValue("title")),
			Description: r.FormValue("description"),
		}
		if course.Title == "" {
			jsonError(w, "Title is required", http.StatusBadRequest)
			return
		}
		if err := s.DB.Create(&course).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		s.audit(r, 0, "courses.create")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "course": course})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ==========================================
// GET /lessons  -> [...] (голый массив)
// POST /lessons -> {...} (сама запись)
// ==========================================
func (s *Service) HandleLessonsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var lessons []models.Lesson
		if err := s.DB.Order("created_at desc, id desc").Find(&lessons).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(lessons))
	case http.MethodPost:
		s.createLesson(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) createLesson(w http.ResponseWriter, r *http.Request) {
	courseID, ok := requiredID(w, r, "course_id")
	if !ok {
		return
	}
	lesson := models.Lesson{
		Title:    strings.TrimSpace(r.FormValue("title")),
		Content:  r.FormValue("content"),
		CourseID: courseID,
	}
	if lesson.Title == "" {
		jsonError(w, "Title is required", http.StatusBadRequest)
		return
	}

	var course models.Course
	if err := s.DB.Where("id = ?", courseID).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(w, "Course not found", http.StatusNotFound)
			return
		}
		s.dbError(w, r, err)
		return
	}

	if err := s.DB.Create(&lesson).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, 0, "lessons.create")
	writeJSON(w, http.StatusOK, lesson)
}

// ==========================================
// GET /course_enrollments?user_id= -> {"data":[...]}
// POST /course_enrollments         -> {"data":{...}}
// ==========================================
func (s *Service) HandleEnrollmentsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID, ok := idValue(r, "user_id")
		if !ok {
			jsonError(w, "Invalid user_id", http.StatusBadRequest)
			return
		}
		query := s.DB.Order("id")
		if userID != 0 {
			query = query.Where("user_id = ?", userID)
		}
		var items []models.Enrollment
		if err := query.Find(&items).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(items)})
	case http.MethodPost:
		userID, ok := requiredID(w, r, "user_id")
		if !ok {
			return
		}
		courseID, ok := requiredID(w, r, "course_id")
		if !ok {
			return
		}
		// Повторная запись на тот же курс возвращает существующую
		var enrollment models.Enrollment
		err := s.DB.Where(models.Enrollment{UserID: userID, CourseID: courseID}).FirstOrCreate(&enrollment).Error
		if err != nil {
			s.dbError(w, r, err)
			return
		}
		s.audit(r, userID, "course_enrollments.create")
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": enrollment})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ==========================================
// GET /lesson_progress?user_id= -> {"progress":[...]}
// POST /lesson_progress         -> {"status":200,"progress":{...}}
// ==========================================
func (s *Service) HandleProgressAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID, ok := idValue(r, "user_id")
		if !ok {
			jsonError(w, "Invalid user_id", http.StatusBadRequest)
			return
		}
		query := s.DB.Order("id")
		if userID != 0 {
			query = query.Where("user_id = ?", userID)
		}
		var items []models.LessonProgress
		if err := query.Find(&items).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"progress": nonNil(items)})
	case http.MethodPost:
		s.saveProgress(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) saveProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requiredID(w, r, "user_id")
	if !ok {
		return
	}
	lessonID, ok := requiredID(w, r, "lesson_id")
	if !ok {
		return
	}
	status := models.ProgressStatus(strings.TrimSpace(r.FormValue("status")))
	if status == "" {
		status = models.ProgressInProgress
	}
	percent, _ := strconv.ParseFloat(strings.TrimSpace(r.FormValue("progress_percent")), 64)
	completedAt, err := models.ParseTime(r.FormValue("completed_at"))
	if err != nil {
		jsonError(w, "Invalid completed_at", http.StatusBadRequest)
		return
	}

	var progress models.LessonProgress
	err = s.DB.Where(models.LessonProgress{UserID: userID, LessonID: lessonID}).First(&progress).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		progress = models.LessonProgress{UserID: userID, LessonID: lessonID}
	case err != nil:
		s.dbError(w, r, err)
		return
	}

	// Пройденный урок назад не откатывается
	if !progress.Finished() {
		progress.Status = status
		progress.ProgressPercent = models.Number(percent)
		progress.CompletedAt = completedAt
		if progress.Finished() && progress.CompletedAt.IsZero() {
			progress.CompletedAt = models.NewTime(s.now().UTC())
		}
	}
	if err := s.DB.Save(&progress).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, userID, "lesson_progress.save")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "progress": progress})
}

// nonNil - пустой список отдается как [], а не null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
