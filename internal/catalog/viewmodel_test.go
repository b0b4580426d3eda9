package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

// fakeBackend отвечает в тех же разных обертках, что и настоящий бэкенд.
type fakeBackend struct {
	mu          sync.Mutex
	courses     []map[string]any
	lessons     []map[string]any
	enrollments []map[string]any
	progress    []map[string]any
	posts       map[string][]url.Values
	failPaths   map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		courses: []map[string]any{{"id": 1, "title": "Go"}, {"id": 2, "title": "SQL"}},
		lessons: []map[string]any{
			{"id": 10, "title": "Intro", "course_id": 1},
			{"id": 11, "title": "Joins", "course_id": "2"},
			{"id": 12, "title": "Orphan", "course_id": 99},
		},
		posts:     map[string][]url.Values{},
		failPaths: map[string]bool{},
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPaths[r.URL.Path] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodPost {
		r.ParseForm()
		b.posts[r.URL.Path] = append(b.posts[r.URL.Path], r.PostForm)
		switch r.URL.Path {
		case "/course_enrollments":
			b.enrollments = append(b.enrollments, map[string]any{"id": len(b.enrollments) + 1, "user_id": r.PostForm.Get("user_id"), "course_id": r.PostForm.Get("course_id")})
		case "/lesson_progress":
			b.progress = append(b.progress, map[string]any{"lesson_id": r.PostForm.Get("lesson_id"), "status": "in-progress", "progress_precent": r.PostForm.Get("progress_percent")})
		case "/lessons":
			lesson := map[string]any{"id": 50, "title": r.PostForm.Get("title"), "content": r.PostForm.Get("content"), "course_id": r.PostForm.Get("course_id")}
			json.NewEncoder(w).Encode(lesson)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": 200})
		return
	}

	switch r.URL.Path {
	case "/courses":
		json.NewEncoder(w).Encode(map[string]any{"status": 200, "courses": b.courses})
	case "/lessons":
		json.NewEncoder(w).Encode(b.lessons)
	case "/course_enrollments":
		json.NewEncoder(w).Encode(map[string]any{"data": b.enrollments})
	case "/lesson_progress":
		json.NewEncoder(w).Encode(map[string]any{"count": len(b.progress), "items": b.progress})
	default:
		http.NotFound(w, r)
	}
}

func newViewModel(t *testing.T, backend *fakeBackend, user *models.User) *ViewModel {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	sess := session.New(&session.MemoryBackend{}, nil)
	if user != nil {
		require.NoError(t, sess.SetUser(*user))
	}
	return New(gateway.New(gateway.Options{BaseURL: srv.URL}), sess, nil)
}

func lessonIDs(views []LessonView) []models.ID {
	ids := make([]models.ID, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

func TestAnonymousSeesEverything(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), nil)
	require.NoError(t, vm.Activate(context.Background()))

	views := vm.Lessons()

	assert.Equal(t, []models.ID{10, 11, 12}, lessonIDs(views))
	assert.Equal(t, "Go", views[0].CourseTitle)
	assert.Equal(t, "SQL", views[1].CourseTitle)
	assert.Equal(t, models.NoCourseTitle, views[2].CourseTitle)
	assert.False(t, views[0].CanEnroll)
}

func TestStudentEnrollCompleteScenario(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, &models.User{ID: 5, Name: "Ann", Role: models.RoleStudent})
	ctx := context.Background()

	require.NoError(t, vm.Activate(ctx))
	assert.Empty(t, vm.Lessons())

	require.NoError(t, vm.Enroll(ctx, 1))
	views := vm.Lessons()
	require.Equal(t, []models.ID{10}, lessonIDs(views))
	assert.True(t, views[0].Enrolled)
	assert.True(t, views[0].CanComplete)
	assert.False(t, views[0].Finished)

	require.NoError(t, vm.CompleteLesson(ctx, 10))
	views = vm.Lessons()
	assert.True(t, views[0].Finished)
	assert.True(t, views[0].CanTakeTest)
	assert.False(t, views[0].CanComplete)

	posted := backend.posts["/lesson_progress"][0]
	assert.Equal(t, "5", posted.Get("user_id"))
	assert.Equal(t, "completed", posted.Get("status"))
	assert.Equal(t, "100", posted.Get("progress_percent"))
	assert.NotEmpty(t, posted.Get("completed_at"))
}

func TestFinishedIsMonotonic(t *testing.T) {
	backend := newFakeBackend()
	backend.enrollments = []map[string]any{{"id": 1, "courseId": 1}}
	vm := newViewModel(t, backend, &models.User{ID: 5, Role: models.RoleStudent})
	ctx := context.Background()
	require.NoError(t, vm.Activate(ctx))
	require.NoError(t, vm.CompleteLesson(ctx, 10))

	// Бэкенд перестал отдавать прогресс - урок все равно остается пройденным
	backend.mu.Lock()
	backend.failPaths["/lesson_progress"] = true
	backend.mu.Unlock()
	require.NoError(t, vm.Activate(ctx))

	views := vm.Lessons()
	require.Len(t, views, 1)
	assert.True(t, views[0].Finished)
}

func TestCompleteRequiresEnrollment(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), &models.User{ID: 5, Role: models.RoleStudent})
	ctx := context.Background()
	require.NoError(t, vm.Activate(ctx))

	err := vm.CompleteLesson(ctx, 10)

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Empty(t, vm.Lessons())
}

func TestRoleGates(t *testing.T) {
	ctx := context.Background()

	teacher := newViewModel(t, newFakeBackend(), &models.User{ID: 2, Role: models.RoleTeacher})
	require.NoError(t, teacher.Activate(ctx))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(teacher.Enroll(ctx, 1)))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(teacher.CompleteLesson(ctx, 10)))

	anon := newViewModel(t, newFakeBackend(), nil)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(anon.Enroll(ctx, 1)))

	student := newViewModel(t, newFakeBackend(), &models.User{ID: 5, Role: models.RoleStudent})
	_, err := student.CreateLesson(ctx, LessonForm{Title: "x", CourseID: 1})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCreateLessonPrepends(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, &models.User{ID: 2, Role: models.RoleTeacher})
	ctx := context.Background()
	require.NoError(t, vm.Activate(ctx))

	lesson, err := vm.CreateLesson(ctx, LessonForm{Title: " Channels ", Content: "chan T", CourseID: 1})

	require.NoError(t, err)
	assert.Equal(t, models.ID(50), lesson.ID)
	assert.Equal(t, []models.ID{50, 10, 11, 12}, lessonIDs(vm.Lessons()))
	assert.Equal(t, "Channels", backend.posts["/lessons"][0].Get("title"))
}

func TestCreateLessonValidation(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), &models.User{ID: 2, Role: models.RoleTeacher})

	_, err := vm.CreateLesson(context.Background(), LessonForm{Title: " "})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Введите название урока", appErr.Fields["title"])
	assert.Equal(t, "Выберите курс", appErr.Fields["course_id"])
}

func TestFailedFetchesDegradeToEmpty(t *testing.T) {
	backend := newFakeBackend()
	backend.failPaths["/courses"] = true
	vm := newViewModel(t, backend, nil)

	require.NoError(t, vm.Activate(context.Background()))

	assert.Empty(t, vm.Courses())
	views := vm.Lessons()
	require.Len(t, views, 3)
	assert.Equal(t, models.NoCourseTitle, views[0].CourseTitle)
}

func TestEnrollFailureReported(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, &models.User{ID: 5, Role: models.RoleStudent})
	require.NoError(t, vm.Activate(context.Background()))
	backend.mu.Lock()
	backend.failPaths["/course_enrollments"] = true
	backend.mu.Unlock()

	err := vm.Enroll(context.Background(), 1)

	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Equal(t, "Не удалось записаться на курс", err.Error())
}
