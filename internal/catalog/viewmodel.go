package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
	"github.com/s/eduPortal/internal/validation"
)

// LessonView - урок в списке вместе с тем, что с ним можно сделать.
type LessonView struct {
	models.Lesson
	CourseTitle string `json:"course_title"`
	Enrolled    bool   `json:"enrolled"`
	Finished    bool   `json:"finished"`
	CanEnroll   bool   `json:"can_enroll"`
	CanComplete bool   `json:"can_complete"`
	CanTakeTest bool   `json:"can_take_test"`
}

// ViewModel - страница уроков: курсы, уроки, записи и прогресс текущего пользователя.
type ViewModel struct {
	gw   *gateway.Client
	sess session.Reader
	log  *logger.Logger
	now  func() time.Time

	mu       sync.RWMutex
	ownerID  models.ID
	courses  []models.Course
	lessons  []models.Lesson
	enrolled map[models.ID]bool
	finished map[models.ID]bool
}

func New(gw *gateway.Client, sess session.Reader, log *logger.Logger) *ViewModel {
	if log == nil {
		log = logger.Nop()
	}
	return &ViewModel{
		gw:       gw,
		sess:     sess,
		log:      log.With("component", "catalog"),
		now:      time.Now,
		enrolled: map[models.ID]bool{},
		finished: map[models.ID]bool{},
	}
}

// Activate загружает все четыре коллекции параллельно.
// Упавший запрос дает пустую коллекцию, страница все равно показывается.
func (vm *ViewModel) Activate(ctx context.Context) error {
	user := vm.sess.Current()

	var (
		courses  []models.Course
		lessons  []models.Lesson
		enrolled map[models.ID]bool
		finished map[models.ID]bool
		g        errgroup.Group
	)
	g.Go(func() error { courses = vm.fetchCourses(ctx); return nil })
	g.Go(func() error { lessons = vm.fetchLessons(ctx); return nil })
	g.Go(func() error { enrolled = vm.fetchEnrollments(ctx, user); return nil })
	g.Go(func() error { finished = vm.fetchProgress(ctx, user); return nil })
	_ = g.Wait()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.resetOwner(user)
	vm.courses = courses
	vm.lessons = lessons
	vm.enrolled = enrolled
	vm.mergeFinished(finished)
	return nil
}

// Courses - курсы для выпадающего списка при создании урока.
func (vm *ViewModel) Courses() []models.Course {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]models.Course(nil), vm.courses...)
}

// Lessons - видимые пользователю уроки.
// Студент видит только уроки курсов, на которые записан.
func (vm *ViewModel) Lessons() []LessonView {
	user := vm.sess.Current()

	vm.mu.RLock()
	defer vm.mu.RUnlock()

	titles := make(map[models.ID]string, len(vm.courses))
	for _, c := range vm.courses {
		titles[c.ID] = c.Title
	}
	isStudent := user != nil && user.Is(models.RoleStudent)

	out := make([]LessonView, 0, len(vm.lessons))
	for _, l := range vm.lessons {
		enrolled := vm.enrolled[l.CourseID]
		if isStudent && !enrolled {
			continue
		}
		title, ok := titles[l.CourseID]
		if !ok {
			title = models.NoCourseTitle
		}
		finished := vm.finished[l.ID]
		out = append(out, LessonView{
			Lesson:      l,
			CourseTitle: title,
			Enrolled:    enrolled,
			Finished:    finished,
			CanEnroll:   isStudent && !enrolled,
			CanComplete: isStudent && enrolled && !finished,
			CanTakeTest: isStudent && enrolled && finished,
		})
	}
	return out
}

// Enroll записывает студента на курс и перечитывает записи, уроки и курсы.
func (vm *ViewModel) Enroll(ctx context.Context, courseID models.ID) error {
	user := vm.sess.Current()
	if user == nil {
		return apperr.New(apperr.KindUnauthenticated, "Необходимо войти в систему, чтобы записаться на курс", nil)
	}
	if !user.Is(models.RoleStudent) {
		return apperr.Forbidden("Только студенты могут записываться на курс")
	}
	if courseID == 0 {
		return apperr.Field("course_id", "Выберите курс")
	}

	vm.mu.RLock()
	already := vm.enrolled[courseID]
	vm.mu.RUnlock()
	if already {
		return nil
	}

	_, err := vm.gw.PostForm(ctx, "/course_enrollments", url.Values{
		"user_id":   {user.ID.String()},
		"course_id": {courseID.String()},
	})
	if err != nil {
		vm.log.Warn("enroll failed", "course_id", courseID, "error", err)
		return apperr.New(apperr.KindRemote, "Не удалось записаться на курс", err)
	}

	// Порядок важен: фильтр уроков зависит от свежих записей
	enrolled := vm.fetchEnrollments(ctx, user)
	vm.mu.Lock()
	vm.enrolled = enrolled
	vm.mu.Unlock()

	lessons := vm.fetchLessons(ctx)
	vm.mu.Lock()
	vm.lessons = lessons
	vm.mu.Unlock()

	courses := vm.fetchCourses(ctx)
	vm.mu.Lock()
	vm.courses = courses
	vm.mu.Unlock()
	return nil
}

// CompleteLesson отмечает урок пройденным. Нужна запись на курс урока.
func (vm *ViewModel) CompleteLesson(ctx context.Context, lessonID models.ID) error {
	user := vm.sess.Current()
	if user == nil {
		return apperr.New(apperr.KindUnauthenticated, "Необходимо войти в систему, чтобы отмечать прогресс", nil)
	}
	if !user.Is(models.RoleStudent) {
		return apperr.Forbidden("Только студенты могут проходить уроки/тесты")
	}

	vm.mu.RLock()
	lesson, found := vm.findLesson(lessonID)
	enrolled := found && vm.enrolled[lesson.CourseID]
	done := vm.finished[lessonID]
	vm.mu.RUnlock()

	if !found {
		return apperr.Field("lesson_id", "Урок не найден")
	}
	if !enrolled {
		return apperr.Forbidden("Сначала запишитесь на курс")
	}
	if done {
		return nil
	}

	_, err := vm.gw.PostForm(ctx, "/lesson_progress", url.Values{
		"user_id":          {user.ID.String()},
		"lesson_id":        {lessonID.String()},
		"status":           {string(models.ProgressCompleted)},
		"completed_at":     {vm.now().UTC().Format(time.RFC3339)},
		"progress_percent": {"100"},
	})
	if err != nil {
		vm.log.Warn("complete lesson failed", "lesson_id", lessonID, "error", err)
		return apperr.New(apperr.KindRemote, "Не удалось сохранить прогресс урока", err)
	}

	finished := vm.fetchProgress(ctx, user)
	vm.mu.Lock()
	vm.finished[lessonID] = true
	vm.mergeFinished(finished)
	vm.mu.Unlock()

	lessons := vm.fetchLessons(ctx)
	vm.mu.Lock()
	vm.lessons = lessons
	vm.mu.Unlock()
	return nil
}

type LessonForm struct {
	Title    string    `json:"title" validate:"notblank"`
	Content  string    `json:"content"`
	CourseID models.ID `json:"course_id" validate:"required"`
}

var lessonMessages = validation.Messages{
	"title":     "Введите название урока",
	"course_id": "Выберите курс",
}

// CreateLesson - урок от преподавателя. Новый урок встает в начало списка без перезагрузки.
func (vm *ViewModel) CreateLesson(ctx context.Context, form LessonForm) (models.Lesson, error) {
	user := vm.sess.Current()
	if user == nil {
		return models.Lesson{}, apperr.Unauthenticated()
	}
	if !user.Is(models.RoleTeacher) {
		return models.Lesson{}, apperr.Forbidden("Добавлять уроки может только преподаватель")
	}
	if err := validation.Check(form, lessonMessages); err != nil {
		return models.Lesson{}, err
	}

	body, err := vm.gw.PostForm(ctx, "/lessons", url.Values{
		"title":     {strings.TrimSpace(form.Title)},
		"content":   {form.Content},
		"course_id": {form.CourseID.String()},
	})
	if err != nil {
		vm.log.Warn("create lesson failed", "error", err)
		return models.Lesson{}, apperr.New(apperr.KindRemote, "Ошибка при создании урока", err)
	}

	lesson := models.Lesson{Title: strings.TrimSpace(form.Title), Content: form.Content, CourseID: form.CourseID}
	if rec := gateway.ExtractRecord(body, "lesson"); rec != nil {
		var created models.Lesson
		if err := json.Unmarshal(rec, &created); err == nil && created.ID != 0 {
			lesson = created
		}
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = models.NewTime(vm.now())
	}

	vm.mu.Lock()
	vm.lessons = append([]models.Lesson{lesson}, vm.lessons...)
	vm.mu.Unlock()
	return lesson, nil
}

func (vm *ViewModel) findLesson(id models.ID) (models.Lesson, bool) {
	for _, l := range vm.lessons {
		if l.ID == id {
			return l, true
		}
	}
	return models.Lesson{}, false
}

// resetOwner: прогресс другого пользователя не переносим.
func (vm *ViewModel) resetOwner(user *models.User) {
	var id models.ID
	if user != nil {
		id = user.ID
	}
	if id != vm.ownerID {
		vm.ownerID = id
		vm.finished = map[models.ID]bool{}
	}
}

// mergeFinished: пройденный урок не становится снова непройденным.
func (vm *ViewModel) mergeFinished(fresh map[models.ID]bool) {
	for id := range fresh {
		vm.finished[id] = true
	}
}

func (vm *ViewModel) fetchCourses(ctx context.Context) []models.Course {
	courses, err := gateway.Fetch[models.Course](ctx, vm.gw, "/courses", nil, "courses")
	if err != nil {
		vm.log.Warn("courses fetch failed", "error", err)
		return nil
	}
	return courses
}

func (vm *ViewModel) fetchLessons(ctx context.Context) []models.Lesson {
	lessons, err := gateway.Fetch[models.Lesson](ctx, vm.gw, "/lessons", nil, "lessons")
	if err != nil {
		vm.log.Warn("lessons fetch failed", "error", err)
		return nil
	}
	return lessons
}

func (vm *ViewModel) fetchEnrollments(ctx context.Context, user *models.User) map[models.ID]bool {
	out := map[models.ID]bool{}
	if user == nil {
		return out
	}
	items, err := gateway.Fetch[models.Enrollment](ctx, vm.gw, "/course_enrollments",
		url.Values{"user_id": {user.ID.String()}}, "enrollments", "course_enrollments")
	if err != nil {
		vm.log.Warn("enrollments fetch failed", "error", err)
		return out
	}
	for _, e := range items {
		if e.CourseID != 0 {
			out[e.CourseID] = true
		}
	}
	return out
}

func (vm *ViewModel) fetchProgress(ctx context.Context, user *models.User) map[models.ID]bool {
	out := map[models.ID]bool{}
	if user == nil {
		return out
	}
	items, err := gateway.Fetch[models.LessonProgress](ctx, vm.gw, "/lesson_progress",
		url.Values{"user_id": {user.ID.String()}}, "progress", "lesson_progress")
	if err != nil {
		vm.log.Warn("progress fetch failed", "error", err)
		return out
	}
	for _, p := range items {
		if p.LessonID != 0 && p.Finished() {
			out[p.LessonID] = true
		}
	}
	return out
}
