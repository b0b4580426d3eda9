package models

import "encoding/json"

// Enrollment (Запись студента на курс)
type Enrollment struct {
	ID        ID   `gorm:"primarykey" json:"id"`
	UserID    ID   `gorm:"index" json:"user_id"`
	CourseID  ID   `gorm:"index" json:"course_id"`
	CreatedAt Time `json:"created_at"`
}

func (Enrollment) TableName() string { return "course_enrollments" }

// UnmarshalJSON: у разных версий бэкенда id курса лежит в course_id, courseId или id.
func (e *Enrollment) UnmarshalJSON(data []byte) error {
	type plain Enrollment
	var raw struct {
		plain
		CourseIDCamel ID `json:"courseId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Enrollment(raw.plain)
	if e.CourseID == 0 {
		e.CourseID = raw.CourseIDCamel
	}
	if e.CourseID == 0 {
		e.CourseID = e.ID
	}
	return nil
}

type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// LessonProgress - прогресс студента по уроку.
type LessonProgress struct {
	ID              ID             `gorm:"primarykey" json:"id"`
	UserID          ID             `gorm:"index" json:"user_id"`
	LessonID        ID             `gorm:"index" json:"lesson_id"`
	Status          ProgressStatus `gorm:"size:32" json:"status"`
	ProgressPercent Number         `json:"progress_percent"`
	CompletedAt     Time           `json:"completed_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }

// UnmarshalJSON принимает опечатку бэкенда progress_precent и короткое progress.
// id урока ищется в lesson_id, lessonId, а за их отсутствием в id.
func (p *LessonProgress) UnmarshalJSON(data []byte) error {
	type plain LessonProgress
	var raw struct {
		plain
		LessonIDCamel ID      `json:"lessonId"`
		Precent       *Number `json:"progress_precent"`
		Progress      *Number `json:"progress"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = LessonProgress(raw.plain)
	if p.LessonID == 0 {
		p.LessonID = raw.LessonIDCamel
	}
	if p.LessonID == 0 {
		p.LessonID = p.ID
	}
	if p.ProgressPercent == 0 {
		switch {
		case raw.Precent != nil:
			p.ProgressPercent = *raw.Precent
		case raw.Progress != nil:
			p.ProgressPercent = *raw.Progress
		}
	}
	return nil
}

// Finished - урок считается пройденным по статусу или по проценту.
func (p LessonProgress) Finished() bool {
	return p.Status == ProgressCompleted || p.ProgressPercent >= 100
}
