package models

// Course (Курс)
type Course struct {
	ID          ID     `gorm:"primarykey" json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedAt   Time   `json:"created_at"`
}

// NoCourseTitle - подпись урока, у которого курс не найден.
const NoCourseTitle = "No course"

// Lesson (Урок)
type Lesson struct {
	ID        ID     `gorm:"primarykey" json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CourseID  ID     `gorm:"index" json:"course_id"`
	CreatedAt Time   `json:"created_at"`
}
