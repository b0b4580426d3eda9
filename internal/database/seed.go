package database

import (
	"fmt"

	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/storage"
	"gorm.io/gorm"
)

// SupportEmail - учетная запись оператора поддержки (id 1).
const SupportEmail = "support@portal.local"

type demoCourse struct {
	Title       string
	Description string
	Lessons     []string
}

var demoCourses = []demoCourse{
	{
		Title:       "Основы Go",
		Description: "Синтаксис, типы, пакеты и тесты",
		Lessons:     []string{"Установка и первая программа", "Срезы и карты", "Интерфейсы"},
	},
	{
		Title:       "Базы данных",
		Description: "SQL, индексы и транзакции",
		Lessons:     []string{"SELECT и JOIN", "Индексы"},
	},
}

// Seed создает оператора поддержки и, если demo, демонстрационные курсы.
// Повторный запуск ничего не дублирует.
func Seed(db *gorm.DB, demo bool) error {
	if err := seedOperator(db); err != nil {
		return err
	}
	if !demo {
		return nil
	}
	for _, dc := range demoCourses {
		course := models.Course{}
		if err := db.Where(models.Course{Title: dc.Title}).
			Attrs(models.Course{Description: dc.Description}).
			FirstOrCreate(&course).Error; err != nil {
			return fmt.Errorf("seed course %q: %w", dc.Title, err)
		}
		for _, title := range dc.Lessons {
			lesson := models.Lesson{}
			if err := db.Where(models.Lesson{Title: title, CourseID: course.ID}).
				Attrs(models.Lesson{Content: title}).
				FirstOrCreate(&lesson).Error; err != nil {
				return fmt.Errorf("seed lesson %q: %w", title, err)
			}
		}
	}
	return nil
}

func seedOperator(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", models.SupportOperatorID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := storage.HashPassword("support")
	if err != nil {
		return err
	}
	operator := models.User{
		ID:       models.SupportOperatorID,
		Name:     "Support team",
		Email:    SupportEmail,
		Password: hash,
		Role:     models.RoleAdmin,
	}
	if err := db.Create(&operator).Error; err != nil {
		return fmt.Errorf("seed support operator: %w", err)
	}
	// id задан явно, последовательность PostgreSQL сама не сдвигается
	if db.Dialector.Name() == "postgres" {
		return db.Exec("SELECT setval(pg_get_serial_sequence('users', 'id'), (SELECT MAX(id) FROM users))").Error
	}
	return nil
}
