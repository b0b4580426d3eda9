package database

import (
	"github.com/s/eduPortal/internal/models"
	"gorm.io/gorm"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Lesson{},
		&models.Enrollment{},
		&models.LessonProgress{},
		&models.DirectChat{},
		&models.GroupChat{},
		&models.GroupMember{},
		&models.Message{},
		&models.GroupMessage{},
		&models.SupportMessage{},
		&models.UserLog{},
	)
}
