package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserLog хранит историю изменяющих запросов к бэкенду
type UserLog struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	UserID    ID             `gorm:"index" json:"user_id"`
	Action    string         `json:"action"`  // "users.create", "chats.delete", "support.send"
	Details   datatypes.JSON `json:"details"` // поля формы без пароля
	CreatedAt time.Time      `json:"created_at"`
}
