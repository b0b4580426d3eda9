package session

import "github.com/s/eduPortal/internal/models"

// Permissions - что показывать в интерфейсе. Выводится только из роли.
type Permissions struct {
	Authenticated     bool `json:"authenticated"`
	CanAddLesson      bool `json:"can_add_lesson"`
	CanEnroll         bool `json:"can_enroll"`
	CanCompleteLesson bool `json:"can_complete_lesson"`
	CanOpenSupport    bool `json:"can_open_support"`
	CanUseChats       bool `json:"can_use_chats"`
}

func PermissionsFor(u *models.User) Permissions {
	if u == nil {
		return Permissions{}
	}
	return Permissions{
		Authenticated:     true,
		CanAddLesson:      u.Is(models.RoleTeacher),
		CanEnroll:         u.Is(models.RoleStudent),
		CanCompleteLesson: u.Is(models.RoleStudent),
		CanOpenSupport:    u.Is(models.RoleAdmin),
		CanUseChats:       true,
	}
}
