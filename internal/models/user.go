package models

import (
	"regexp"
	"strings"
)

type User struct {
	ID       ID     `gorm:"primaryKey" json:"id"`
	UID      string `gorm:"index;size:128" json:"uid,omitempty"`
	Name     string `json:"name"`
	Email    string `gorm:"uniqueIndex;size:255" json:"email"`
	Password string `json:"password,omitempty"`
	Role     Role   `gorm:"size:32" json:"role"`
	Avatar   string `json:"avatar,omitempty"`

	// Только для клиентской сессии, в базу не пишется
	Provider string `gorm:"-" json:"provider,omitempty"`
	IDToken  string `gorm:"-" json:"id_token,omitempty"`
}

// SessionRecord возвращает копию без пароля: пароль в сессии не хранится.
func (u User) SessionRecord() User {
	u.Password = ""
	return u
}

func (u User) Is(role Role) bool {
	return u.Role.Is(role)
}

var adminName = regexp.MustCompile(`(?i)admin`)

// LooksLikeAdmin - админов не предлагаем в списке собеседников.
func (u User) LooksLikeAdmin() bool {
	return u.Is(RoleAdmin) || adminName.MatchString(string(u.Role))
}

// DisplayName - имя для шапки чата.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return u.Email
}
