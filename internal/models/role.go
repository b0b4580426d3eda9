package models

import "strings"

// Role - роль пользователя портала.
type Role string

// Роли, которые понимает бэкенд.
const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
	RoleAdmin   Role = "Admin"
)

// Roles - роли, доступные при регистрации и в окне выбора роли.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleAdmin}
}

// ParseRole приводит роль из формы или ответа бэкенда к каноническому виду.
// Регистр не важен: бэкенд местами хранит "student".
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles() {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, true
		}
	}
	return "", false
}

func (r Role) Is(other Role) bool {
	return strings.EqualFold(string(r), string(other))
}

// Identity-провайдеры, через которые пользователь вошел.
const (
	ProviderBackend = "backend"
	ProviderGoogle  = "google"
)

// SupportOperatorID - зарезервированный id оператора поддержки.
const SupportOperatorID ID = 1
