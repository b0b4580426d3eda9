package auth

import (
	"errors"
	"strings"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/validation"
)

type LoginForm struct {
	Email    string `json:"email" validate:"notblank,email"`
	Password string `json:"password" validate:"required,min=6"`
}

var loginMessages = validation.Messages{
	"email.notblank":    "Email обязателен для заполнения",
	"email.email":       "Введите корректный email",
	"password.required": "Пароль обязателен для заполнения",
	"password.min":      "Пароль должен содержать минимум 6 символов",
}

func (f LoginForm) Validate() error {
	f.Email = strings.TrimSpace(f.Email)
	return validation.Check(f, loginMessages)
}

type RegisterForm struct {
	Name            string `json:"name" validate:"notblank"`
	Email           string `json:"email" validate:"notblank,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role" validate:"required,role"`
}

var registerMessages = validation.Messages{
	"name":              "Имя обязательно для заполнения",
	"email.notblank":    "Email обязателен для заполнения",
	"email.email":       "Введите корректный email",
	"password.required": "Пароль обязателен для заполнения",
	"password.min":      "Пароль должен содержать минимум 6 символов",
	"role.required":     "Выберите роль",
	"role.role":         "Выберите роль",
}

func (f RegisterForm) Validate() error {
	f.Email = strings.TrimSpace(f.Email)
	err := validation.Check(f, registerMessages)

	// Совпадение паролей проверяем отдельно: ошибка должна висеть на поле подтверждения
	if f.ConfirmPassword != f.Password {
		fields := map[string]string{}
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Fields != nil {
			fields = appErr.Fields
		}
		fields["confirmPassword"] = "Пароли не совпадают"
		return apperr.Validation(fields)
	}
	return err
}
