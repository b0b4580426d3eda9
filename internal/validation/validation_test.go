package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s/eduPortal/internal/apperr"
)

type form struct {
	Name  string `json:"name" validate:"notblank"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,role"`
}

func TestCheckUsesJSONNamesAndOverrides(t *testing.T) {
	err := Check(form{Name: "  ", Email: "nope", Role: "Pirate"}, Messages{
		"email.email": "Некорректный email",
	})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "Поле не может быть пустым", appErr.Fields["name"])
	assert.Equal(t, "Некорректный email", appErr.Fields["email"])
	assert.Equal(t, "Неизвестная роль", appErr.Fields["role"])
}

func TestCheckPasses(t *testing.T) {
	assert.NoError(t, Check(form{Name: "Ann", Email: "ann@example.com", Role: "student"}, nil))
}
