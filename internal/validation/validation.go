package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/ru"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ru_translations "github.com/go-playground/validator/v10/translations/ru"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/models"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// собственные теги
	notBlankTag = "notblank"
	roleTag     = "role"
)

func init() {
	Validate = validator.New()

	_ru := ru.New()
	uni := ut.New(_ru, _ru)
	Translator, _ = uni.GetTranslator("ru")
	_ = ru_translations.RegisterDefaultTranslations(Validate, Translator)

	// В ошибках - имена полей формы (json), а не Go
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = Validate.RegisterValidation(roleTag, roleValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, roleTag} {
		_ = Validate.RegisterTranslation(tag, Translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "Поле не может быть пустым"
	case roleTag:
		return "Неизвестная роль"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func roleValidation(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, known := models.ParseRole(str)
	return known
}

// Messages - свои тексты ошибок: ключ "поле.тег" или просто "поле".
type Messages map[string]string

// Check проверяет форму и возвращает ошибку по полям (apperr.KindValidation).
// На каждое поле - одно сообщение, первое сработавшее правило.
func Check(form any, messages Messages) error {
	err := Validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.New(apperr.KindValidation, err.Error(), err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := fields[name]; seen {
			continue
		}
		if msg, ok := messages[name+"."+fe.Tag()]; ok {
			fields[name] = msg
			continue
		}
		if msg, ok := messages[name]; ok {
			fields[name] = msg
			continue
		}
		fields[name] = fe.Translate(Translator)
	}
	return apperr.Validation(fields)
}
