package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - класс ошибки, по которому UI решает, что показать пользователю.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindCredentials     Kind = "credentials"
	KindRemote          Kind = "remote"
	KindPartial         Kind = "partial"
	KindForbidden       Kind = "forbidden"
	KindUnauthenticated Kind = "unauthenticated"
	KindConflict        Kind = "conflict"
	KindReauth          Kind = "reauth"
)

type Error struct {
	Kind    Kind
	Message string
	// Ошибки по полям формы (только для KindValidation)
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("validation failed (%d fields)", len(e.Fields))
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

// Field - ошибка одного поля формы.
func Field(name, message string) *Error {
	return Validation(map[string]string{name: message})
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "Необходимо войти в систему"}
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются сетевыми.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRemote
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status - HTTP-статус для ответа портала.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindCredentials, KindUnauthenticated, KindReauth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
