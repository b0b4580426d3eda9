package identity

import (
	"context"
	"errors"
)

// Account - учетная запись у identity-провайдера.
type Account struct {
	UID         string
	Email       string
	DisplayName string
	// Токен сессии провайдера (нужен для удаления аккаунта)
	IDToken string
}

var (
	ErrNotConfigured       = errors.New("identity: provider not configured")
	ErrInvalidCredentials  = errors.New("identity: invalid credentials")
	ErrEmailExists         = errors.New("identity: email already registered")
	ErrWeakPassword        = errors.New("identity: weak password")
	ErrRecentLoginRequired = errors.New("identity: recent login required")
	ErrUserNotFound        = errors.New("identity: user not found")
)

// PasswordProvider - вход и регистрация по email и паролю.
type PasswordProvider interface {
	SignUp(ctx context.Context, email, password string) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
	DeleteAccount(ctx context.Context, idToken string) error
}

// FederatedProvider - вход через внешний аккаунт (Google).
type FederatedProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Account, error)
}
