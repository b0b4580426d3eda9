package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/s/eduPortal/internal/logger"
)

const firebaseBaseURL = "https://identitytoolkit.googleapis.com/v1"

// Firebase - клиент REST API Firebase Authentication (Identity Toolkit).
type Firebase struct {
	rest   *resty.Client
	apiKey string
	log    *logger.Logger
}

type FirebaseOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewFirebase(opts FirebaseOptions) *Firebase {
	if opts.BaseURL == "" {
		opts.BaseURL = firebaseBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Firebase{rest: rc, apiKey: opts.APIKey, log: opts.Logger.With("component", "firebase")}
}

type firebaseAuthResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
}

type firebaseErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *Firebase) SignUp(ctx context.Context, email, password string) (Account, error) {
	return f.passwordCall(ctx, "accounts:signUp", email, password)
}

func (f *Firebase) SignIn(ctx context.Context, email, password string) (Account, error) {
	return f.passwordCall(ctx, "accounts:signInWithPassword", email, password)
}

func (f *Firebase) DeleteAccount(ctx context.Context, idToken string) error {
	if idToken == "" {
		return ErrRecentLoginRequired
	}
	_, err := f.call(ctx, "accounts:delete", map[string]any{"idToken": idToken})
	return err
}

// SignInWithGoogle меняет Google id_token на учетную запись Firebase,
// чтобы uid совпадал с аккаунтами, созданными через email/пароль.
func (f *Firebase) SignInWithGoogle(ctx context.Context, googleIDToken, requestURI string) (Account, error) {
	postBody := url.Values{"id_token": {googleIDToken}, "providerId": {"google.com"}}.Encode()
	return f.call(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody,
		"requestUri":          requestURI,
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	})
}

func (f *Firebase) passwordCall(ctx context.Context, method, email, password string) (Account, error) {
	return f.call(ctx, method, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (f *Firebase) call(ctx context.Context, method string, body map[string]any) (Account, error) {
	if f == nil || f.apiKey == "" {
		return Account{}, ErrNotConfigured
	}

	var out firebaseAuthResponse
	var apiErr firebaseErrorResponse
	resp, err := f.rest.R().
		SetContext(ctx).
		SetQueryParam("key", f.apiKey).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + method)
	if err != nil {
		return Account{}, fmt.Errorf("firebase %s: %w", method, err)
	}
	if resp.IsError() {
		f.log.Warn("firebase call rejected", "method", method, "status", resp.StatusCode(), "reason", apiErr.Error.Message)
		return Account{}, mapFirebaseError(method, apiErr.Error.Message)
	}

	return Account{
		UID:         out.LocalID,
		Email:       out.Email,
		DisplayName: out.DisplayName,
		IDToken:     out.IDToken,
	}, nil
}

// mapFirebaseError: сообщения вида "WEAK_PASSWORD : Password should be at least 6 characters".
func mapFirebaseError(method, message string) error {
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	switch code {
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "WEAK_PASSWORD":
		return ErrWeakPassword
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "CREDENTIAL_TOO_OLD_LOGIN_AGAIN", "TOKEN_EXPIRED", "INVALID_ID_TOKEN":
		return ErrRecentLoginRequired
	case "USER_NOT_FOUND":
		return ErrUserNotFound
	default:
		return fmt.Errorf("firebase %s: %s", method, message)
	}
}
