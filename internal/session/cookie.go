package session

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// CookieName - имя cookie портала.
const CookieName = "portal"

// NewCookieStore настраивает хранилище cookie так же для всех обработчиков.
// Cookie подписывается и шифруется: в ней лежит токен identity-провайдера.
func NewCookieStore(key []byte, secure bool) *sessions.CookieStore {
	blockKey := sha256.Sum256(key)
	store := sessions.NewCookieStore(key, blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// CookieBackend хранит запись пользователя в подписанной cookie браузера.
// Живет в пределах одного HTTP-запроса.
type CookieBackend struct {
	store sessions.Store
	w     http.ResponseWriter
	r     *http.Request
}

func NewCookieBackend(store sessions.Store, w http.ResponseWriter, r *http.Request) *CookieBackend {
	return &CookieBackend{store: store, w: w, r: r}
}

func (c *CookieBackend) session() *sessions.Session {
	// При неверной подписи gorilla отдает новую пустую сессию вместе с ошибкой
	sess, _ := c.store.Get(c.r, CookieName)
	return sess
}

func (c *CookieBackend) Read() ([]byte, error) {
	raw, ok := c.session().Values[UserKey].(string)
	if !ok || raw == "" {
		return nil, ErrNoRecord
	}
	return []byte(raw), nil
}

func (c *CookieBackend) Write(data []byte) error {
	sess := c.session()
	sess.Values[UserKey] = string(data)
	if err := sess.Save(c.r, c.w); err != nil {
		return fmt.Errorf("save cookie: %w", err)
	}
	return nil
}

func (c *CookieBackend) Remove() error {
	sess := c.session()
	delete(sess.Values, UserKey)
	if err := sess.Save(c.r, c.w); err != nil {
		return fmt.Errorf("save cookie: %w", err)
	}
	return nil
}

// Value/SetValue - прочие значения cookie-сессии (state OAuth, id рабочей области).
func Value(store sessions.Store, r *http.Request, key string) string {
	sess, _ := store.Get(r, CookieName)
	if sess == nil {
		return ""
	}
	v, _ := sess.Values[key].(string)
	return v
}

func SetValue(store sessions.Store, w http.ResponseWriter, r *http.Request, key, value string) error {
	sess, _ := store.Get(r, CookieName)
	if sess == nil {
		return fmt.Errorf("no cookie session")
	}
	if value == "" {
		delete(sess.Values, key)
	} else {
		sess.Values[key] = value
	}
	return sess.Save(r, w)
}
