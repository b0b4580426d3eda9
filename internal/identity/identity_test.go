package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newFirebaseServer(t *testing.T, handler func(method string, body map[string]any) (int, string)) *Firebase {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status, out := handler(r.URL.Path[1:], body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, out)
	}))
	t.Cleanup(srv.Close)
	return NewFirebase(FirebaseOptions{APIKey: "test-key", BaseURL: srv.URL})
}

func TestFirebaseSignUp(t *testing.T) {
	fb := newFirebaseServer(t, func(method string, body map[string]any) (int, string) {
		assert.Equal(t, "accounts:signUp", method)
		assert.Equal(t, "ann@example.com", body["email"])
		return 200, `{"localId":"uid-1","email":"ann@example.com","idToken":"tok"}`
	})

	acc, err := fb.SignUp(context.Background(), "ann@example.com", "secret1")

	require.NoError(t, err)
	assert.Equal(t, Account{UID: "uid-1", Email: "ann@example.com", IDToken: "tok"}, acc)
}

func TestFirebaseErrorMapping(t *testing.T) {
	cases := map[string]error{
		"EMAIL_EXISTS":                   ErrEmailExists,
		"INVALID_LOGIN_CREDENTIALS":      ErrInvalidCredentials,
		"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": ErrRecentLoginRequired,
		"WEAK_PASSWORD : Password should be at least 6 characters": ErrWeakPassword,
	}
	for message, want := range cases {
		t.Run(message, func(t *testing.T) {
			fb := newFirebaseServer(t, func(string, map[string]any) (int, string) {
				out, _ := json.Marshal(map[string]any{"error": map[string]any{"code": 400, "message": message}})
				return 400, string(out)
			})
			_, err := fb.SignIn(context.Background(), "a@b.c", "secret1")
			assert.True(t, errors.Is(err, want), "got %v", err)
		})
	}
}

func TestFirebaseDeleteNeedsToken(t *testing.T) {
	fb := NewFirebase(FirebaseOptions{APIKey: "k"})
	assert.ErrorIs(t, fb.DeleteAccount(context.Background(), ""), ErrRecentLoginRequired)
}

func TestFirebaseNotConfigured(t *testing.T) {
	var fb *Firebase
	_, err := fb.SignIn(context.Background(), "a@b.c", "secret1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewFirebase(FirebaseOptions{}).SignUp(context.Background(), "a@b.c", "secret1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGoogleExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			io.WriteString(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
		case "/userinfo":
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			io.WriteString(w, `{"id":"g-42","email":"g@example.com","name":"Gina"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := InitGoogleOAuthConfig("cid", "secret", "http://localhost/cb")
	cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g := NewGoogle(cfg, nil, nil)
	g.UserInfoURL = srv.URL + "/userinfo"

	acc, err := g.Exchange(context.Background(), "code-1")

	require.NoError(t, err)
	assert.Equal(t, Account{UID: "g-42", Email: "g@example.com", DisplayName: "Gina"}, acc)
	assert.Contains(t, g.AuthCodeURL("st-1"), "state=st-1")
}
