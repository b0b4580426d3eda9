package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/identity"
	"github.com/s/eduPortal/internal/messaging"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

// fakeBackend - минимальный REST-бэкенд для сценариев веб-слоя.
type fakeBackend struct {
	mu    sync.Mutex
	users []models.User
	chats []models.DirectChat
	posts map[string][]url.Values
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: []models.User{
			{ID: 2, Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: models.RoleStudent},
			{ID: 3, Name: "Tom", Email: "tom@example.com", Password: "secret1", Role: models.RoleTeacher},
		},
		posts: map[string][]url.Values{},
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)

	if r.Method == http.MethodPost {
		r.ParseForm()
		b.posts[r.URL.Path] = append(b.posts[r.URL.Path], r.PostForm)
		if r.URL.Path == "/users" {
			u := models.User{ID: models.ID(len(b.users) + 10), UID: r.PostForm.Get("uid"), Name: r.PostForm.Get("name"), Email: r.PostForm.Get("email"), Role: models.Role(r.PostForm.Get("role"))}
			b.users = append(b.users, u)
			enc.Encode(map[string]any{"status": 200, "user": u})
			return
		}
		enc.Encode(map[string]any{"status": 200})
		return
	}

	q := r.URL.Query()
	switch r.URL.Path {
	case "/users":
		if email := q.Get("email"); email != "" {
			for _, u := range b.users {
				if u.Email == email && u.Password == q.Get("password") {
					enc.Encode(map[string]any{"user": u})
					return
				}
			}
			enc.Encode(map[string]any{"user": nil})
			return
		}
		if uid := q.Get("uid"); uid != "" {
			var out []models.User
			for _, u := range b.users {
				if u.UID == uid {
					out = append(out, u)
				}
			}
			enc.Encode(map[string]any{"users": out})
			return
		}
		enc.Encode(map[string]any{"users": b.users})
	case "/courses":
		enc.Encode(map[string]any{"status": 200, "courses": []map[string]any{{"id": 1, "title": "Go"}}})
	case "/lessons":
		enc.Encode([]map[string]any{{"id": 10, "title": "Intro", "course_id": 1}})
	case "/chats":
		enc.Encode(map[string]any{"data": b.chats})
	case "/course_enrollments", "/lesson_progress", "/group_chats", "/messages", "/messages/support":
		enc.Encode(map[string]any{"data": []any{}})
	default:
		http.NotFound(w, r)
	}
}

type fakeFederated struct {
	account identity.Account
}

func (f *fakeFederated) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeFederated) Exchange(context.Context, string) (identity.Account, error) {
	return f.account, nil
}

type testPortal struct {
	h       *Handler
	router  *mux.Router
	backend *fakeBackend
	cookies map[string]*http.Cookie
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := session.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), false)
	federated := &fakeFederated{account: identity.Account{UID: "g-1", Email: "new@example.com", DisplayName: "New Person", IDToken: "idt"}}
	h := NewHandler(store, gateway.New(gateway.Options{BaseURL: srv.URL}), nil, federated, nil)

	r := mux.NewRouter()
	r.HandleFunc("/", h.HandleMain).Methods("GET")
	r.HandleFunc("/login", h.HandleLogin).Methods("POST")
	r.HandleFunc("/register", h.HandleRegister).Methods("POST")
	r.HandleFunc("/logout", h.HandleLogout).Methods("GET", "POST")
	r.HandleFunc("/auth/google/login", h.HandleGoogleLogin).Methods("GET")
	r.HandleFunc("/auth/google/callback", h.HandleGoogleCallback).Methods("GET")
	r.HandleFunc("/auth/google/role", h.HandleGoogleRole).Methods("POST")
	r.HandleFunc("/lessons", h.HandleLessons).Methods("GET")
	r.HandleFunc("/courses/{id}/enroll", h.HandleEnroll).Methods("POST")
	r.HandleFunc("/chats", h.HandleChats).Methods("GET")
	r.HandleFunc("/chats/select", h.HandleSelectChat).Methods("POST")

	return &testPortal{h: h, router: r, backend: backend, cookies: map[string]*http.Cookie{}}
}

func (p *testPortal) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range p.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)
	// последняя cookie с тем же именем главнее
	for _, c := range rec.Result().Cookies() {
		p.cookies[c.Name] = c
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestLoginStoresUserInCookie(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(http.MethodPost, "/login", map[string]string{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = p.do(http.MethodGet, "/", nil)
	var page PageData
	decodeBody(t, rec, &page)
	assert.True(t, page.IsAuthenticated)
	require.NotNil(t, page.User)
	assert.Equal(t, "Ann", page.User.Name)
	assert.Empty(t, page.User.Password)
	assert.True(t, page.Permissions.CanEnroll)
	assert.False(t, page.Permissions.CanAddLesson)
}

func TestLoginWrongPassword(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(http.MethodPost, "/login", map[string]string{"email": "ann@example.com", "password": "wrong-one"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, apperr.KindCredentials, body.Kind)
	assert.Equal(t, "Неправильный email или пароль", body.Error)
}

func TestLoginValidationErrors(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(http.MethodPost, "/login", map[string]string{"email": "", "password": "123"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")
}

func TestGuestSeesAllLessons(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(http.MethodGet, "/lessons", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page LessonsPage
	decodeBody(t, rec, &page)
	assert.False(t, page.IsAuthenticated)
	assert.Len(t, page.Courses, 1)
	require.Len(t, page.Lessons, 1)
	assert.Equal(t, "Intro", page.Lessons[0].Title)
	assert.Equal(t, 0, p.h.Workspaces.Len())
}

func TestRegisterRedirectsToLogin(t *testing.T) {
	p := newTestPortal(t)

	rec := p.do(http.MethodPost, "/register", map[string]string{
		"name": "Kate", "email": "kate@example.com", "password": "secret1", "confirmPassword": "secret1", "role": "student",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "/login", body["redirect"])
	p.backend.mu.Lock()
	posts := p.backend.posts["/users"]
	p.backend.mu.Unlock()
	require.Len(t, posts, 1)
	assert.Equal(t, "kate@example.com", posts[0].Get("email"))

	// регистрация не входит в систему
	var page PageData
	decodeBody(t, p.do(http.MethodGet, "/", nil), &page)
	assert.False(t, page.IsAuthenticated)
}

func TestEnrollThroughWorkspace(t *testing.T) {
	p := newTestPortal(t)
	require.Equal(t, http.StatusOK, p.do(http.MethodPost, "/login", map[string]string{"email": "ann@example.com", "password": "secret1"}).Code)

	rec := p.do(http.MethodGet, "/lessons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page LessonsPage
	decodeBody(t, rec, &page)
	assert.Len(t, page.Courses, 1)
	// студент без записи уроков не видит
	assert.Empty(t, page.Lessons)
	assert.Equal(t, 1, p.h.Workspaces.Len())

	rec = p.do(http.MethodPost, "/courses/1/enroll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p.backend.mu.Lock()
	posts := p.backend.posts["/course_enrollments"]
	p.backend.mu.Unlock()
	require.Len(t, posts, 1)
	assert.Equal(t, "2", posts[0].Get("user_id"))
	assert.Equal(t, "1", posts[0].Get("course_id"))
}

func TestSelectChatCreatedElsewhere(t *testing.T) {
	p := newTestPortal(t)
	require.Equal(t, http.StatusOK, p.do(http.MethodPost, "/login", map[string]string{"email": "ann@example.com", "password": "secret1"}).Code)
	p.backend.mu.Lock()
	p.backend.chats = []models.DirectChat{{ID: 1, User1ID: 2, User2ID: 3, User1Name: "Ann", User2Name: "Tom"}}
	p.backend.mu.Unlock()
	require.Equal(t, http.StatusOK, p.do(http.MethodGet, "/chats", nil).Code)

	// чат создан после загрузки списка
	p.backend.mu.Lock()
	p.backend.chats = append(p.backend.chats, models.DirectChat{ID: 4, User1ID: 3, User2ID: 2, User1Name: "Tom", User2Name: "Ann"})
	p.backend.mu.Unlock()

	rec := p.do(http.MethodPost, "/chats/select", map[string]any{"kind": "direct", "id": 4})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Selected *struct {
			Key   messaging.Key `json:"key"`
			Title string        `json:"title"`
		} `json:"selected"`
	}
	decodeBody(t, rec, &page)
	require.NotNil(t, page.Selected)
	assert.Equal(t, messaging.Key{Kind: messaging.KindDirect, ID: 4}, page.Selected.Key)
	assert.Equal(t, "Tom", page.Selected.Title)

	rec = p.do(http.MethodPost, "/chats/select", map[string]any{"kind": "direct", "id": 99})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLogoutDropsWorkspace(t *testing.T) {
	p := newTestPortal(t)
	require.Equal(t, http.StatusOK, p.do(http.MethodPost, "/login", map[string]string{"email": "ann@example.com", "password": "secret1"}).Code)
	require.Equal(t, http.StatusOK, p.do(http.MethodGet, "/chats", nil).Code)
	require.Equal(t, 1, p.h.Workspaces.Len())

	rec := p.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, p.h.Workspaces.Len())

	var page PageData
	decodeBody(t, p.do(http.MethodGet, "/", nil), &page)
	assert.False(t, page.IsAuthenticated)
}

func TestGoogleCallbackRejectsForeignState(t *testing.T) {
	p := newTestPortal(t)
	require.Equal(t, http.StatusTemporaryRedirect, p.do(http.MethodGet, "/auth/google/login", nil).Code)

	rec := p.do(http.MethodGet, "/auth/google/callback?state=forged&code=abc", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoogleNewAccountChoosesRole(t *testing.T) {
	p := newTestPortal(t)
	rec := p.do(http.MethodGet, "/auth/google/login", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := target.Query().Get("state")
	require.NotEmpty(t, state)

	rec = p.do(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var choice roleChoice
	decodeBody(t, rec, &choice)
	assert.Equal(t, "New Person", choice.Name)
	assert.Equal(t, models.Roles(), choice.Roles)
	assert.Contains(t, choice.Roles, models.RoleAdmin)

	rec = p.do(http.MethodPost, "/auth/google/role", map[string]string{"role": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page PageData
	decodeBody(t, rec, &page)
	require.NotNil(t, page.User)
	assert.Equal(t, models.RoleTeacher, page.User.Role)
	assert.Equal(t, models.ProviderGoogle, page.User.Provider)
	assert.Empty(t, page.User.IDToken)

	// выбор роли одноразовый
	rec = p.do(http.MethodPost, "/auth/google/role", map[string]string{"role": "teacher"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGoogleRoleWithoutPendingAccount(t *testing.T) {
	p := newTestPortal(t)
	rec := p.do(http.MethodPost, "/auth/google/role", map[string]string{"role": "student"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestFailMapsKindsToStatus(t *testing.T) {
	h := NewHandler(session.NewCookieStore([]byte("k"), false), nil, nil, nil, nil)
	cases := []struct {
		err  error
		code int
	}{
		{apperr.New(apperr.KindConflict, "Чат с этим пользователем уже существует", nil), http.StatusConflict},
		{apperr.Forbidden("нет"), http.StatusForbidden},
		{apperr.New(apperr.KindReauth, "войдите снова", nil), http.StatusUnauthorized},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		h.Fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), c.err)
		assert.Equal(t, c.code, rec.Code, c.err.Error())

		var body errorBody
		decodeBody(t, rec, &body)
		assert.NotEmpty(t, body.Error)
	}
}

func TestWorkspaceRebuiltForAnotherUser(t *testing.T) {
	ws := NewWorkspaces(nil, nil)
	first := ws.Acquire("w1", models.User{ID: 2, Name: "Ann"})
	same := ws.Acquire("w1", models.User{ID: 2, Name: "Ann"})
	other := ws.Acquire("w1", models.User{ID: 3, Name: "Tom"})

	assert.Same(t, first, same)
	assert.NotSame(t, first, other)
	assert.Equal(t, "Tom", other.Session.Current().Name)
}

func TestIdleWorkspacesEvicted(t *testing.T) {
	ws := NewWorkspaces(nil, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ws.now = func() time.Time { return now }
	ws.Acquire("old", models.User{ID: 2})

	now = now.Add(workspaceIdle + time.Minute)
	ws.Acquire("fresh", models.User{ID: 3})

	assert.Equal(t, 1, ws.Len())
}
