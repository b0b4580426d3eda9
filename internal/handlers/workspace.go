package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/s/eduPortal/internal/catalog"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/messaging"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
	"github.com/s/eduPortal/internal/support"
)

// workspaceKey - ключ id рабочей области в cookie.
const workspaceKey = "workspace"

// workspaceIdle - через сколько без запросов рабочая область выбрасывается.
const workspaceIdle = 12 * time.Hour

// Workspace - состояние страниц одного браузера: выбранный чат, загруженные уроки.
// Пользователь берется из cookie на каждом запросе и зеркалится в Session.
type Workspace struct {
	ID      string
	Session *session.Session

	Catalog     *catalog.ViewModel
	Chats       *messaging.ViewModel
	Console     *support.Console
	SupportChat *support.Chat

	ownerID  models.ID
	lastUsed time.Time
}

type Workspaces struct {
	gw  *gateway.Client
	log *logger.Logger
	now func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewWorkspaces(gw *gateway.Client, log *logger.Logger) *Workspaces {
	if log == nil {
		log = logger.Nop()
	}
	return &Workspaces{gw: gw, log: log, now: time.Now, items: map[string]*Workspace{}}
}

func (ws *Workspaces) build(id string) *Workspace {
	sess := session.New(&session.MemoryBackend{}, ws.log)
	log := ws.log.With("workspace", id)
	return &Workspace{
		ID:          id,
		Session:     sess,
		Catalog:     catalog.New(ws.gw, sess, log),
		Chats:       messaging.New(ws.gw, sess, log),
		Console:     support.NewConsole(ws.gw, sess, log),
		SupportChat: support.NewChat(ws.gw, sess, log),
	}
}

// Acquire возвращает рабочую область id для пользователя user.
// При смене пользователя состояние страниц пересоздается.
func (ws *Workspaces) Acquire(id string, user models.User) *Workspace {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	now := ws.now()
	for key, item := range ws.items {
		if now.Sub(item.lastUsed) > workspaceIdle {
			delete(ws.items, key)
		}
	}

	w, ok := ws.items[id]
	if !ok || w.ownerID != user.ID {
		w = ws.build(id)
		w.ownerID = user.ID
		ws.items[id] = w
	}
	w.lastUsed = now
	// память не отказывает, ошибку можно не проверять
	_ = w.Session.SetUser(user)
	return w
}

func (ws *Workspaces) Drop(id string) {
	ws.mu.Lock()
	delete(ws.items, id)
	ws.mu.Unlock()
}

func (ws *Workspaces) Len() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.items)
}

// Workspace - рабочая область вошедшего пользователя. nil, если пользователь не вошел
// (ответ 401 уже отправлен).
func (h *Handler) Workspace(w http.ResponseWriter, r *http.Request) *Workspace {
	user := h.CurrentUser(w, r)
	if user == nil {
		h.HandleUnauthorized(w, r)
		return nil
	}
	id := session.Value(h.Store, r, workspaceKey)
	if id == "" {
		id = uuid.NewString()
		if err := session.SetValue(h.Store, w, r, workspaceKey, id); err != nil {
			h.Log.Warn("workspace cookie save failed", "error", err)
		}
	}
	return h.Workspaces.Acquire(id, *user)
}

// ForgetWorkspace выбрасывает рабочую область браузера (выход, удаление аккаунта).
func (h *Handler) ForgetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := session.Value(h.Store, r, workspaceKey)
	if id == "" {
		return
	}
	h.Workspaces.Drop(id)
	if err := session.SetValue(h.Store, w, r, workspaceKey, ""); err != nil {
		h.Log.Warn("workspace cookie clear failed", "error", err)
	}
}
