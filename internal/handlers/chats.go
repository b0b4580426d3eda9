package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/messaging"
	"github.com/s/eduPortal/internal/models"
)

// ChatsPage - страница чатов.
type ChatsPage struct {
	PageData
	Conversations []messaging.Conversation `json:"conversations"`
	Selected      *messaging.Conversation  `json:"selected,omitempty"`
	Messages      []messaging.MessageView  `json:"messages"`
}

func (h *Handler) chatsPage(r *http.Request, ws *Workspace) ChatsPage {
	page := ChatsPage{
		PageData:      h.Page(r, "Чаты", ws.Session.Current()),
		Conversations: ws.Chats.Conversations(),
		Messages:      ws.Chats.Messages(),
	}
	if sel, ok := ws.Chats.Selected(); ok {
		page.Selected = &sel
	}
	if page.Messages == nil {
		page.Messages = []messaging.MessageView{}
	}
	return page
}

func (h *Handler) ensureChats(r *http.Request, ws *Workspace) error {
	if len(ws.Chats.Conversations()) > 0 {
		return nil
	}
	return ws.Chats.Refresh(r.Context())
}

// ensureChat перечитывает список, если чата key в нем нет:
// его могли создать в другой вкладке или собеседник.
func (h *Handler) ensureChat(r *http.Request, ws *Workspace, key messaging.Key) error {
	if ws.Chats.Known(key) {
		return nil
	}
	return ws.Chats.Refresh(r.Context())
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

// GET /chats
func (h *Handler) HandleChats(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	if err := ws.Chats.Refresh(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}

// GET /chats/users
func (h *Handler) HandleChatCandidates(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	users, err := ws.Chats.Candidates(r.Context())
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// POST /chats/select
func (h *Handler) HandleSelectChat(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		Kind string    `json:"kind"`
		ID   models.ID `json:"id"`
	}
	if err := Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	key, err := messaging.ParseKey(req.Kind, req.ID.String())
	if err != nil {
		h.Fail(w, r, apperr.Field("kind", "Неизвестный вид чата"))
		return
	}
	if err := h.ensureChat(r, ws, key); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := ws.Chats.Select(r.Context(), key); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}

// GET /chats/messages - перечитать открытую переписку
func (h *Handler) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	if sel, ok := ws.Chats.Selected(); ok {
		if err := ws.Chats.Select(r.Context(), sel.Key); err != nil {
			h.Fail(w, r, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}

// POST /chats/messages
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := ws.Chats.Send(r.Context(), req.Text); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}

// candidatesByID находит выбранных пользователей среди доступных собеседников.
func (h *Handler) candidatesByID(r *http.Request, ws *Workspace, ids []models.ID) ([]models.User, error) {
	users, err := ws.Chats.Candidates(r.Context())
	if err != nil {
		return nil, err
	}
	byID := make(map[models.ID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, apperr.Field("users", "Пользователь не найден")
		}
		out = append(out, u)
	}
	return out, nil
}

// POST /chats/direct
func (h *Handler) HandleCreateDirect(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		UserID models.ID `json:"user_id"`
	}
	if err := Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.ensureChats(r, ws); err != nil {
		h.Fail(w, r, err)
		return
	}
	peers, err := h.candidatesByID(r, ws, []models.ID{req.UserID})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if _, err := ws.Chats.CreateDirect(r.Context(), peers[0]); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, h.chatsPage(r, ws))
}

// POST /chats/groups
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		Name    string      `json:"name"`
		UserIDs []models.ID `json:"user_ids"`
	}
	if err := Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	members, err := h.candidatesByID(r, ws, req.UserIDs)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if _, err := ws.Chats.CreateGroup(r.Context(), messaging.GroupForm{Name: req.Name, Members: members}); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, h.chatsPage(r, ws))
}

// DELETE /chats/{kind}/{id}?confirm=true
func (h *Handler) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	vars := mux.Vars(r)
	key, err := messaging.ParseKey(vars["kind"], vars["id"])
	if err != nil {
		jsonError(w, "Некорректный чат", http.StatusBadRequest)
		return
	}
	if err := h.ensureChat(r, ws, key); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := ws.Chats.Delete(r.Context(), key, confirmed(r)); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}

// DELETE /groups/{id}/members/{userId}?confirm=true
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	vars := mux.Vars(r)
	groupID, err := models.ParseID(vars["id"])
	if err != nil {
		jsonError(w, "Некорректный id группы", http.StatusBadRequest)
		return
	}
	memberID, err := models.ParseID(vars["userId"])
	if err != nil {
		jsonError(w, "Некорректный id участника", http.StatusBadRequest)
		return
	}
	if err := h.ensureChat(r, ws, messaging.Key{Kind: messaging.KindGroup, ID: groupID}); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := ws.Chats.RemoveMember(r.Context(), groupID, memberID, confirmed(r)); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.chatsPage(r, ws))
}
