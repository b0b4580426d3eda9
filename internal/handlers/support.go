package handlers

import (
	"net/http"

	"github.com/s/eduPortal/internal/support"
)

type SupportPage struct {
	PageData
	Messages []support.ChatMessage `json:"messages"`
}

func (h *Handler) supportPage(r *http.Request, ws *Workspace) SupportPage {
	msgs := ws.SupportChat.Messages()
	if msgs == nil {
		msgs = []support.ChatMessage{}
	}
	return SupportPage{PageData: h.Page(r, "Поддержка", ws.Session.Current()), Messages: msgs}
}

// GET /support
func (h *Handler) HandleSupport(w http.ResponseWriter, r *http.Request) {
	ws := h.Workspace(w, r)
	if ws == nil {
		return
	}
	if err := ws.SupportChat.Refresh(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.supportPage(r, ws))
}

// POST /support
func (h *Handler) HandleSupportSend(w http.ResponseWriter, r *http.Request) {
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
	if err := ws.SupportChat.Send(r.Context(), req.Text); err != nil {
		h.Fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.supportPage(r, ws))
}
