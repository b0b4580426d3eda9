package admin

import (
	"net/http"

	"github.com/s/eduPortal/internal/handlers"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/support"
)

// Service - консоль поддержки администратора.
type Service struct {
	*handlers.Handler
}

type ConsolePage struct {
	handlers.PageData
	Users    []support.Thread        `json:"users"`
	Selected models.ID               `json:"selected"`
	Thread   []models.SupportMessage `json:"thread"`
}

func (serv Service) consolePage(r *http.Request, ws *handlers.Workspace) ConsolePage {
	return ConsolePage{
		PageData: serv.Page(r, "Поддержка пользователей", ws.Session.Current()),
		Users:    ws.Console.Users(),
		Selected: ws.Console.Selected(),
		Thread:   ws.Console.Thread(),
	}
}

// GET /admin/support
func (serv Service) HandleSupportPage(w http.ResponseWriter, r *http.Request) {
	ws := serv.Workspace(w, r)
	if ws == nil {
		return
	}
	if err := ws.Console.Refresh(r.Context()); err != nil {
		serv.Fail(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, serv.consolePage(r, ws))
}

// POST /admin/support/select
func (serv Service) HandleSelectUser(w http.ResponseWriter, r *http.Request) {
	ws := serv.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		UserID models.ID `json:"user_id"`
	}
	if err := handlers.Decode(r, &req); err != nil {
		serv.Fail(w, r, err)
		return
	}
	if len(ws.Console.Users()) == 0 {
		if err := ws.Console.Refresh(r.Context()); err != nil {
			serv.Fail(w, r, err)
			return
		}
	}
	if err := ws.Console.Select(req.UserID); err != nil {
		serv.Fail(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, serv.consolePage(r, ws))
}

// POST /admin/support/reply
func (serv Service) HandleReply(w http.ResponseWriter, r *http.Request) {
	ws := serv.Workspace(w, r)
	if ws == nil {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := handlers.Decode(r, &req); err != nil {
		serv.Fail(w, r, err)
		return
	}
	if err := ws.Console.Reply(r.Context(), req.Text); err != nil {
		serv.Fail(w, r, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, serv.consolePage(r, ws))
}
