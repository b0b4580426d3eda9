package devbackend

import (
	"net/http"
	"strings"

	"github.com/s/eduPortal/internal/models"
)

// ==========================================
// GET /messages/support?id_getter=&id_sender= -> {"status":200,"messages":[...]}
// POST /messages/support                      -> {"status":200,"message":{...}}
// ==========================================
func (s *Service) HandleSupportAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getSupportMessages(w, r)
	case http.MethodPost:
		s.createSupportMessage(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Сообщения, где пользователь отправитель или получатель.
// Для оператора (id 1) это весь журнал поддержки.
func (s *Service) getSupportMessages(w http.ResponseWriter, r *http.Request) {
	getter, ok := idValue(r, "id_getter")
	if !ok {
		jsonError(w, "Invalid id_getter", http.StatusBadRequest)
		return
	}
	sender, ok := idValue(r, "id_sender")
	if !ok {
		jsonError(w, "Invalid id_sender", http.StatusBadRequest)
		return
	}

	query := s.DB.Order("created_at, id_message")
	switch {
	case getter != 0 && sender != 0:
		query = query.Where("id_getter = ? OR id_sender = ?", getter, sender)
	case getter != 0:
		query = query.Where("id_getter = ?", getter)
	case sender != 0:
		query = query.Where("id_sender = ?", sender)
	}
	var msgs []models.SupportMessage
	if err := query.Find(&msgs).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "messages": nonNil(msgs)})
}

func (s *Service) createSupportMessage(w http.ResponseWriter, r *http.Request) {
	sender, ok := requiredID(w, r, "id_sender")
	if !ok {
		return
	}
	getter, ok := requiredID(w, r, "id_getter")
	if !ok {
		return
	}
	// Переписка идет только с оператором
	if sender != models.SupportOperatorID && getter != models.SupportOperatorID {
		jsonError(w, "Support messages go to or from the operator", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		jsonError(w, "Text is required", http.StatusBadRequest)
		return
	}

	msg := models.SupportMessage{
		SenderID:   sender,
		GetterID:   getter,
		SenderName: strings.TrimSpace(r.FormValue("name_sender")),
		Text:       text,
	}
	if err := s.DB.Create(&msg).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, sender, "support.send")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "message": msg})
}
