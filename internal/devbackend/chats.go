package devbackend

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/s/eduPortal/internal/models"
)

// ==========================================
// GET /chats?id_user1=&id_user2= -> {"data":[...]}
// POST /chats                    -> {"status":200,"data":{"id_chat":...}}
// ==========================================
func (s *Service) HandleChatsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getChats(w, r)
	case http.MethodPost:
		s.createChat(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) getChats(w http.ResponseWriter, r *http.Request) {
	var ids []models.ID
	for _, key := range []string{"id_user1", "id_user2"} {
		id, ok := idValue(r, key)
		if !ok {
			jsonError(w, "Invalid "+key, http.StatusBadRequest)
			return
		}
		if id != 0 {
			ids = append(ids, id)
		}
	}

	query := s.DB.Order("id_chat")
	if len(ids) > 0 {
		query = query.Where("id_user1 IN ? OR id_user2 IN ?", ids, ids)
	}
	var chats []models.DirectChat
	if err := query.Find(&chats).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": nonNil(chats)})
}

func (s *Service) createChat(w http.ResponseWriter, r *http.Request) {
	user1, ok := requiredID(w, r, "id_user1")
	if !ok {
		return
	}
	user2, ok := requiredID(w, r, "id_user2")
	if !ok {
		return
	}
	if user1 == user2 {
		jsonError(w, "Нельзя создать чат с самим собой", http.StatusBadRequest)
		return
	}

	var existing models.DirectChat
	err := s.DB.Where("(id_user1 = ? AND id_user2 = ?) OR (id_user1 = ? AND id_user2 = ?)", user1, user2, user2, user1).
		First(&existing).Error
	if err == nil {
		jsonError(w, "Чат уже существует", http.StatusConflict)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.dbError(w, r, err)
		return
	}

	chat := models.DirectChat{
		User1ID:   user1,
		User2ID:   user2,
		User1Name: strings.TrimSpace(r.FormValue("name_user1")),
		User2Name: strings.TrimSpace(r.FormValue("name_user2")),
	}
	if err := s.DB.Create(&chat).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, user1, "chats.create")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "data": chat})
}

// DELETE /chats/{id}
func (s *Service) HandleChatByIDAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res := s.DB.Where("id_chat = ?", id).Delete(&models.DirectChat{})
	if res.Error != nil {
		s.dbError(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		jsonError(w, "Chat not found", http.StatusNotFound)
		return
	}
	s.audit(r, 0, "chats.delete")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
}

// ==========================================
// GET /messages?id_chat=    -> {"messages":[...]}
// POST /messages            -> {"status":200,"message":{...}}
// PUT /messages             -> отметка о прочтении
// DELETE /messages?id_chat= -> удаление переписки
// ==========================================
func (s *Service) HandleMessagesAPI(w http.ResponseWriter, r *http.Request) {
	chatID, ok := requiredID(w, r, "id_chat")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		var msgs []models.Message
		if err := s.DB.Where("id_chat = ?", chatID).Order("created_at, id_message").Find(&msgs).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"messages": nonNil(msgs)})
	case http.MethodPost:
		s.createMessage(w, r, chatID)
	case http.MethodPut:
		s.markRead(w, r, chatID)
	case http.MethodDelete:
		if err := s.DB.Where("id_chat = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		s.audit(r, 0, "messages.delete")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) createMessage(w http.ResponseWriter, r *http.Request, chatID models.ID) {
	userID, ok := requiredID(w, r, "id_user")
	if !ok {
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		jsonError(w, "Text is required", http.StatusBadRequest)
		return
	}

	var chat models.DirectChat
	if err := s.DB.Where("id_chat = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(w, "Chat not found", http.StatusNotFound)
			return
		}
		s.dbError(w, r, err)
		return
	}
	if !chat.Has(userID) {
		jsonError(w, "Not a chat member", http.StatusForbidden)
		return
	}

	msg := models.Message{ChatID: chatID, UserID: userID, Text: text, ReadStatus: models.StatusUnread}
	if err := s.DB.Create(&msg).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	s.audit(r, userID, "messages.create")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "message": msg})
}

// markRead отмечает прочитанными сообщения собеседника.
// Уже прочитанные не трогаются, их read_time сохраняется.
func (s *Service) markRead(w http.ResponseWriter, r *http.Request, chatID models.ID) {
	userID, ok := requiredID(w, r, "id_user")
	if !ok {
		return
	}
	res := s.DB.Model(&models.Message{}).
		Where("id_chat = ? AND id_user <> ? AND (read_status IS NULL OR read_status <> ?)", chatID, userID, models.StatusRead).
		Updates(map[string]interface{}{
			"read_status": models.StatusRead,
			"read_time":   models.NewTime(s.now().UTC()),
		})
	if res.Error != nil {
		s.dbError(w, r, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "updated": res.RowsAffected})
}

// ==========================================
// GET /group_chats?id_user= -> {"groups":[...]}
// POST /group_chats         -> {"status":200,"id_group":...}
// ==========================================
func (s *Service) HandleGroupsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getGroups(w, r)
	case http.MethodPost:
		s.createGroup(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) getGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := idValue(r, "id_user")
	if !ok {
		jsonError(w, "Invalid id_user", http.StatusBadRequest)
		return
	}
	query := s.DB.Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).Order("id_group")
	if userID != 0 {
		query = query.Where("id_group IN (?)", s.DB.Model(&models.GroupMember{}).Select("id_group").Where("id_user = ?", userID))
	}
	var groups []models.GroupChat
	if err := query.Find(&groups).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": nonNil(groups)})
}

func (s *Service) createGroup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonError(w, "Invalid form", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.PostForm.Get("group_name"))
	if name == "" {
		jsonError(w, "group_name is required", http.StatusBadRequest)
		return
	}
	members := parseMembers(r.PostForm)
	if len(members) < 2 {
		jsonError(w, "В группе должно быть хотя бы два участника", http.StatusBadRequest)
		return
	}

	group := models.GroupChat{Name: name, Members: members}
	if err := s.DB.Create(&group).Error; err != nil {
		s.dbError(w, r, err)
		return
	}
	// Создатель - последний в списке участников
	s.audit(r, members[len(members)-1].UserID, "group_chats.create")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "id_group": group.ID})
}

// DELETE /group_chats/{id}
func (s *Service) HandleGroupByIDAPI(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var deleted int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id_group = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id_group = ?", id).Delete(&models.GroupChat{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		s.dbError(w, r, err)
		return
	}
	if deleted == 0 {
		jsonError(w, "Group not found", http.StatusNotFound)
		return
	}
	s.audit(r, 0, "group_chats.delete")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
}

// DELETE /group_chats/{id}/{userId}
func (s *Service) HandleGroupMemberAPI(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	res := s.DB.Where("id_group = ? AND id_user = ?", groupID, userID).Delete(&models.GroupMember{})
	if res.Error != nil {
		s.dbError(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		jsonError(w, "Member not found", http.StatusNotFound)
		return
	}
	s.audit(r, userID, "group_chats.leave")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
}

// ==========================================
// GET /group_messages?id_group=    -> [...] (голый массив)
// POST /group_messages             -> {"status":200,"message":{...}}
// DELETE /group_messages?id_group= -> удаление переписки
// ==========================================
func (s *Service) HandleGroupMessagesAPI(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requiredID(w, r, "id_group")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		var msgs []models.GroupMessage
		if err := s.DB.Where("id_group = ?", groupID).Order("created_at, id_message").Find(&msgs).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(msgs))
	case http.MethodPost:
		userID, ok := requiredID(w, r, "user_id")
		if !ok {
			return
		}
		text := strings.TrimSpace(r.FormValue("text"))
		if text == "" {
			jsonError(w, "Text is required", http.StatusBadRequest)
			return
		}
		var count int64
		if err := s.DB.Model(&models.GroupMember{}).Where("id_group = ? AND id_user = ?", groupID, userID).Count(&count).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		if count == 0 {
			jsonError(w, "Not a group member", http.StatusForbidden)
			return
		}
		msg := models.GroupMessage{
			GroupID:    groupID,
			UserID:     userID,
			SenderName: strings.TrimSpace(r.FormValue("sender_name")),
			Text:       text,
		}
		if err := s.DB.Create(&msg).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		s.audit(r, userID, "group_messages.create")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK, "message": msg})
	case http.MethodDelete:
		if err := s.DB.Where("id_group = ?", groupID).Delete(&models.GroupMessage{}).Error; err != nil {
			s.dbError(w, r, err)
			return
		}
		s.audit(r, 0, "group_messages.delete")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": http.StatusOK})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
