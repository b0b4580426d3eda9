package models

// DirectChat - личный чат двух пользователей.
type DirectChat struct {
	ID        ID     `gorm:"column:id_chat;primaryKey" json:"id_chat"`
	User1ID   ID     `gorm:"column:id_user1;index" json:"id_user1"`
	User2ID   ID     `gorm:"column:id_user2;index" json:"id_user2"`
	User1Name string `gorm:"column:name_user1" json:"name_user1"`
	User2Name string `gorm:"column:name_user2" json:"name_user2"`
	CreatedAt Time   `json:"created_at"`
}

func (DirectChat) TableName() string { return "chats" }

func (c DirectChat) Has(user ID) bool {
	return c.User1ID == user || c.User2ID == user
}

// Connects - чат именно между этими двумя пользователями (в любом порядке).
func (c DirectChat) Connects(a, b ID) bool {
	return (c.User1ID == a && c.User2ID == b) || (c.User1ID == b && c.User2ID == a)
}

// Peer возвращает id и имя собеседника для user.
func (c DirectChat) Peer(user ID) (ID, string) {
	if c.User1ID == user {
		return c.User2ID, c.User2Name
	}
	return c.User1ID, c.User1Name
}

// GroupChat - групповой чат.
type GroupChat struct {
	ID        ID            `gorm:"column:id_group;primaryKey" json:"id_group"`
	Name      string        `gorm:"column:group_name" json:"group_name"`
	Members   []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE;" json:"users"`
	CreatedAt Time          `json:"created_at"`
}

func (GroupChat) TableName() string { return "group_chats" }

func (g GroupChat) Has(user ID) bool {
	for _, m := range g.Members {
		if m.UserID == user {
			return true
		}
	}
	return false
}

// GroupMember - участник группы.
type GroupMember struct {
	ID      ID     `gorm:"primaryKey" json:"-"`
	GroupID ID     `gorm:"column:id_group;index" json:"-"`
	UserID  ID     `gorm:"column:id_user;index" json:"id_user"`
	Name    string `gorm:"column:name_user" json:"name_user"`
}

func (GroupMember) TableName() string { return "group_members" }

type ReadStatus string

const (
	StatusUnread ReadStatus = "unread"
	StatusRead   ReadStatus = "read"
)

// Message - сообщение личного чата.
type Message struct {
	ID         ID         `gorm:"column:id_message;primaryKey" json:"id_message"`
	ChatID     ID         `gorm:"column:id_chat;index" json:"id_chat"`
	UserID     ID         `gorm:"column:id_user" json:"id_user"`
	Text       string     `json:"text"`
	ReadStatus ReadStatus `gorm:"size:16" json:"read_status"`
	ReadTime   Time       `json:"read_time"`
	CreatedAt  Time       `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func (m Message) IsRead() bool {
	return m.ReadStatus == StatusRead
}

// GroupMessage - сообщение группового чата.
type GroupMessage struct {
	ID         ID     `gorm:"column:id_message;primaryKey" json:"id_message"`
	GroupID    ID     `gorm:"column:id_group;index" json:"id_group"`
	UserID     ID     `gorm:"column:user_id" json:"user_id"`
	SenderName string `gorm:"column:sender_name" json:"sender_name"`
	Text       string `json:"text"`
	CreatedAt  Time   `json:"created_at"`
}

func (GroupMessage) TableName() string { return "group_messages" }

// SupportMessage - сообщение в чате поддержки.
type SupportMessage struct {
	ID         ID     `gorm:"column:id_message;primaryKey" json:"id_message"`
	SenderID   ID     `gorm:"column:id_sender;index" json:"id_sender"`
	GetterID   ID     `gorm:"column:id_getter;index" json:"id_getter"`
	SenderName string `gorm:"column:name_sender" json:"name_sender"`
	Text       string `json:"text"`
	CreatedAt  Time   `json:"created_at"`
}

func (SupportMessage) TableName() string { return "support_messages" }

// FromAdmin - сообщение отправлено оператором поддержки.
func (m SupportMessage) FromAdmin() bool {
	return m.SenderID == SupportOperatorID
}

// Between - сообщение из переписки оператора с пользователем user.
func (m SupportMessage) Between(user ID) bool {
	return (m.SenderID == user && m.GetterID == SupportOperatorID) ||
		(m.SenderID == SupportOperatorID && m.GetterID == user)
}
