package messaging

import (
	"fmt"
	"strings"

	"github.com/s/eduPortal/internal/models"
)

// Kind - вид переписки. Все операции над перепиской выбирают поведение по Kind.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Key однозначно определяет переписку: id личных чатов и групп пересекаются.
type Key struct {
	Kind Kind      `json:"kind"`
	ID   models.ID `json:"id"`
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID.String()
}

func ParseKey(kind, id string) (Key, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	if k != KindDirect && k != KindGroup {
		return Key{}, fmt.Errorf("unknown conversation kind %q", kind)
	}
	parsed, err := models.ParseID(id)
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: k, ID: parsed}, nil
}

// Conversation - личный чат или группа. Заполнено ровно одно из Direct/Group.
type Conversation struct {
	Key    Key                `json:"key"`
	Title  string             `json:"title"`
	Icon   string             `json:"icon"`
	Direct *models.DirectChat `json:"direct,omitempty"`
	Group  *models.GroupChat  `json:"group,omitempty"`
}

// Заглушки названий
const (
	defaultGroupTitle  = "Группа"
	defaultDirectTitle = "Неизвестный"
	DefaultGroupName   = "Новая группа"
)

func directConversation(c models.DirectChat, self models.ID) Conversation {
	_, name := c.Peer(self)
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultDirectTitle
	}
	chat := c
	return Conversation{
		Key:    Key{Kind: KindDirect, ID: c.ID},
		Title:  name,
		Icon:   initial(name),
		Direct: &chat,
	}
}

func groupConversation(g models.GroupChat) Conversation {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		name = defaultGroupTitle
	}
	group := g
	return Conversation{
		Key:   Key{Kind: KindGroup, ID: g.ID},
		Title: name,
		Icon:  "👥",
		Group: &group,
	}
}

// Members - участники группы (для личного чата пусто).
func (c Conversation) Members() []models.GroupMember {
	if c.Group == nil {
		return nil
	}
	return append([]models.GroupMember(nil), c.Group.Members...)
}

func initial(name string) string {
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}
