package support

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

const (
	messagesPath = "/messages/support"
	// OperatorName - подпись ответов оператора
	OperatorName = "Support team"
)

// Thread - собеседник оператора в консоли поддержки.
type Thread struct {
	UserID models.ID `json:"user_id"`
	Name   string    `json:"name"`
}

// Console - консоль поддержки для администратора: общий журнал сообщений,
// разложенный по пользователям.
type Console struct {
	gw   *gateway.Client
	sess session.Reader
	log  *logger.Logger

	mu       sync.Mutex
	entries  []models.SupportMessage
	users    []Thread
	selected models.ID
}

func NewConsole(gw *gateway.Client, sess session.Reader, log *logger.Logger) *Console {
	if log == nil {
		log = logger.Nop()
	}
	return &Console{gw: gw, sess: sess, log: log.With("component", "support_console")}
}

func (c *Console) admin() error {
	u := c.sess.Current()
	if u == nil {
		return apperr.Unauthenticated()
	}
	if !u.Is(models.RoleAdmin) {
		return apperr.Forbidden("Консоль поддержки доступна только администратору")
	}
	return nil
}

// Refresh перечитывает весь журнал поддержки.
// Выбор сохраняется, если пользователь остался в списке, иначе выбирается первый.
func (c *Console) Refresh(ctx context.Context) error {
	if err := c.admin(); err != nil {
		return err
	}
	op := models.SupportOperatorID.String()
	msgs, err := gateway.Fetch[models.SupportMessage](ctx, c.gw, messagesPath,
		url.Values{"id_getter": {op}, "id_sender": {op}}, "messages")
	if err != nil {
		c.log.Warn("support log fetch failed", "error", err)
		msgs = nil
	}

	users := senders(msgs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = msgs
	c.users = users
	if !containsThread(users, c.selected) {
		c.selected = 0
		if len(users) > 0 {
			c.selected = users[0].UserID
		}
	}
	return nil
}

// senders - различные отправители, кроме оператора, в порядке первого появления.
func senders(msgs []models.SupportMessage) []Thread {
	seen := map[models.ID]bool{}
	out := []Thread{}
	for _, m := range msgs {
		if m.FromAdmin() || m.SenderID == 0 || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		name := strings.TrimSpace(m.SenderName)
		if name == "" {
			name = "Пользователь " + m.SenderID.String()
		}
		out = append(out, Thread{UserID: m.SenderID, Name: name})
	}
	return out
}

func containsThread(users []Thread, id models.ID) bool {
	if id == 0 {
		return false
	}
	for _, u := range users {
		if u.UserID == id {
			return true
		}
	}
	return false
}

func (c *Console) Users() []Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Thread(nil), c.users...)
}

// Selected - id выбранного пользователя, 0 если список пуст.
func (c *Console) Selected() models.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Console) Select(userID models.ID) error {
	if err := c.admin(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !containsThread(c.users, userID) {
		return apperr.Field("user", "Пользователь не найден")
	}
	c.selected = userID
	return nil
}

// Thread - переписка оператора с выбранным пользователем.
func (c *Console) Thread() []models.SupportMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []models.SupportMessage{}
	if c.selected == 0 {
		return out
	}
	for _, m := range c.entries {
		if m.Between(c.selected) {
			out = append(out, m)
		}
	}
	return out
}

// Reply отправляет ответ выбранному пользователю и перечитывает весь журнал.
func (c *Console) Reply(ctx context.Context, text string) error {
	if err := c.admin(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Field("text", "Введите сообщение")
	}
	to := c.Selected()
	if to == 0 {
		return apperr.Field("user", "Выберите пользователя")
	}

	_, err := c.gw.PostForm(ctx, messagesPath, url.Values{
		"id_sender":   {models.SupportOperatorID.String()},
		"id_getter":   {to.String()},
		"name_sender": {OperatorName},
		"text":        {text},
	})
	if err != nil {
		c.log.Warn("support reply failed", "user_id", to.String(), "error", err)
		return apperr.New(apperr.KindRemote, "Ошибка при отправке сообщения", err)
	}
	return c.Refresh(ctx)
}
