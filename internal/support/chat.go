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

// ChatMessage - сообщение в чате пользователя с поддержкой.
type ChatMessage struct {
	models.SupportMessage
	FromSupport bool `json:"from_support"`
}

// Chat - чат пользователя с поддержкой.
type Chat struct {
	gw   *gateway.Client
	sess session.Reader
	log  *logger.Logger

	mu       sync.Mutex
	messages []ChatMessage
}

func NewChat(gw *gateway.Client, sess session.Reader, log *logger.Logger) *Chat {
	if log == nil {
		log = logger.Nop()
	}
	return &Chat{gw: gw, sess: sess, log: log.With("component", "support_chat")}
}

// Refresh перечитывает переписку текущего пользователя с оператором.
func (c *Chat) Refresh(ctx context.Context) error {
	u := c.sess.Current()
	if u == nil {
		return apperr.Unauthenticated()
	}
	me := u.ID.String()
	msgs, err := gateway.Fetch[models.SupportMessage](ctx, c.gw, messagesPath,
		url.Values{"id_getter": {me}, "id_sender": {me}}, "messages")
	if err != nil {
		c.log.Warn("support chat fetch failed", "error", err)
		msgs = nil
	}

	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.Between(u.ID) {
			continue
		}
		out = append(out, ChatMessage{SupportMessage: m, FromSupport: m.FromAdmin()})
	}

	c.mu.Lock()
	c.messages = out
	c.mu.Unlock()
	return nil
}

func (c *Chat) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatMessage(nil), c.messages...)
}

// Send пишет оператору и перечитывает переписку.
func (c *Chat) Send(ctx context.Context, text string) error {
	u := c.sess.Current()
	if u == nil {
		return apperr.Unauthenticated()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Field("text", "Введите сообщение")
	}

	_, err := c.gw.PostForm(ctx, messagesPath, url.Values{
		"id_sender":   {u.ID.String()},
		"id_getter":   {models.SupportOperatorID.String()},
		"name_sender": {u.DisplayName()},
		"text":        {text},
	})
	if err != nil {
		c.log.Warn("support message failed", "error", err)
		return apperr.New(apperr.KindRemote, "Ошибка при отправке сообщения", err)
	}
	return c.Refresh(ctx)
}
