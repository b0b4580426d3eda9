package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/logger"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

// Receipt - отметка о прочтении своего сообщения: одна галочка или две.
type Receipt string

const (
	ReceiptNone Receipt = ""
	ReceiptSent Receipt = "sent"
	ReceiptRead Receipt = "read"
)

// MessageView - сообщение в открытой переписке.
type MessageView struct {
	ID         models.ID   `json:"id"`
	AuthorID   models.ID   `json:"author_id"`
	AuthorName string      `json:"author_name,omitempty"`
	Text       string      `json:"text"`
	Self       bool        `json:"self"`
	CreatedAt  models.Time `json:"created_at"`
	Read       bool        `json:"read"`
	ReadAt     models.Time `json:"read_at"`
	Receipt    Receipt     `json:"receipt,omitempty"`
}

type Option func(*ViewModel)

// WithDispatcher задает, как запускать фоновые запросы (отметка о прочтении).
// По умолчанию - отдельная горутина.
func WithDispatcher(dispatch func(func())) Option {
	return func(vm *ViewModel) { vm.dispatch = dispatch }
}

func WithClock(now func() time.Time) Option {
	return func(vm *ViewModel) { vm.now = now }
}

// ViewModel - чаты пользователя: личные и групповые.
type ViewModel struct {
	gw       *gateway.Client
	sess     session.Reader
	log      *logger.Logger
	now      func() time.Time
	dispatch func(func())

	mu            sync.Mutex
	conversations []Conversation
	selected      *Key
	messages      []MessageView
	// Растет при каждой смене выбранной переписки; ответы старых запросов отбрасываются
	generation uint64
}

func New(gw *gateway.Client, sess session.Reader, log *logger.Logger, opts ...Option) *ViewModel {
	if log == nil {
		log = logger.Nop()
	}
	vm := &ViewModel{
		gw:       gw,
		sess:     sess,
		log:      log.With("component", "messaging"),
		now:      time.Now,
		dispatch: func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

func (vm *ViewModel) currentUser() (*models.User, error) {
	u := vm.sess.Current()
	if u == nil {
		return nil, apperr.Unauthenticated()
	}
	return u, nil
}

// Refresh перечитывает список личных чатов и групп пользователя.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	user, err := vm.currentUser()
	if err != nil {
		return err
	}

	var (
		direct []models.DirectChat
		groups []models.GroupChat
		g      errgroup.Group
	)
	g.Go(func() error {
		direct = vm.fetchDirect(ctx, user.ID)
		return nil
	})
	g.Go(func() error {
		groups = vm.fetchGroups(ctx, user.ID)
		return nil
	})
	_ = g.Wait()

	list := make([]Conversation, 0, len(direct)+len(groups))
	for _, c := range direct {
		list = append(list, directConversation(c, user.ID))
	}
	for _, gr := range groups {
		list = append(list, groupConversation(gr))
	}

	vm.mu.Lock()
	vm.conversations = list
	if vm.selected != nil && !vm.hasLocked(*vm.selected) {
		vm.clearSelectionLocked()
	}
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) fetchDirect(ctx context.Context, self models.ID) []models.DirectChat {
	chats, err := gateway.Fetch[models.DirectChat](ctx, vm.gw, "/chats",
		url.Values{"id_user1": {self.String()}, "id_user2": {self.String()}}, "chats")
	if err != nil {
		vm.log.Warn("direct chats fetch failed", "error", err)
		return nil
	}
	// Бэкенд может вернуть лишнее - оставляем только чаты пользователя
	out := chats[:0]
	for _, c := range chats {
		if c.Has(self) {
			out = append(out, c)
		}
	}
	return out
}

func (vm *ViewModel) fetchGroups(ctx context.Context, self models.ID) []models.GroupChat {
	groups, err := gateway.Fetch[models.GroupChat](ctx, vm.gw, "/group_chats",
		url.Values{"id_user": {self.String()}}, "groups", "group_chats")
	if err != nil {
		vm.log.Warn("group chats fetch failed", "error", err)
		return nil
	}
	out := groups[:0]
	for _, g := range groups {
		if g.Has(self) {
			out = append(out, g)
		}
	}
	return out
}

// Conversations - копия списка переписок.
func (vm *ViewModel) Conversations() []Conversation {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]Conversation(nil), vm.conversations...)
}

func (vm *ViewModel) Selected() (Conversation, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.selected == nil {
		return Conversation{}, false
	}
	return vm.findLocked(*vm.selected)
}

func (vm *ViewModel) Messages() []MessageView {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]MessageView(nil), vm.messages...)
}

// Known - есть ли переписка key в загруженном списке.
func (vm *ViewModel) Known(key Key) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.hasLocked(key)
}

// Select открывает переписку и загружает сообщения.
// В личном чате чужие непрочитанные сообщения сразу помечаются прочитанными.
func (vm *ViewModel) Select(ctx context.Context, key Key) error {
	user, err := vm.currentUser()
	if err != nil {
		return err
	}

	vm.mu.Lock()
	if _, ok := vm.findLocked(key); !ok {
		vm.mu.Unlock()
		return apperr.Field("chat", "Чат не найден")
	}
	selected := key
	vm.selected = &selected
	vm.messages = nil
	vm.generation++
	gen := vm.generation
	vm.mu.Unlock()

	vm.loadMessages(ctx, key, user.ID, gen)
	if key.Kind == KindDirect {
		vm.markRead(ctx, key, user.ID, gen)
	}
	return nil
}

// loadMessages загружает сообщения и применяет их, только если выбор не сменился.
func (vm *ViewModel) loadMessages(ctx context.Context, key Key, self models.ID, gen uint64) {
	views, err := vm.fetchMessages(ctx, key, self)
	if err != nil {
		vm.log.Warn("messages fetch failed", "chat", key.String(), "error", err)
		return
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.generation != gen {
		vm.log.Debug("stale messages dropped", "chat", key.String())
		return
	}
	vm.messages = views
}

func (vm *ViewModel) fetchMessages(ctx context.Context, key Key, self models.ID) ([]MessageView, error) {
	switch key.Kind {
	case KindDirect:
		msgs, err := gateway.Fetch[models.Message](ctx, vm.gw, "/messages", url.Values{"id_chat": {key.ID.String()}}, "messages")
		if err != nil {
			return nil, err
		}
		views := make([]MessageView, 0, len(msgs))
		for _, m := range msgs {
			v := MessageView{
				ID:        m.ID,
				AuthorID:  m.UserID,
				Text:      m.Text,
				Self:      m.UserID == self,
				CreatedAt: m.CreatedAt,
				Read:      m.IsRead(),
				ReadAt:    m.ReadTime,
			}
			if v.Self {
				v.Receipt = ReceiptSent
				if v.Read {
					v.Receipt = ReceiptRead
				}
			}
			views = append(views, v)
		}
		return views, nil
	case KindGroup:
		msgs, err := gateway.Fetch[models.GroupMessage](ctx, vm.gw, "/group_messages", url.Values{"id_group": {key.ID.String()}}, "messages", "group_messages")
		if err != nil {
			return nil, err
		}
		views := make([]MessageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, MessageView{
				ID:         m.ID,
				AuthorID:   m.UserID,
				AuthorName: m.SenderName,
				Text:       m.Text,
				Self:       m.UserID == self,
				CreatedAt:  m.CreatedAt,
			})
		}
		return views, nil
	default:
		return nil, fmt.Errorf("unknown conversation kind %q", key.Kind)
	}
}

// markRead - оптимистичная отметка о прочтении: локально флаги меняются сразу,
// запрос к бэкенду уходит в фоне, его ошибка только логируется.
// Время прочтения выставляется один раз.
func (vm *ViewModel) markRead(ctx context.Context, key Key, self models.ID, gen uint64) {
	vm.mu.Lock()
	if vm.generation != gen {
		vm.mu.Unlock()
		return
	}
	now := models.NewTime(vm.now())
	changed := false
	for i := range vm.messages {
		m := &vm.messages[i]
		if m.Self || m.Read {
			continue
		}
		m.Read = true
		if m.ReadAt.IsZero() {
			m.ReadAt = now
		}
		changed = true
	}
	vm.mu.Unlock()

	if !changed {
		return
	}
	bg := context.WithoutCancel(ctx)
	vm.dispatch(func() {
		_, err := vm.gw.PutForm(bg, "/messages", url.Values{
			"id_chat": {key.ID.String()},
			"id_user": {self.String()},
		})
		if err != nil {
			vm.log.Warn("mark read failed", "chat", key.String(), "error", err)
		}
	})
}

// Send отправляет сообщение в выбранную переписку и перечитывает сообщения.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	user, err := vm.currentUser()
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Field("text", "Введите сообщение")
	}

	vm.mu.Lock()
	if vm.selected == nil {
		vm.mu.Unlock()
		return apperr.Field("chat", "Выберите чат")
	}
	key := *vm.selected
	gen := vm.generation
	vm.mu.Unlock()

	switch key.Kind {
	case KindDirect:
		_, err = vm.gw.PostForm(ctx, "/messages", url.Values{
			"id_chat": {key.ID.String()},
			"id_user": {user.ID.String()},
			"text":    {text},
		})
	case KindGroup:
		_, err = vm.gw.PostForm(ctx, "/group_messages", url.Values{
			"id_group":    {key.ID.String()},
			"user_id":     {user.ID.String()},
			"text":        {text},
			"sender_name": {user.DisplayName()},
		})
	}
	if err != nil {
		vm.log.Warn("send failed", "chat", key.String(), "error", err)
		return apperr.New(apperr.KindRemote, "Ошибка при отправке сообщения", err)
	}

	vm.loadMessages(ctx, key, user.ID, gen)
	return nil
}

// Candidates - с кем можно начать чат: все, кроме себя и администраторов.
func (vm *ViewModel) Candidates(ctx context.Context) ([]models.User, error) {
	user, err := vm.currentUser()
	if err != nil {
		return nil, err
	}
	users, err := gateway.Fetch[models.User](ctx, vm.gw, "/users", nil, "users")
	if err != nil {
		vm.log.Warn("users fetch failed", "error", err)
		return []models.User{}, nil
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == user.ID || u.LooksLikeAdmin() {
			continue
		}
		u.Password = ""
		out = append(out, u)
	}
	return out, nil
}

// CreateDirect создает личный чат. Повторный чат с тем же собеседником не создается.
func (vm *ViewModel) CreateDirect(ctx context.Context, peer models.User) (Conversation, error) {
	user, err := vm.currentUser()
	if err != nil {
		return Conversation{}, err
	}
	if peer.ID == 0 || peer.ID == user.ID {
		return Conversation{}, apperr.Field("peer", "Выберите собеседника")
	}

	vm.mu.Lock()
	for _, c := range vm.conversations {
		if c.Direct != nil && c.Direct.Connects(user.ID, peer.ID) {
			vm.mu.Unlock()
			return Conversation{}, apperr.New(apperr.KindConflict, "Чат с этим пользователем уже существует", nil)
		}
	}
	vm.mu.Unlock()

	body, err := vm.gw.PostForm(ctx, "/chats", url.Values{
		"id_user1":   {user.ID.String()},
		"id_user2":   {peer.ID.String()},
		"name_user1": {user.DisplayName()},
		"name_user2": {peer.DisplayName()},
	})
	if err != nil {
		vm.log.Warn("create chat failed", "error", err)
		return Conversation{}, apperr.New(apperr.KindRemote, "Ошибка при создании чата", err)
	}

	var created struct {
		ID models.ID `json:"id_chat"`
	}
	if rec := gateway.ExtractRecord(body, "chat"); rec != nil {
		_ = json.Unmarshal(rec, &created)
	}

	if err := vm.Refresh(ctx); err != nil {
		return Conversation{}, err
	}
	conv, ok := vm.locate(func(c Conversation) bool {
		if created.ID != 0 {
			return c.Key == Key{Kind: KindDirect, ID: created.ID}
		}
		return c.Direct != nil && c.Direct.Connects(user.ID, peer.ID)
	})
	if !ok {
		return Conversation{}, apperr.New(apperr.KindRemote, "Созданный чат не найден", nil)
	}
	if err := vm.Select(ctx, conv.Key); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

type GroupForm struct {
	Name    string
	Members []models.User
}

// CreateGroup создает группу. Создатель всегда входит в участники.
func (vm *ViewModel) CreateGroup(ctx context.Context, form GroupForm) (Conversation, error) {
	user, err := vm.currentUser()
	if err != nil {
		return Conversation{}, err
	}

	members := make([]models.User, 0, len(form.Members)+1)
	seen := map[models.ID]bool{}
	for _, m := range form.Members {
		if m.ID == 0 || m.ID == user.ID || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		members = append(members, m)
	}
	if len(members) == 0 {
		return Conversation{}, apperr.Field("members", "Выберите хотя бы одного участника")
	}
	members = append(members, *user)

	name := strings.TrimSpace(form.Name)
	if name == "" {
		name = DefaultGroupName
	}

	payload := url.Values{"group_name": {name}}
	for i, m := range members {
		payload.Set(fmt.Sprintf("users[%d][id_user]", i), m.ID.String())
		payload.Set(fmt.Sprintf("users[%d][name_user]", i), m.DisplayName())
	}
	body, err := vm.gw.PostForm(ctx, "/group_chats", payload)
	if err != nil {
		vm.log.Warn("create group failed", "error", err)
		return Conversation{}, apperr.New(apperr.KindRemote, "Ошибка при создании группы", err)
	}

	var created struct {
		ID models.ID `json:"id_group"`
	}
	if rec := gateway.ExtractRecord(body, "group"); rec != nil {
		_ = json.Unmarshal(rec, &created)
	}

	if err := vm.Refresh(ctx); err != nil {
		return Conversation{}, err
	}
	var (
		conv Conversation
		ok   bool
	)
	if created.ID != 0 {
		conv, ok = vm.locate(func(c Conversation) bool {
			return c.Key == Key{Kind: KindGroup, ID: created.ID}
		})
	} else {
		// бэкенд не вернул id: из одноименных групп берем самую новую
		conv, ok = vm.newestGroup(name)
	}
	if !ok {
		return Conversation{}, apperr.New(apperr.KindRemote, "Созданная группа не найдена", nil)
	}
	if err := vm.Select(ctx, conv.Key); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// Delete удаляет переписку: сначала сообщения, потом сам чат.
// Если первый запрос не прошел, второй не отправляется.
func (vm *ViewModel) Delete(ctx context.Context, key Key, confirmed bool) error {
	if _, err := vm.currentUser(); err != nil {
		return err
	}
	if !confirmed {
		return apperr.Field("confirm", "Подтвердите удаление")
	}
	if _, ok := vm.locate(func(c Conversation) bool { return c.Key == key }); !ok {
		return apperr.Field("chat", "Чат не найден")
	}

	var messagesPath, chatPath string
	var messagesQuery url.Values
	switch key.Kind {
	case KindDirect:
		messagesPath, chatPath = "/messages", "/chats/"+key.ID.String()
		messagesQuery = url.Values{"id_chat": {key.ID.String()}}
	case KindGroup:
		messagesPath, chatPath = "/group_messages", "/group_chats/"+key.ID.String()
		messagesQuery = url.Values{"id_group": {key.ID.String()}}
	default:
		return apperr.Field("chat", "Чат не найден")
	}

	if _, err := vm.gw.Delete(ctx, messagesPath, messagesQuery); err != nil {
		vm.log.Warn("delete messages failed", "chat", key.String(), "error", err)
		return apperr.New(apperr.KindRemote, "Не удалось удалить чат", err)
	}
	if _, err := vm.gw.Delete(ctx, chatPath, nil); err != nil {
		vm.log.Warn("delete chat failed after messages removed", "chat", key.String(), "error", err)
		return apperr.New(apperr.KindPartial, "Сообщения удалены, но сам чат удалить не удалось", err)
	}

	vm.mu.Lock()
	kept := vm.conversations[:0]
	for _, c := range vm.conversations {
		if c.Key != key {
			kept = append(kept, c)
		}
	}
	vm.conversations = kept
	if vm.selected != nil && *vm.selected == key {
		vm.clearSelectionLocked()
	}
	vm.mu.Unlock()
	return nil
}

// RemoveMember исключает участника из группы. Если исключил себя - группа закрывается.
func (vm *ViewModel) RemoveMember(ctx context.Context, groupID, memberID models.ID, confirmed bool) error {
	user, err := vm.currentUser()
	if err != nil {
		return err
	}
	if !confirmed {
		return apperr.Field("confirm", "Подтвердите удаление участника")
	}
	key := Key{Kind: KindGroup, ID: groupID}
	if _, ok := vm.locate(func(c Conversation) bool { return c.Key == key }); !ok {
		return apperr.Field("chat", "Группа не найдена")
	}

	path := fmt.Sprintf("/group_chats/%s/%s", groupID, memberID)
	if _, err := vm.gw.Delete(ctx, path, nil); err != nil {
		vm.log.Warn("remove member failed", "chat", key.String(), "error", err)
		return apperr.New(apperr.KindRemote, "Не удалось удалить участника", err)
	}

	if memberID == user.ID {
		vm.mu.Lock()
		if vm.selected != nil && *vm.selected == key {
			vm.clearSelectionLocked()
		}
		vm.mu.Unlock()
	}
	return vm.Refresh(ctx)
}

func (vm *ViewModel) locate(match func(Conversation) bool) (Conversation, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, c := range vm.conversations {
		if match(c) {
			return c, true
		}
	}
	return Conversation{}, false
}

// newestGroup - группа name с наибольшим id.
func (vm *ViewModel) newestGroup(name string) (Conversation, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	var (
		best  Conversation
		found bool
	)
	for _, c := range vm.conversations {
		if c.Group == nil || c.Group.Name != name {
			continue
		}
		if !found || c.Key.ID > best.Key.ID {
			best, found = c, true
		}
	}
	return best, found
}

func (vm *ViewModel) findLocked(key Key) (Conversation, bool) {
	for _, c := range vm.conversations {
		if c.Key == key {
			return c, true
		}
	}
	return Conversation{}, false
}

func (vm *ViewModel) hasLocked(key Key) bool {
	_, ok := vm.findLocked(key)
	return ok
}

func (vm *ViewModel) clearSelectionLocked() {
	vm.selected = nil
	vm.messages = nil
	vm.generation++
}
