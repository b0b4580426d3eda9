package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s/eduPortal/internal/apperr"
	"github.com/s/eduPortal/internal/gateway"
	"github.com/s/eduPortal/internal/models"
	"github.com/s/eduPortal/internal/session"
)

type call struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

type fakeBackend struct {
	mu       sync.Mutex
	users    []models.User
	chats    []models.DirectChat
	groups   []models.GroupChat
	messages []models.Message
	groupMsg []models.GroupMessage
	calls    []call
	fail     map[string]bool // "METHOD /path"
	nextID   models.ID
	// silentGroups - POST /group_chats не возвращает id_group
	silentGroups bool

	// gate задерживает GET /messages для id_chat=gateChat
	gateChat models.ID
	gate     chan struct{}
	arrived  chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: []models.User{
			{ID: 1, Name: "Support", Role: models.RoleAdmin},
			{ID: 5, Name: "Ann", Role: models.RoleStudent},
			{ID: 6, Name: "Bob", Role: models.RoleTeacher},
			{ID: 7, Name: "Cid", Role: models.RoleStudent},
			{ID: 8, Name: "Root", Role: "superadmin"},
		},
		chats: []models.DirectChat{
			{ID: 1, User1ID: 5, User2ID: 6, User1Name: "Ann", User2Name: "Bob"},
			{ID: 2, User1ID: 6, User2ID: 7, User1Name: "Bob", User2Name: "Cid"},
		},
		groups: []models.GroupChat{
			{ID: 1, Name: "Study", Members: []models.GroupMember{{UserID: 5, Name: "Ann"}, {UserID: 6, Name: "Bob"}}},
			{ID: 3, Name: "Other", Members: []models.GroupMember{{UserID: 7, Name: "Cid"}}},
		},
		messages: []models.Message{
			{ID: 1, ChatID: 1, UserID: 6, Text: "hi Ann", ReadStatus: models.StatusUnread},
			{ID: 2, ChatID: 1, UserID: 5, Text: "hi Bob", ReadStatus: models.StatusRead, ReadTime: models.NewTime(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))},
			{ID: 3, ChatID: 2, UserID: 7, Text: "not yours"},
		},
		groupMsg: []models.GroupMessage{{ID: 1, GroupID: 1, UserID: 6, SenderName: "Bob", Text: "group hello"}},
		fail:     map[string]bool{},
		nextID:   100,
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	b.mu.Lock()
	b.calls = append(b.calls, call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Form: r.PostForm})
	failing := b.fail[r.Method+" "+r.URL.Path]
	gated := r.Method == http.MethodGet && r.URL.Path == "/messages" && b.gate != nil && r.URL.Query().Get("id_chat") == b.gateChat.String()
	b.mu.Unlock()

	if failing {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if gated {
		b.arrived <- struct{}{}
		<-b.gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users":
		enc.Encode(map[string]any{"users": b.users})
	case r.Method == http.MethodGet && r.URL.Path == "/chats":
		enc.Encode(map[string]any{"data": b.chats})
	case r.Method == http.MethodGet && r.URL.Path == "/group_chats":
		enc.Encode(map[string]any{"groups": b.groups})
	case r.Method == http.MethodGet && r.URL.Path == "/messages":
		var out []models.Message
		for _, m := range b.messages {
			if m.ChatID.String() == r.URL.Query().Get("id_chat") {
				out = append(out, m)
			}
		}
		enc.Encode(map[string]any{"status": 200, "messages": out})
	case r.Method == http.MethodGet && r.URL.Path == "/group_messages":
		var out []models.GroupMessage
		for _, m := range b.groupMsg {
			if m.GroupID.String() == r.URL.Query().Get("id_group") {
				out = append(out, m)
			}
		}
		enc.Encode(out)
	case r.Method == http.MethodPut && r.URL.Path == "/messages":
		for i := range b.messages {
			m := &b.messages[i]
			if m.ChatID.String() == r.PostForm.Get("id_chat") && m.UserID.String() != r.PostForm.Get("id_user") && !m.IsRead() {
				m.ReadStatus = models.StatusRead
				m.ReadTime = models.NewTime(time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC))
			}
		}
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodPost && r.URL.Path == "/messages":
		chatID, _ := models.ParseID(r.PostForm.Get("id_chat"))
		userID, _ := models.ParseID(r.PostForm.Get("id_user"))
		b.nextID++
		b.messages = append(b.messages, models.Message{ID: b.nextID, ChatID: chatID, UserID: userID, Text: r.PostForm.Get("text"), ReadStatus: models.StatusUnread})
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodPost && r.URL.Path == "/group_messages":
		groupID, _ := models.ParseID(r.PostForm.Get("id_group"))
		userID, _ := models.ParseID(r.PostForm.Get("user_id"))
		b.nextID++
		b.groupMsg = append(b.groupMsg, models.GroupMessage{ID: b.nextID, GroupID: groupID, UserID: userID, SenderName: r.PostForm.Get("sender_name"), Text: r.PostForm.Get("text")})
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodPost && r.URL.Path == "/chats":
		u1, _ := models.ParseID(r.PostForm.Get("id_user1"))
		u2, _ := models.ParseID(r.PostForm.Get("id_user2"))
		b.nextID++
		b.chats = append(b.chats, models.DirectChat{ID: b.nextID, User1ID: u1, User2ID: u2, User1Name: r.PostForm.Get("name_user1"), User2Name: r.PostForm.Get("name_user2")})
		enc.Encode(map[string]any{"status": 200, "data": map[string]any{"id_chat": b.nextID}})
	case r.Method == http.MethodPost && r.URL.Path == "/group_chats":
		b.nextID++
		g := models.GroupChat{ID: b.nextID, Name: r.PostForm.Get("group_name")}
		for i := 0; ; i++ {
			id := r.PostForm.Get("users[" + itoa(i) + "][id_user]")
			if id == "" {
				break
			}
			uid, _ := models.ParseID(id)
			g.Members = append(g.Members, models.GroupMember{UserID: uid, Name: r.PostForm.Get("users[" + itoa(i) + "][name_user]")})
		}
		b.groups = append(b.groups, g)
		if b.silentGroups {
			enc.Encode(map[string]any{"status": 200})
			return
		}
		enc.Encode(map[string]any{"id_group": g.ID})
	case r.Method == http.MethodDelete && r.URL.Path == "/messages":
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodDelete && r.URL.Path == "/group_messages":
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/chats/"):
		id := strings.TrimPrefix(r.URL.Path, "/chats/")
		kept := b.chats[:0]
		for _, c := range b.chats {
			if c.ID.String() != id {
				kept = append(kept, c)
			}
		}
		b.chats = kept
		enc.Encode(map[string]any{"status": 200})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/group_chats/"):
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/group_chats/"), "/")
		for gi := range b.groups {
			g := &b.groups[gi]
			if g.ID.String() != parts[0] {
				continue
			}
			if len(parts) == 2 {
				members := g.Members[:0]
				for _, m := range g.Members {
					if m.UserID.String() != parts[1] {
						members = append(members, m)
					}
				}
				g.Members = members
			} else {
				b.groups = append(b.groups[:gi], b.groups[gi+1:]...)
			}
			break
		}
		enc.Encode(map[string]any{"status": 200})
	default:
		http.NotFound(w, r)
	}
}

func itoa(i int) string { return models.ID(i).String() }

func (b *fakeBackend) callsTo(method, path string) []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) mutatingPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		if c.Method != http.MethodGet {
			out = append(out, c.Method+" "+c.Path)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 3, 3, 9, 30, 0, 0, time.UTC)

func newViewModel(t *testing.T, backend *fakeBackend, self models.User) *ViewModel {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	sess := session.New(&session.MemoryBackend{}, nil)
	require.NoError(t, sess.SetUser(self))
	vm := New(gateway.New(gateway.Options{BaseURL: srv.URL}), sess, nil,
		WithDispatcher(func(f func()) { f() }),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, vm.Refresh(context.Background()))
	return vm
}

var ann = models.User{ID: 5, Name: "Ann", Role: models.RoleStudent}

func keys(convs []Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Key.String())
	}
	return out
}

func TestRefreshKeepsOnlyOwnConversations(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), ann)

	convs := vm.Conversations()

	assert.Equal(t, []string{"direct:1", "group:1"}, keys(convs))
	assert.Equal(t, "Bob", convs[0].Title)
	assert.Equal(t, "B", convs[0].Icon)
	assert.Equal(t, "Study", convs[1].Title)
	assert.Len(t, convs[1].Members(), 2)
}

func TestSelectDirectMarksReadOptimistically(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	require.NoError(t, vm.Select(context.Background(), Key{Kind: KindDirect, ID: 1}))

	msgs := vm.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Self)
	assert.True(t, msgs[0].Read)
	assert.Equal(t, fixedNow, msgs[0].ReadAt.Time)
	assert.True(t, msgs[1].Self)
	assert.Equal(t, ReceiptRead, msgs[1].Receipt)

	puts := backend.callsTo(http.MethodPut, "/messages")
	require.Len(t, puts, 1)
	assert.Equal(t, "1", puts[0].Form.Get("id_chat"))
	assert.Equal(t, "5", puts[0].Form.Get("id_user"))
}

func TestReadTimeIsNotOverwritten(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()

	require.NoError(t, vm.Select(ctx, Key{Kind: KindDirect, ID: 1}))
	require.NoError(t, vm.Select(ctx, Key{Kind: KindDirect, ID: 1}))

	msgs := vm.Messages()
	// Второй раз время прочтения пришло с бэкенда и не перезаписано локальным "сейчас"
	assert.Equal(t, time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC), msgs[0].ReadAt.Time)
	assert.Len(t, backend.callsTo(http.MethodPut, "/messages"), 1)
}

func TestMarkReadFailureIsOnlyLogged(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["PUT /messages"] = true
	vm := newViewModel(t, backend, ann)

	err := vm.Select(context.Background(), Key{Kind: KindDirect, ID: 1})

	require.NoError(t, err)
	assert.True(t, vm.Messages()[0].Read)
}

func TestSelectGroupHasNoReceipts(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	require.NoError(t, vm.Select(context.Background(), Key{Kind: KindGroup, ID: 1}))

	msgs := vm.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bob", msgs[0].AuthorName)
	assert.Equal(t, ReceiptNone, msgs[0].Receipt)
	assert.Empty(t, backend.callsTo(http.MethodPut, "/messages"))
}

func TestSelectUnknownConversation(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), ann)
	err := vm.Select(context.Background(), Key{Kind: KindDirect, ID: 2})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStaleMessagesAreDropped(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()

	backend.mu.Lock()
	backend.gateChat = 1
	backend.gate = make(chan struct{})
	backend.arrived = make(chan struct{}, 1)
	backend.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- vm.Select(ctx, Key{Kind: KindDirect, ID: 1}) }()
	<-backend.arrived

	require.NoError(t, vm.Select(ctx, Key{Kind: KindGroup, ID: 1}))
	close(backend.gate)
	require.NoError(t, <-done)

	msgs := vm.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "group hello", msgs[0].Text)
	sel, ok := vm.Selected()
	require.True(t, ok)
	assert.Equal(t, KindGroup, sel.Key.Kind)
	assert.Empty(t, backend.callsTo(http.MethodPut, "/messages"))
}

func TestSendDirectRefetches(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()
	require.NoError(t, vm.Select(ctx, Key{Kind: KindDirect, ID: 1}))

	require.NoError(t, vm.Send(ctx, "  see you  "))

	msgs := vm.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "see you", msgs[2].Text)
	assert.Equal(t, ReceiptSent, msgs[2].Receipt)
}

func TestSendGroupFields(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()
	require.NoError(t, vm.Select(ctx, Key{Kind: KindGroup, ID: 1}))

	require.NoError(t, vm.Send(ctx, "hello all"))

	posts := backend.callsTo(http.MethodPost, "/group_messages")
	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].Form.Get("id_group"))
	assert.Equal(t, "5", posts[0].Form.Get("user_id"))
	assert.Equal(t, "Ann", posts[0].Form.Get("sender_name"))
	assert.Len(t, vm.Messages(), 2)
}

func TestSendValidation(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), ann)
	ctx := context.Background()

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(vm.Send(ctx, "hello")), "no selection")
	require.NoError(t, vm.Select(ctx, Key{Kind: KindDirect, ID: 1}))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(vm.Send(ctx, "   ")))
}

func TestCreateDirectRejectsDuplicateWithoutNetwork(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	_, err := vm.CreateDirect(context.Background(), models.User{ID: 6, Name: "Bob"})

	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, backend.callsTo(http.MethodPost, "/chats"))
}

func TestCreateDirectSelectsNewChat(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	conv, err := vm.CreateDirect(context.Background(), models.User{ID: 7, Name: "Cid"})

	require.NoError(t, err)
	assert.Equal(t, "Cid", conv.Title)
	sel, ok := vm.Selected()
	require.True(t, ok)
	assert.Equal(t, conv.Key, sel.Key)

	post := backend.callsTo(http.MethodPost, "/chats")[0]
	assert.Equal(t, "Ann", post.Form.Get("name_user1"))
	assert.Equal(t, "Cid", post.Form.Get("name_user2"))
}

func TestCreateGroupAddsCreator(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	conv, err := vm.CreateGroup(context.Background(), GroupForm{Members: []models.User{{ID: 7, Name: "Cid"}}})

	require.NoError(t, err)
	assert.Equal(t, DefaultGroupName, conv.Title)
	form := backend.callsTo(http.MethodPost, "/group_chats")[0].Form
	assert.Equal(t, "7", form.Get("users[0][id_user]"))
	assert.Equal(t, "5", form.Get("users[1][id_user]"))
	assert.True(t, conv.Group.Has(5))
	sel, ok := vm.Selected()
	require.True(t, ok)
	assert.Equal(t, conv.Key, sel.Key)
}

func TestCreateGroupWithoutIDPicksNewestNamesake(t *testing.T) {
	backend := newFakeBackend()
	backend.silentGroups = true
	vm := newViewModel(t, backend, ann)

	// группа "Study" с id 1 уже есть у Ann
	conv, err := vm.CreateGroup(context.Background(), GroupForm{Name: "Study", Members: []models.User{{ID: 7, Name: "Cid"}}})

	require.NoError(t, err)
	assert.Equal(t, Key{Kind: KindGroup, ID: 101}, conv.Key)
	assert.True(t, conv.Group.Has(7))
	sel, ok := vm.Selected()
	require.True(t, ok)
	assert.Equal(t, conv.Key, sel.Key)
}

func TestCreateGroupNeedsAnotherMember(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	_, err := vm.CreateGroup(context.Background(), GroupForm{Name: "Solo", Members: []models.User{ann}})

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, backend.callsTo(http.MethodPost, "/group_chats"))
}

func TestDeleteSelectedGroupClearsSelection(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()
	key := Key{Kind: KindGroup, ID: 1}
	require.NoError(t, vm.Select(ctx, key))

	require.NoError(t, vm.Delete(ctx, key, true))

	_, ok := vm.Selected()
	assert.False(t, ok)
	assert.Empty(t, vm.Messages())
	assert.Equal(t, []string{"direct:1"}, keys(vm.Conversations()))
	assert.Equal(t, []string{"DELETE /group_messages", "DELETE /group_chats/1"}, backend.mutatingPaths())
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)

	err := vm.Delete(context.Background(), Key{Kind: KindDirect, ID: 1}, false)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, backend.mutatingPaths())
}

func TestDeleteStopsWhenMessagesDeleteFails(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["DELETE /messages"] = true
	vm := newViewModel(t, backend, ann)

	err := vm.Delete(context.Background(), Key{Kind: KindDirect, ID: 1}, true)

	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	assert.Empty(t, backend.callsTo(http.MethodDelete, "/chats/1"))
	assert.Len(t, vm.Conversations(), 2)
}

func TestDeletePartialFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["DELETE /chats/1"] = true
	vm := newViewModel(t, backend, ann)

	err := vm.Delete(context.Background(), Key{Kind: KindDirect, ID: 1}, true)

	assert.Equal(t, apperr.KindPartial, apperr.KindOf(err))
}

func TestRemoveSelfFromGroupDeselects(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()
	key := Key{Kind: KindGroup, ID: 1}
	require.NoError(t, vm.Select(ctx, key))

	require.NoError(t, vm.RemoveMember(ctx, 1, 5, true))

	_, ok := vm.Selected()
	assert.False(t, ok)
	assert.Equal(t, []string{"direct:1"}, keys(vm.Conversations()))
	assert.Len(t, backend.callsTo(http.MethodDelete, "/group_chats/1/5"), 1)
}

func TestRemoveOtherMemberKeepsSelection(t *testing.T) {
	backend := newFakeBackend()
	vm := newViewModel(t, backend, ann)
	ctx := context.Background()
	key := Key{Kind: KindGroup, ID: 1}
	require.NoError(t, vm.Select(ctx, key))

	require.NoError(t, vm.RemoveMember(ctx, 1, 6, true))

	sel, ok := vm.Selected()
	require.True(t, ok)
	assert.Len(t, sel.Members(), 1)
}

func TestCandidatesSkipSelfAndAdmins(t *testing.T) {
	vm := newViewModel(t, newFakeBackend(), ann)

	users, err := vm.Candidates(context.Background())

	require.NoError(t, err)
	var ids []models.ID
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []models.ID{6, 7}, ids)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("Group", "12")
	require.NoError(t, err)
	assert.Equal(t, Key{Kind: KindGroup, ID: 12}, key)

	_, err = ParseKey("channel", "1")
	assert.Error(t, err)
}
