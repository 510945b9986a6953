package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/api"
	"vesta/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotificationAPI struct {
	items   []*store.Notification
	fail    error
	marked  atomic.Int32
	markAll atomic.Int32
}

func (f *fakeNotificationAPI) Notifications(context.Context) ([]*store.Notification, error) {
	out := make([]*store.Notification, len(f.items))
	for i, it := range f.items {
		cp := *it
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeNotificationAPI) MarkNotificationRead(context.Context, string) error {
	f.marked.Add(1)
	return f.fail
}

func (f *fakeNotificationAPI) MarkAllNotificationsRead(context.Context) (int, error) {
	f.markAll.Add(1)
	return 0, f.fail
}

func threeUnread() *fakeNotificationAPI {
	return &fakeNotificationAPI{items: []*store.Notification{
		{ID: "n1", Title: "a"},
		{ID: "n2", Title: "b"},
		{ID: "n3", Title: "c"},
		{ID: "n4", Title: "d", Read: true},
	}}
}

func TestNotificationLoad(t *testing.T) {
	nc := NewNotificationCenter(threeUnread(), quietLogger())
	require.NoError(t, nc.Load(context.Background()))
	assert.Equal(t, 3, nc.Unread())
	assert.Len(t, nc.Items(), 4)
}

func TestNotificationPush(t *testing.T) {
	nc := NewNotificationCenter(threeUnread(), quietLogger())
	require.NoError(t, nc.Load(context.Background()))

	nc.Push(&store.Notification{ID: "n5"})
	nc.Push(&store.Notification{ID: "n6", Read: true})
	assert.Equal(t, 4, nc.Unread())
	items := nc.Items()
	assert.Equal(t, "n6", items[0].ID)
	assert.Equal(t, "n5", items[1].ID)

	nc.HandlePush("/topic/notifications/u1", []byte(`{"id":"n7","title":"x"}`))
	nc.HandlePush("/topic/notifications/u1", []byte(`"not an object"`))
	assert.Equal(t, 5, nc.Unread())
}

func TestMarkReadConcurrent(t *testing.T) {
	fake := threeUnread()
	nc := NewNotificationCenter(fake, quietLogger())
	require.NoError(t, nc.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nc.MarkRead(context.Background(), "n1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, nc.Unread())
	assert.Equal(t, int32(1), fake.marked.Load())
}

func TestMarkReadFloor(t *testing.T) {
	fake := &fakeNotificationAPI{items: []*store.Notification{{ID: "n1"}}}
	nc := NewNotificationCenter(fake, quietLogger())
	require.NoError(t, nc.Load(context.Background()))

	nc.MarkRead(context.Background(), "n1")
	nc.MarkRead(context.Background(), "n1")
	nc.MarkRead(context.Background(), "missing")
	assert.Zero(t, nc.Unread())
}

func TestMarkReadDoubleEntry(t *testing.T) {
	fake := threeUnread()
	nc := NewNotificationCenter(fake, quietLogger())
	require.NoError(t, nc.Load(context.Background()))

	nc.Push(&store.Notification{ID: "n1", Title: "a"})
	require.Equal(t, 4, nc.Unread())
	require.Len(t, nc.Items(), 5)

	nc.MarkRead(context.Background(), "n1")
	assert.Equal(t, 2, nc.Unread())
	unread := 0
	for _, it := range nc.Items() {
		if !it.Read {
			unread++
		}
	}
	assert.Equal(t, unread, nc.Unread())
	assert.Equal(t, int32(1), fake.marked.Load())
}

func TestMarkReadKeepsLocalOnFailure(t *testing.T) {
	fake := threeUnread()
	fake.fail = errors.New("offline")
	nc := NewNotificationCenter(fake, quietLogger())
	require.NoError(t, nc.Load(context.Background()))

	nc.MarkRead(context.Background(), "n2")
	assert.Equal(t, 2, nc.Unread())
	assert.True(t, nc.Items()[1].Read)
}

func TestPushForOpenConversation(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	ctx := context.Background()
	require.NoError(t, cs.Load(ctx))
	_, err := cs.Open(ctx, "c1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		item   store.Notification
		unread bool
	}{
		{name: "message in open conversation", item: store.Notification{ID: "a", Type: store.NotificationMessage, RefID: "c1"}, unread: false},
		{name: "message in other conversation", item: store.Notification{ID: "b", Type: store.NotificationMessage, RefID: "c2"}, unread: true},
		{name: "message without conversation", item: store.Notification{ID: "c", Type: store.NotificationMessage}, unread: true},
		{name: "other type with open ref", item: store.Notification{ID: "d", Type: store.NotificationFavorite, RefID: "c1"}, unread: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc := NewNotificationCenter(&fakeNotificationAPI{}, quietLogger())
			nc.SetConversationOpen(cs.IsOpen)
			item := tt.item
			nc.Push(&item)

			want := 0
			if tt.unread {
				want = 1
			}
			assert.Equal(t, want, nc.Unread())
			assert.Equal(t, !tt.unread, nc.Items()[0].Read)
		})
	}

	cs.Close()
	nc := NewNotificationCenter(&fakeNotificationAPI{}, quietLogger())
	nc.SetConversationOpen(cs.IsOpen)
	nc.Push(&store.Notification{ID: "e", Type: store.NotificationMessage, RefID: "c1"})
	assert.Equal(t, 1, nc.Unread())
}

func TestMarkAllRead(t *testing.T) {
	fake := threeUnread()
	nc := NewNotificationCenter(fake, quietLogger())
	require.NoError(t, nc.Load(context.Background()))
	require.Equal(t, 3, nc.Unread())

	nc.MarkAllRead(context.Background())
	assert.Zero(t, nc.Unread())
	assert.Equal(t, int32(1), fake.markAll.Load())
	for _, it := range nc.Items() {
		assert.True(t, it.Read, it.ID)
	}
}

type fakeConversationAPI struct {
	mu      sync.Mutex
	list    []store.ConversationView
	threads map[string]*api.Thread
	marks   map[string]int
}

func (f *fakeConversationAPI) Conversations(context.Context) ([]store.ConversationView, error) {
	return append([]store.ConversationView(nil), f.list...), nil
}

func (f *fakeConversationAPI) Thread(_ context.Context, id string) (*api.Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return nil, &api.APIError{Status: 404}
	}
	return t, nil
}

func (f *fakeConversationAPI) MarkConversationRead(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[id]++
	return 1, nil
}

func (f *fakeConversationAPI) markCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[id]
}

func newConversationFixture() *fakeConversationAPI {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &fakeConversationAPI{
		list: []store.ConversationView{
			{ID: "c1", UnreadCount: 2, UpdatedAt: base},
			{ID: "c2", UnreadCount: 1, UpdatedAt: base.Add(time.Hour)},
		},
		threads: map[string]*api.Thread{
			"c1": {
				Conversation: store.ConversationView{ID: "c1"},
				Messages:     []*store.Message{{ID: "m1", ConversationID: "c1", SenderID: "u2"}},
			},
		},
		marks: map[string]int{},
	}
}

func msg(id, conv string, at time.Time) *store.Message {
	return &store.Message{ID: id, ConversationID: conv, SenderID: "u2", ReceiverID: "u1", CreatedAt: at}
}

func TestConversationsLoadSorted(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	require.NoError(t, cs.Load(context.Background()))

	list := cs.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	assert.Equal(t, 3, cs.TotalUnread())
}

func TestOpenConversationStaysRead(t *testing.T) {
	fake := newConversationFixture()
	cs := NewConversations(fake, "u1", quietLogger())
	ctx := context.Background()
	require.NoError(t, cs.Load(ctx))

	thread, err := cs.Open(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, 1, cs.TotalUnread())
	assert.Equal(t, 1, fake.markCount("c1"))

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	cs.Push(ctx, msg("m2", "c1", now))
	cs.Push(ctx, msg("m3", "c1", now.Add(time.Second)))

	assert.Equal(t, 1, cs.TotalUnread())
	assert.Len(t, cs.Thread(), 3)
	assert.Equal(t, 3, fake.markCount("c1"))
	assert.Equal(t, "c1", cs.List()[0].ID)
	for _, v := range cs.List() {
		if v.ID == "c1" {
			assert.Zero(t, v.UnreadCount)
		}
	}
}

func TestPushToOtherConversationCounts(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	ctx := context.Background()
	require.NoError(t, cs.Load(ctx))
	_, err := cs.Open(ctx, "c1")
	require.NoError(t, err)

	cs.Push(ctx, msg("m9", "c2", time.Now()))
	assert.Equal(t, 2, cs.TotalUnread())

	cs.Push(ctx, msg("m10", "c-new", time.Now().Add(time.Minute)))
	assert.Equal(t, 3, cs.TotalUnread())
	assert.Equal(t, "c-new", cs.List()[0].ID)
}

func TestOwnMessagesDoNotCount(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	require.NoError(t, cs.Load(context.Background()))

	own := msg("m5", "c2", time.Now())
	own.SenderID = "u1"
	cs.Push(context.Background(), own)
	assert.Equal(t, 3, cs.TotalUnread())
}

func TestCloseConversation(t *testing.T) {
	fake := newConversationFixture()
	cs := NewConversations(fake, "u1", quietLogger())
	ctx := context.Background()
	require.NoError(t, cs.Load(ctx))
	_, err := cs.Open(ctx, "c1")
	require.NoError(t, err)

	cs.Close()
	assert.Empty(t, cs.OpenID())
	cs.Push(ctx, msg("m2", "c1", time.Now()))
	assert.Equal(t, 2, cs.TotalUnread())
	assert.Empty(t, cs.Thread())
}

func TestOpenMissingConversation(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	_, err := cs.Open(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, 404))
}

func TestConversationHandlePush(t *testing.T) {
	cs := NewConversations(newConversationFixture(), "u1", quietLogger())
	require.NoError(t, cs.Load(context.Background()))

	cs.HandlePush("/topic/messages/u1", []byte(`{"id":"m7","conversationId":"c1","senderId":"u2","content":"hi"}`))
	cs.HandlePush("/topic/messages/u1", []byte(`[1,2]`))
	assert.Equal(t, 4, cs.TotalUnread())
}
