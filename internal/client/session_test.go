package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatup/internal/domain"
)

type fakeAPI struct {
	mu       sync.Mutex
	contacts []*domain.User
	unseen   map[string]int
	history  map[string][]*domain.Message
	marked   []string
	sent     int
	failConv bool
}

func (f *fakeAPI) Contacts(ctx context.Context) ([]*domain.User, map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]int, len(f.unseen))
	for k, v := range f.unseen {
		cp[k] = v
	}
	return f.contacts, cp, nil
}

func (f *fakeAPI) Conversation(ctx context.Context, peerID string) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConv {
		return nil, errors.New("boom")
	}
	return f.history[peerID], nil
}

func (f *fakeAPI) Send(ctx context.Context, peerID, text, image string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	m := &domain.Message{ID: "sent-" + peerID, SenderID: "me", ReceiverID: peerID}
	if text != "" {
		m.Text = &text
	}
	if image != "" {
		m.Image = &image
	}
	return m, nil
}

func (f *fakeAPI) MarkSeen(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeAPI) markedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marked...)
}

func msgFrom(id, sender string) *domain.Message {
	text := "text " + id
	return &domain.Message{ID: id, SenderID: sender, ReceiverID: "me", Text: &text}
}

func newTestSession(t *testing.T, api *fakeAPI) (*Session, *Bus) {
	t.Helper()
	bus := NewBus()
	s := NewSession("me", api, bus, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s, bus
}

func TestSessionCountsUnseenWithoutOpenConversation(t *testing.T) {
	api := &fakeAPI{
		contacts: []*domain.User{{ID: "alice"}, {ID: "bob"}},
		unseen:   map[string]int{"alice": 2},
	}
	s, bus := newTestSession(t, api)

	assert.Equal(t, NoConversationOpen, s.State())
	assert.Equal(t, map[string]int{"alice": 2}, s.Unseen())
	assert.Len(t, s.Contacts(), 2)

	bus.Publish(TopicNewMessage, msgFrom("m1", "bob"))
	bus.Publish(TopicNewMessage, msgFrom("m2", "alice"))
	bus.Publish(TopicNewMessage, &domain.Message{ID: "m3", SenderID: "me", ReceiverID: "bob"})

	assert.Equal(t, map[string]int{"alice": 3, "bob": 1}, s.Unseen())
	assert.Empty(t, api.markedIDs())
}

func TestSessionOpenConversation(t *testing.T) {
	img := "/api/uploads/cat.png"
	api := &fakeAPI{
		unseen: map[string]int{"alice": 1, "bob": 1},
		history: map[string][]*domain.Message{
			"alice": {
				msgFrom("h1", "alice"),
				{ID: "h2", SenderID: "me", ReceiverID: "alice", Image: &img},
			},
		},
	}
	s, bus := newTestSession(t, api)

	view, err := s.Open(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ConversationOpen, s.State())
	assert.Equal(t, map[string]int{"bob": 1}, s.Unseen())
	assert.Len(t, view.Messages(), 2)
	assert.Equal(t, []string{img}, view.Media())

	t.Run("PushFromOpenPeerIsAppendedAndMarked", func(t *testing.T) {
		bus.Publish(TopicNewMessage, msgFrom("p1", "alice"))

		msgs := view.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, "p1", msgs[2].ID)
		assert.True(t, msgs[2].Seen)
		assert.Equal(t, []string{"p1"}, api.markedIDs())
		assert.Equal(t, map[string]int{"bob": 1}, s.Unseen())
	})

	t.Run("DuplicatePushIgnored", func(t *testing.T) {
		bus.Publish(TopicNewMessage, msgFrom("p1", "alice"))
		assert.Len(t, view.Messages(), 3)
		assert.Equal(t, []string{"p1"}, api.markedIDs())
	})

	t.Run("PushFromOtherPeerCounts", func(t *testing.T) {
		bus.Publish(TopicNewMessage, msgFrom("p2", "bob"))
		assert.Equal(t, map[string]int{"bob": 2}, s.Unseen())
		assert.Len(t, view.Messages(), 3)
	})

	t.Run("SendAppends", func(t *testing.T) {
		_, err := view.Send(context.Background(), "hey", "")
		require.NoError(t, err)
		assert.Len(t, view.Messages(), 4)
	})

	t.Run("ClosedViewNoLongerReceives", func(t *testing.T) {
		view.Close()
		view.Close()
		assert.Equal(t, NoConversationOpen, s.State())

		bus.Publish(TopicNewMessage, msgFrom("p3", "alice"))
		assert.Len(t, view.Messages(), 4)
		assert.Equal(t, map[string]int{"alice": 1, "bob": 2}, s.Unseen())
	})
}

func TestSessionOpenReplacesPreviousView(t *testing.T) {
	api := &fakeAPI{}
	s, bus := newTestSession(t, api)

	first, err := s.Open(context.Background(), "alice")
	require.NoError(t, err)
	second, err := s.Open(context.Background(), "bob")
	require.NoError(t, err)

	bus.Publish(TopicNewMessage, msgFrom("a1", "alice"))
	bus.Publish(TopicNewMessage, msgFrom("b1", "bob"))

	assert.Empty(t, first.Messages())
	assert.Len(t, second.Messages(), 1)
	assert.Equal(t, map[string]int{"alice": 1}, s.Unseen())
	assert.Equal(t, ConversationOpen, s.State())
}

func TestSessionOpenFailureLeavesNoView(t *testing.T) {
	api := &fakeAPI{failConv: true, unseen: map[string]int{"alice": 1}}
	s, bus := newTestSession(t, api)

	_, err := s.Open(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, NoConversationOpen, s.State())

	bus.Publish(TopicNewMessage, msgFrom("a1", "alice"))
	assert.Equal(t, map[string]int{"alice": 2}, s.Unseen())
}

func TestSessionTracksOnlineUsersAndReload(t *testing.T) {
	api := &fakeAPI{unseen: map[string]int{}}
	s, bus := newTestSession(t, api)

	bus.Publish(TopicOnlineUsers, []string{"alice", "me"})
	assert.Equal(t, []string{"alice", "me"}, s.Online())
	assert.True(t, s.IsOnline("alice"))
	assert.False(t, s.IsOnline("bob"))

	bus.Publish(TopicNewMessage, msgFrom("x", "bob"))
	assert.Equal(t, map[string]int{"bob": 1}, s.Unseen())

	// A reload takes the server's counts and does not double-subscribe.
	api.mu.Lock()
	api.unseen = map[string]int{"bob": 5}
	api.mu.Unlock()
	require.NoError(t, s.Start(context.Background()))
	bus.Publish(TopicNewMessage, msgFrom("y", "bob"))
	assert.Equal(t, map[string]int{"bob": 6}, s.Unseen())
}

func TestSessionCountsPushCaughtByClosingView(t *testing.T) {
	api := &fakeAPI{}
	s, bus := newTestSession(t, api)

	view, err := s.Open(context.Background(), "alice")
	require.NoError(t, err)

	// The view is marked closed while its subscription is still live, as
	// when a publish snapshot was taken just before Close unsubscribed.
	view.mu.Lock()
	view.closed = true
	view.mu.Unlock()

	bus.Publish(TopicNewMessage, msgFrom("a1", "alice"))
	assert.Empty(t, view.Messages())
	assert.Empty(t, api.markedIDs())
	assert.Equal(t, map[string]int{"alice": 1}, s.Unseen())

	view.Close()
	bus.Publish(TopicNewMessage, msgFrom("a2", "alice"))
	assert.Equal(t, map[string]int{"alice": 2}, s.Unseen())
}

func TestSessionPublishesUnseenUpdates(t *testing.T) {
	api := &fakeAPI{unseen: map[string]int{"bob": 2}}
	s, bus := newTestSession(t, api)

	var updates []UnseenUpdate
	unsub := bus.Subscribe(TopicUnseen, func(p any) {
		u, ok := p.(UnseenUpdate)
		require.True(t, ok)
		// The session's counter is already updated when listeners run.
		assert.Equal(t, u.Count, s.Unseen()[u.PeerID])
		updates = append(updates, u)
	})
	defer unsub()

	_, err := s.Open(context.Background(), "alice")
	require.NoError(t, err)

	bus.Publish(TopicNewMessage, msgFrom("b1", "bob"))
	bus.Publish(TopicNewMessage, msgFrom("a1", "alice"))

	assert.Equal(t, []UnseenUpdate{{PeerID: "bob", Count: 3}}, updates)
}
