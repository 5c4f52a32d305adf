package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatup/internal/domain"
)

// API is the slice of the HTTP client a Session needs.
type API interface {
	Contacts(ctx context.Context) ([]*domain.User, map[string]int, error)
	Conversation(ctx context.Context, peerID string) ([]*domain.Message, error)
	Send(ctx context.Context, peerID, text, image string) (*domain.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}

var _ API = (*Client)(nil)

type State int

const (
	NoConversationOpen State = iota
	ConversationOpen
)

func (s State) String() string {
	if s == ConversationOpen {
		return "conversation-open"
	}
	return "no-conversation-open"
}

// markSeenTimeout bounds the acknowledgement sent for a message that lands
// in the open conversation.
const markSeenTimeout = 5 * time.Second

// Session holds one signed-in user's chat state: contacts, who is online,
// unseen counts per sender and at most one open conversation. Push events
// reach it through the Bus.
type Session struct {
	self string
	api  API
	bus  *Bus
	log  zerolog.Logger

	mu       sync.Mutex
	contacts []*domain.User
	unseen   map[string]int
	online   []string
	view     *View
	unsubs   []func()
}

func NewSession(selfID string, api API, bus *Bus, logger zerolog.Logger) *Session {
	return &Session{
		self:   selfID,
		api:    api,
		bus:    bus,
		log:    logger.With().Str("component", "session").Str("user_id", selfID).Logger(),
		unseen: map[string]int{},
	}
}

// Start loads contacts and unseen counts and subscribes to push events.
// Calling it again is a reload: counts are replaced by the server's view.
func (s *Session) Start(ctx context.Context) error {
	contacts, unseen, err := s.api.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	s.mu.Lock()
	old := s.unsubs
	s.contacts = contacts
	s.unseen = make(map[string]int, len(unseen))
	for k, v := range unseen {
		s.unseen[k] = v
	}
	s.unsubs = []func(){
		s.bus.Subscribe(TopicNewMessage, func(p any) {
			if msg, ok := p.(*domain.Message); ok {
				s.onNewMessage(msg)
			}
		}),
		s.bus.Subscribe(TopicOnlineUsers, func(p any) {
			if ids, ok := p.([]string); ok {
				s.onOnline(ids)
			}
		}),
	}
	s.mu.Unlock()

	for _, u := range old {
		u()
	}
	return nil
}

// Stop unsubscribes from push events and closes any open conversation.
func (s *Session) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	view := s.view
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if view != nil {
		view.Close()
	}
}

func (s *Session) onNewMessage(msg *domain.Message) {
	if msg.SenderID == s.self {
		return
	}
	// The open view for this sender, if any, takes the message.
	if s.bus.Publish(ConversationTopic(msg.SenderID), msg) > 0 {
		return
	}
	s.countUnseen(msg.SenderID)
}

func (s *Session) countUnseen(peerID string) {
	s.mu.Lock()
	s.unseen[peerID]++
	n := s.unseen[peerID]
	s.mu.Unlock()
	s.bus.Publish(TopicUnseen, UnseenUpdate{PeerID: peerID, Count: n})
}

func (s *Session) onOnline(ids []string) {
	cp := append([]string(nil), ids...)
	s.mu.Lock()
	s.online = cp
	s.mu.Unlock()
}

// Open makes peerID the open conversation, closing any previous one. The
// history fetch marks the peer's messages seen on the server, so the local
// counter for peerID is reset.
func (s *Session) Open(ctx context.Context, peerID string) (*View, error) {
	s.mu.Lock()
	prev := s.view
	s.view = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	v := &View{session: s, peer: peerID}
	// Subscribe before fetching so a push racing the fetch is not counted
	// as unseen; duplicates are dropped by id.
	v.unsub = s.bus.Subscribe(ConversationTopic(peerID), func(p any) {
		if msg, ok := p.(*domain.Message); ok {
			v.receive(msg)
		}
	})

	history, err := s.api.Conversation(ctx, peerID)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	v.load(history)

	s.mu.Lock()
	delete(s.unseen, peerID)
	s.view = v
	s.mu.Unlock()
	return v, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != nil {
		return ConversationOpen
	}
	return NoConversationOpen
}

// Unseen returns a copy of the unseen counts keyed by sender id.
func (s *Session) Unseen() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unseen))
	for k, v := range s.unseen {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func (s *Session) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.online...)
}

func (s *Session) IsOnline(userID string) bool {
	for _, id := range s.Online() {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Session) Contacts() []*domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.User(nil), s.contacts...)
}

func (s *Session) viewClosed(v *View) {
	s.mu.Lock()
	if s.view == v {
		s.view = nil
	}
	s.mu.Unlock()
}

// View is one open conversation.
type View struct {
	session   *Session
	peer      string
	unsub     func()
	closeOnce sync.Once

	mu       sync.Mutex
	messages []*domain.Message
	ids      map[string]struct{}
	closed   bool
}

func (v *View) Peer() string { return v.peer }

// Messages returns the conversation log, oldest first.
func (v *View) Messages() []*domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*domain.Message(nil), v.messages...)
}

// Media returns the image URLs in the conversation, oldest first.
func (v *View) Media() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, m := range v.messages {
		if m.HasImage() {
			out = append(out, *m.Image)
		}
	}
	return out
}

// Send posts a message to the peer and appends the stored copy to the log.
func (v *View) Send(ctx context.Context, text, image string) (*domain.Message, error) {
	msg, err := v.session.api.Send(ctx, v.peer, text, image)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.appendLocked(msg)
	v.mu.Unlock()
	return msg, nil
}

// Close unsubscribes the view; later pushes from the peer count as unseen.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.unsub()
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.session.viewClosed(v)
	})
}

func (v *View) load(history []*domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pushed := v.messages
	v.messages = nil
	v.ids = make(map[string]struct{}, len(history)+len(pushed))
	for _, m := range history {
		v.appendLocked(m)
	}
	for _, m := range pushed {
		v.appendLocked(m)
	}
}

// receive handles a push from the peer while the view is open: the message
// is shown as seen and the server is told so.
func (v *View) receive(msg *domain.Message) {
	seen := *msg
	seen.Seen = true

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		// A publish that picked this view up before Close unsubscribed it
		// still has to be counted.
		v.session.countUnseen(msg.SenderID)
		return
	}
	added := v.appendLocked(&seen)
	v.mu.Unlock()
	if !added {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), markSeenTimeout)
	defer cancel()
	if err := v.session.api.MarkSeen(ctx, msg.ID); err != nil {
		v.session.log.Warn().Err(err).Str("message_id", msg.ID).Msg("mark seen failed")
	}
}

func (v *View) appendLocked(m *domain.Message) bool {
	if v.ids == nil {
		v.ids = make(map[string]struct{})
	}
	if _, dup := v.ids[m.ID]; dup {
		return false
	}
	v.ids[m.ID] = struct{}{}
	v.messages = append(v.messages, m)
	return true
}
