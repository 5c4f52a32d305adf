package client

import "sync"

// Topics published by a Stream. Conversation topics are per peer.
const (
	TopicNewMessage  = "newMessage"
	TopicOnlineUsers = "getOnlineUsers"
)

// TopicUnseen is published by a Session with an UnseenUpdate after a
// sender's counter changes.
const TopicUnseen = "unseen"

type UnseenUpdate struct {
	PeerID string
	Count  int
}

func ConversationTopic(peerID string) string {
	return "conversation:" + peerID
}

// Bus is a small in-process pub/sub keyed by topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]func(any)
	next uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]func(any))}
}

// Subscribe registers fn for topic and returns a function that removes it.
// The returned function is idempotent.
func (b *Bus) Subscribe(topic string, fn func(any)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]func(any))
	}
	b.subs[topic][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Publish calls every subscriber of topic and returns how many there were.
// Handlers run outside the lock and may subscribe or unsubscribe.
func (b *Bus) Publish(topic string, payload any) int {
	b.mu.RLock()
	handlers := make([]func(any), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
	return len(handlers)
}
