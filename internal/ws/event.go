package ws

// Server push event names.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)

// Event is a server-initiated push frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Handle is a live connection bound to a single user for its lifetime.
// Push must not block; it fails with an error wrapping domain.ErrDelivery
// when the event cannot be queued.
type Handle interface {
	ID() string
	UserID() string
	Push(ev Event) error
	Close() error
}
