package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListExcept(ctx context.Context, id string) ([]*User, error)
	UpdateProfile(ctx context.Context, u *User) error
}

// MessageRepository defines persistence operations for messages and their
// seen state. Seen transitions are single-row updates; no cross-message
// transactions are required.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListConversation returns every message exchanged between a and b,
	// oldest first.
	ListConversation(ctx context.Context, a, b string) ([]*Message, error)
	// MarkSeen is idempotent; an unknown id yields ErrNotFound.
	MarkSeen(ctx context.Context, id string) error
	// MarkAllSeenFrom flags every unseen message from sender to recipient and
	// returns how many rows changed.
	MarkAllSeenFrom(ctx context.Context, senderID, recipientID string) (int64, error)
	CountUnseenPerSender(ctx context.Context, recipientID string) (map[string]int, error)
}
