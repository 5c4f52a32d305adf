package domain

import "time"

// User represents an application user.
type User struct {
	ID             string    `db:"id" json:"_id"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"fullName"`
	Bio            string    `db:"bio" json:"bio"`
	ProfilePic     *string   `db:"profile_pic" json:"profilePic,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Message is a direct message between two users. Text is sealed at rest;
// repositories store and return it as-is and the service layer opens it.
type Message struct {
	ID         string    `db:"id" json:"_id"`
	SenderID   string    `db:"sender_id" json:"senderId"`
	ReceiverID string    `db:"receiver_id" json:"receiverId"`
	Text       *string   `db:"text" json:"text,omitempty"`
	Image      *string   `db:"image" json:"image,omitempty"`
	Seen       bool      `db:"seen" json:"seen"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// HasText reports whether the message carries non-empty text.
func (m *Message) HasText() bool {
	return m.Text != nil && *m.Text != ""
}

// HasImage reports whether the message carries an image reference.
func (m *Message) HasImage() bool {
	return m.Image != nil && *m.Image != ""
}
