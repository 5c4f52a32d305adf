package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatup/internal/domain"
)

// ImageHost stores an inline image and returns the URL it is served from.
// Hosts reports whether a URL points at a stored image; Remove drops one
// whose owning record was never written.
type ImageHost interface {
	UploadDataURI(ctx context.Context, dataURI string) (string, error)
	Hosts(url string) bool
	Remove(ctx context.Context, url string) error
}

// UserService provides profile and contact-list operations.
type UserService struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	images   ImageHost
	now      func() time.Time
}

func NewUserService(users domain.UserRepository, messages domain.MessageRepository, images ImageHost) *UserService {
	return &UserService{users: users, messages: messages, images: images, now: time.Now}
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return u, nil
}

type ProfileUpdate struct {
	FullName string
	Bio      string
	// ProfilePic is a data URI; empty keeps the current avatar.
	ProfilePic string
}

func (s *UserService) UpdateProfile(ctx context.Context, user *domain.User, in ProfileUpdate) (*domain.User, error) {
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", domain.ErrValidation)
	}

	updated := *user
	updated.FullName = fullName
	updated.Bio = strings.TrimSpace(in.Bio)
	if in.ProfilePic != "" {
		url, err := s.images.UploadDataURI(ctx, in.ProfilePic)
		if err != nil {
			return nil, fmt.Errorf("upload profile picture: %w", err)
		}
		updated.ProfilePic = &url
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.users.UpdateProfile(ctx, &updated); err != nil {
		if in.ProfilePic != "" {
			discardImage(ctx, s.images, *updated.ProfilePic)
		}
		return nil, storageErr("update profile", err)
	}
	return &updated, nil
}

// Contacts is the sidebar view: every other user plus unseen counts keyed by
// sender id. Senders with nothing unseen are absent from the map.
type Contacts struct {
	Users  []*domain.User
	Unseen map[string]int
}

func (s *UserService) Contacts(ctx context.Context, selfID string) (*Contacts, error) {
	users, err := s.users.ListExcept(ctx, selfID)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	unseen, err := s.messages.CountUnseenPerSender(ctx, selfID)
	if err != nil {
		return nil, storageErr("count unseen", err)
	}
	if users == nil {
		users = []*domain.User{}
	}
	if unseen == nil {
		unseen = map[string]int{}
	}
	return &Contacts{Users: users, Unseen: unseen}, nil
}
