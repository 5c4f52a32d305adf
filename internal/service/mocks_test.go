package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatup/internal/domain"
	"chatup/internal/security"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListConversation(ctx context.Context, a, b string) ([]*domain.Message, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkSeen(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkAllSeenFrom(ctx context.Context, senderID, recipientID string) (int64, error) {
	args := m.Called(ctx, senderID, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) CountUnseenPerSender(ctx context.Context, recipientID string) (map[string]int, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, msg *domain.Message) {
	m.Called(ctx, msg)
}

type stubImages struct {
	url string
	err error

	mu      sync.Mutex
	uploads int
	removed []string
}

func (s *stubImages) UploadDataURI(ctx context.Context, dataURI string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	return s.url, s.err
}

func (s *stubImages) Hosts(url string) bool {
	return strings.HasPrefix(url, "/api/uploads/")
}

func (s *stubImages) Remove(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, url)
	return nil
}

func newSealer(t *testing.T) *security.Sealer {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	s, err := security.NewSealer(k.Encode())
	require.NoError(t, err)
	return s
}
