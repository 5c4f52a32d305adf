package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"chatup/internal/domain"
	"chatup/internal/metrics"
	"chatup/internal/security"
)

// Deliverer pushes a persisted message to its recipient's live connection,
// if any. Implementations swallow and log their own failures.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message)
}

// NopDeliverer drops every message.
type NopDeliverer struct{}

func (NopDeliverer) Deliver(context.Context, *domain.Message) {}

type MessageService struct {
	messages  domain.MessageRepository
	users     domain.UserRepository
	sealer    *security.Sealer
	images    ImageHost
	deliverer Deliverer
	log       zerolog.Logger
	now       func() time.Time
}

func NewMessageService(
	messages domain.MessageRepository,
	users domain.UserRepository,
	sealer *security.Sealer,
	images ImageHost,
	deliverer Deliverer,
	logger zerolog.Logger,
) *MessageService {
	if deliverer == nil {
		deliverer = NopDeliverer{}
	}
	return &MessageService{
		messages:  messages,
		users:     users,
		sealer:    sealer,
		images:    images,
		deliverer: deliverer,
		log:       logger.With().Str("component", "messages").Logger(),
		now:       time.Now,
	}
}

type SendInput struct {
	Text string
	// Image is either a data URI, uploaded here, or a URL previously
	// returned by the upload endpoint.
	Image string
}

// Send validates, persists and then hands the message to the Deliverer
// exactly once. Nothing is stored when validation fails.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*domain.Message, error) {
	text := strings.TrimSpace(in.Text)
	image := strings.TrimSpace(in.Image)
	if text == "" && image == "" {
		return nil, fmt.Errorf("%w: message needs text or an image", domain.ErrValidation)
	}
	if receiverID == "" || receiverID == senderID {
		return nil, fmt.Errorf("%w: invalid recipient", domain.ErrValidation)
	}

	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, storageErr("get receiver", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, receiverID)
	}

	msg := &domain.Message{
		ID:         ulid.Make().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		CreatedAt:  s.now().UTC(),
	}
	stored := *msg
	if text != "" {
		msg.Text = &text
		sealed, err := s.sealer.Seal(text)
		if err != nil {
			return nil, fmt.Errorf("seal message: %w", err)
		}
		stored.Text = &sealed
	}

	// Upload last: no earlier rejection may leave a file on disk.
	var uploaded string
	if image != "" {
		url, fresh, err := s.resolveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		if fresh {
			uploaded = url
		}
		msg.Image = &url
		stored.Image = &url
	}
	if err := s.messages.Create(ctx, &stored); err != nil {
		if uploaded != "" {
			discardImage(ctx, s.images, uploaded)
		}
		return nil, fmt.Errorf("%w: create message: %v", domain.ErrStorage, err)
	}
	metrics.MessagesSent.WithLabelValues(messageKind(msg)).Inc()

	s.deliverer.Deliver(ctx, msg)
	return msg, nil
}

// resolveImage uploads a data URI or accepts a URL of an image already on
// the host. fresh is true when this call stored the file.
func (s *MessageService) resolveImage(ctx context.Context, image string) (url string, fresh bool, err error) {
	if strings.HasPrefix(image, "data:") {
		url, err := s.images.UploadDataURI(ctx, image)
		if err != nil {
			return "", false, fmt.Errorf("upload image: %w", err)
		}
		return url, true, nil
	}
	if s.images.Hosts(image) {
		return image, false, nil
	}
	return "", false, fmt.Errorf("%w: image must be a data URI or an uploaded image URL", domain.ErrValidation)
}

// Conversation returns every message between self and peer, oldest first.
// Opening a conversation counts as reading it: the peer's unseen messages
// to self are flagged before the list is read.
func (s *MessageService) Conversation(ctx context.Context, selfID, peerID string) ([]*domain.Message, error) {
	marked, err := s.messages.MarkAllSeenFrom(ctx, peerID, selfID)
	if err != nil {
		return nil, storageErr("mark conversation seen", err)
	}
	if marked > 0 {
		s.log.Debug().Str("user_id", selfID).Str("peer_id", peerID).Int64("count", marked).Msg("marked messages seen")
	}

	msgs, err := s.messages.ListConversation(ctx, selfID, peerID)
	if err != nil {
		return nil, storageErr("list conversation", err)
	}
	for _, m := range msgs {
		if err := s.open(m); err != nil {
			return nil, err
		}
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

// MarkSeen flags a single message. Only its recipient may do so and
// repeating the call is harmless.
func (s *MessageService) MarkSeen(ctx context.Context, callerID, messageID string) error {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return storageErr("get message", err)
	}
	if m.ReceiverID != callerID {
		return fmt.Errorf("%w: only the recipient can mark a message seen", domain.ErrForbidden)
	}
	if m.Seen {
		return nil
	}
	if err := s.messages.MarkSeen(ctx, messageID); err != nil {
		return storageErr("mark seen", err)
	}
	return nil
}

func (s *MessageService) UnseenCounts(ctx context.Context, recipientID string) (map[string]int, error) {
	counts, err := s.messages.CountUnseenPerSender(ctx, recipientID)
	if err != nil {
		return nil, storageErr("count unseen", err)
	}
	return counts, nil
}

func (s *MessageService) open(m *domain.Message) error {
	if m.Text == nil {
		return nil
	}
	plain, err := s.sealer.Open(*m.Text)
	if err != nil {
		return fmt.Errorf("open message %s: %w", m.ID, err)
	}
	m.Text = &plain
	return nil
}

func messageKind(m *domain.Message) string {
	switch {
	case m.HasText() && m.HasImage():
		return "mixed"
	case m.HasImage():
		return "image"
	default:
		return "text"
	}
}
