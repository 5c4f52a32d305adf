package ws

import (
	"context"

	"github.com/rs/zerolog"

	"chatup/internal/domain"
	"chatup/internal/metrics"
)

// Router pushes freshly persisted messages to the recipient's live
// connection. Delivery is best effort: the message is durable either way and
// the recipient pulls it on the next conversation fetch.
type Router struct {
	registry *Registry
	log      zerolog.Logger
}

func NewRouter(registry *Registry, logger zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		log:      logger.With().Str("component", "delivery").Logger(),
	}
}

// Deliver looks the recipient up at push time, never at send time.
func (r *Router) Deliver(ctx context.Context, msg *domain.Message) {
	h, ok := r.registry.Lookup(msg.ReceiverID)
	if !ok {
		metrics.Pushes.WithLabelValues(EventNewMessage, "offline").Inc()
		return
	}
	if err := h.Push(Event{Type: EventNewMessage, Data: msg}); err != nil {
		metrics.Pushes.WithLabelValues(EventNewMessage, "failed").Inc()
		r.log.Warn().Err(err).
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Str("conn_id", h.ID()).
			Msg("live delivery failed")
		return
	}
	metrics.Pushes.WithLabelValues(EventNewMessage, "delivered").Inc()
}
