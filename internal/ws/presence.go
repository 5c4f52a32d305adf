package ws

import (
	"github.com/rs/zerolog"

	"chatup/internal/metrics"
)

// Presence pushes the full online set to every registered connection
// whenever the registry changes.
type Presence struct {
	log zerolog.Logger
}

func NewPresence(logger zerolog.Logger) *Presence {
	return &Presence{log: logger.With().Str("component", "presence").Logger()}
}

var _ Observer = (*Presence)(nil)

func (p *Presence) RegistryChanged(online []string, handles []Handle) {
	ev := Event{Type: EventOnlineUsers, Data: online}
	for _, h := range handles {
		if err := h.Push(ev); err != nil {
			metrics.Pushes.WithLabelValues(EventOnlineUsers, "failed").Inc()
			p.log.Warn().Err(err).
				Str("user_id", h.UserID()).
				Str("conn_id", h.ID()).
				Msg("online users push failed")
			continue
		}
		metrics.Pushes.WithLabelValues(EventOnlineUsers, "delivered").Inc()
	}
	metrics.PresenceBroadcasts.Inc()
}
