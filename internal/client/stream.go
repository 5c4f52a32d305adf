package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatup/internal/domain"
)

// Stream is the client end of the push socket. Run decodes frames and
// publishes them on a Bus.
type Stream struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Dial opens the push socket for userID with the client's token.
func (c *Client) Dial(ctx context.Context, userID string, logger zerolog.Logger) (*Stream, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"userId": {userID}}.Encode()

	header := http.Header{}
	if tok := c.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Stream{conn: conn, log: logger.With().Str("component", "stream").Logger()}, nil
}

// Run reads until the socket closes or ctx is done. A normal close returns
// nil.
func (s *Stream) Run(ctx context.Context, bus *Bus) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.conn.SetPingHandler(func(data string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		s.dispatch(bus, f)
	}
}

func (s *Stream) dispatch(bus *Bus, f frame) {
	switch f.Type {
	case TopicNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			s.log.Warn().Err(err).Msg("bad newMessage frame")
			return
		}
		bus.Publish(TopicNewMessage, &msg)
	case TopicOnlineUsers:
		var ids []string
		if err := json.Unmarshal(f.Data, &ids); err != nil {
			s.log.Warn().Err(err).Msg("bad getOnlineUsers frame")
			return
		}
		bus.Publish(TopicOnlineUsers, ids)
	default:
		s.log.Debug().Str("type", f.Type).Msg("ignoring unknown frame")
	}
}

func (s *Stream) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
