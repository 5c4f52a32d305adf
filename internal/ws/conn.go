package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatup/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is the WebSocket implementation of Handle. Pushed events are queued
// and written in order by a dedicated writer goroutine.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan Event
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

func NewConn(wsConn *websocket.Conn, userID string, buffer int, logger zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		userID: userID,
		ws:     wsConn,
		send:   make(chan Event, buffer),
		done:   make(chan struct{}),
		log:    logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
}

var _ Handle = (*Conn)(nil)

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Push(ev Event) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: connection closed", domain.ErrDelivery)
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return fmt.Errorf("%w: send queue full", domain.ErrDelivery)
	}
}

// Close signals the writer to send a close frame and tear the socket down.
// It never blocks and is safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Run pumps the connection until either side closes it.
func (c *Conn) Run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump()
	c.Close()
	<-writerDone
}

// readPump only keeps the connection alive; clients talk to the server over
// HTTP, so inbound frames are discarded.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("ws read")
			}
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Str("event", ev.Type).Msg("ws write")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
