package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatup/internal/domain"
	"chatup/internal/security"
)

type stubUsers struct {
	users map[string]*domain.User
}

func (s *stubUsers) Create(ctx context.Context, u *domain.User) error { return nil }
func (s *stubUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users[id], nil
}
func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (s *stubUsers) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	return nil, nil
}
func (s *stubUsers) UpdateProfile(ctx context.Context, u *domain.User) error { return nil }

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	srv      *httptest.Server
	registry *Registry
	tokens   *security.TokenService
}

func newTestServer(t *testing.T, policy ReplacePolicy) *testServer {
	t.Helper()
	users := &stubUsers{users: map[string]*domain.User{
		"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"},
	}}
	reg := NewRegistry(policy, zerolog.Nop())
	reg.Observe(NewPresence(zerolog.Nop()))
	tokens := security.NewTokenService("secret", time.Hour)

	h := MakeHandler(reg, tokens, users, HandlerConfig{AllowedOrigins: []string{"http://localhost:5173"}}, zerolog.Nop())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, registry: reg, tokens: tokens}
}

func (ts *testServer) dial(t *testing.T, userID string, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	tok, err := ts.tokens.Issue(userID)
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/?" + query
	header := http.Header{"Authorization": []string{"Bearer " + tok}}
	return websocket.DefaultDialer.Dial(u, header)
}

func (ts *testServer) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	c, _, err := ts.dial(t, userID, "userId="+userID)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// readUntilOnline reads events until an online list of the wanted size shows up.
func readUntilOnline(t *testing.T, c *websocket.Conn, size int) []string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev wireEvent
		require.NoError(t, c.ReadJSON(&ev))
		if ev.Type != EventOnlineUsers {
			continue
		}
		var ids []string
		require.NoError(t, json.Unmarshal(ev.Data, &ids))
		if len(ids) == size {
			return ids
		}
	}
}

func TestHandlerThreeUsersSeeEachOther(t *testing.T) {
	ts := newTestServer(t, ReplaceOverwrite)

	ca := ts.connect(t, "a")
	cb := ts.connect(t, "b")
	cc := ts.connect(t, "c")

	for _, c := range []*websocket.Conn{ca, cb, cc} {
		ids := readUntilOnline(t, c, 3)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	}
}

func TestHandlerDisconnectUpdatesRoster(t *testing.T) {
	ts := newTestServer(t, ReplaceOverwrite)

	ca := ts.connect(t, "a")
	cb := ts.connect(t, "b")
	readUntilOnline(t, ca, 2)

	cb.Close()
	ids := readUntilOnline(t, ca, 1)
	assert.Equal(t, []string{"a"}, ids)

	assert.Eventually(t, func() bool { return ts.registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerDeliversNewMessage(t *testing.T) {
	ts := newTestServer(t, ReplaceOverwrite)
	cb := ts.connect(t, "b")
	readUntilOnline(t, cb, 1)

	router := NewRouter(ts.registry, zerolog.Nop())
	text := "hi"
	router.Deliver(context.Background(), &domain.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Text: &text})

	require.NoError(t, cb.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev wireEvent
		require.NoError(t, cb.ReadJSON(&ev))
		if ev.Type != EventNewMessage {
			continue
		}
		var msg domain.Message
		require.NoError(t, json.Unmarshal(ev.Data, &msg))
		assert.Equal(t, "m1", msg.ID)
		require.NotNil(t, msg.Text)
		assert.Equal(t, "hi", *msg.Text)
		return
	}
}

func TestHandlerRejectsBadHandshakes(t *testing.T) {
	ts := newTestServer(t, ReplaceOverwrite)
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/"

	t.Run("MissingToken", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?userId=a", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("UserIDMismatch", func(t *testing.T) {
		_, resp, err := ts.dial(t, "a", "userId=b")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, resp, err := ts.dial(t, "ghost", "")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("ForeignOrigin", func(t *testing.T) {
		tok, _ := ts.tokens.Issue("a")
		header := http.Header{
			"Authorization": []string{"Bearer " + tok},
			"Origin":        []string{"https://evil.example"},
		}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("TokenInQuery", func(t *testing.T) {
		tok, _ := ts.tokens.Issue("a")
		c, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+tok, nil)
		require.NoError(t, err)
		c.Close()
	})
}

func TestHandlerRejectPolicyClosesSecondConnection(t *testing.T) {
	ts := newTestServer(t, ReplaceReject)
	first := ts.connect(t, "a")
	readUntilOnline(t, first, 1)

	second, _, err := ts.dial(t, "a", "")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))

	got, ok := ts.registry.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.UserID())
	assert.Equal(t, 1, ts.registry.Len())
}

func TestHandlerOverwriteKeepsNewestConnection(t *testing.T) {
	ts := newTestServer(t, ReplaceOverwrite)
	first := ts.connect(t, "a")
	readUntilOnline(t, first, 1)
	firstHandle, _ := ts.registry.Lookup("a")

	second := ts.connect(t, "a")
	readUntilOnline(t, second, 1)
	secondHandle, _ := ts.registry.Lookup("a")
	assert.NotEqual(t, firstHandle.ID(), secondHandle.ID())

	// The stale socket closing must not evict the newer registration.
	first.Close()
	time.Sleep(100 * time.Millisecond)
	got, ok := ts.registry.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, secondHandle.ID(), got.ID())
}
