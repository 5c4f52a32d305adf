package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatup/internal/client"
	"chatup/internal/config"
	"chatup/internal/domain"
	"chatup/internal/httpserver"
	"chatup/internal/media"
	"chatup/internal/security"
	"chatup/internal/service"
	"chatup/internal/store/sqlite"
	"chatup/internal/ws"
)

func startServer(t *testing.T) string {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	var key fernet.Key
	require.NoError(t, key.Generate())
	sealer, err := security.NewSealer(key.Encode())
	require.NoError(t, err)

	log := zerolog.Nop()
	cfg := &config.Config{MaxBodyBytes: 1 << 20, WSSendBuffer: 16}
	users := sqlite.NewUserRepo(db)
	messages := sqlite.NewMessageRepo(db)
	tokens := security.NewTokenService("secret", time.Hour)
	host := media.NewLocalHost(t.TempDir(), "", cfg.MaxBodyBytes)
	reg := ws.NewRegistry(ws.ReplaceOverwrite, log)
	reg.Observe(ws.NewPresence(log))

	srv := httptest.NewServer(httpserver.NewRouter(httpserver.Dependencies{
		Config:   cfg,
		Logger:   log,
		Users:    users,
		Tokens:   tokens,
		Auth:     service.NewAuthService(users, tokens, security.NewPasswordHasher(4)),
		UserSvc:  service.NewUserService(users, messages, host),
		Messages: service.NewMessageService(messages, users, sealer, host, ws.NewRouter(reg, log), log),
		Media:    host,
		Registry: reg,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

type participant struct {
	api     *client.Client
	user    *domain.User
	session *client.Session
}

func join(t *testing.T, baseURL, name string) *participant {
	t.Helper()
	ctx := context.Background()
	api := client.New(baseURL)
	user, err := api.Signup(ctx, client.SignupRequest{
		FullName: name, Email: name + "@example.com", Password: "secret1",
	})
	require.NoError(t, err)
	return &participant{api: api, user: user}
}

// connect starts the session and its push stream.
func (p *participant) connect(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	bus := client.NewBus()
	p.session = client.NewSession(p.user.ID, p.api, bus, zerolog.Nop())
	require.NoError(t, p.session.Start(ctx))

	stream, err := p.api.Dial(ctx, p.user.ID, zerolog.Nop())
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = stream.Run(ctx, bus)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		p.session.Stop()
	})
}

func TestEndToEndPresenceAndDelivery(t *testing.T) {
	ctx := context.Background()
	base := startServer(t)
	alice := join(t, base, "alice")
	bob := join(t, base, "bob")

	// Bob is offline when the first message goes out.
	_, err := alice.api.Send(ctx, bob.user.ID, "are you there?", "")
	require.NoError(t, err)

	alice.connect(t)
	bob.connect(t)

	assert.Equal(t, map[string]int{alice.user.ID: 1}, bob.session.Unseen())
	assert.Eventually(t, func() bool {
		return alice.session.IsOnline(bob.user.ID) && bob.session.IsOnline(alice.user.ID)
	}, 5*time.Second, 20*time.Millisecond)

	// Pushed while no conversation is open: counted.
	_, err = alice.api.Send(ctx, bob.user.ID, "hello?", "")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return bob.session.Unseen()[alice.user.ID] == 2
	}, 5*time.Second, 20*time.Millisecond)

	view, err := bob.session.Open(ctx, alice.user.ID)
	require.NoError(t, err)
	assert.Len(t, view.Messages(), 2)
	assert.Empty(t, bob.session.Unseen())

	// Pushed into the open conversation: appended and acknowledged.
	sent, err := alice.api.Send(ctx, bob.user.ID, "there you are", "")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(view.Messages()) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, bob.session.Unseen())

	assert.Eventually(t, func() bool {
		msgs, err := alice.api.Conversation(ctx, bob.user.ID)
		return err == nil && len(msgs) == 3 && msgs[2].ID == sent.ID && msgs[2].Seen
	}, 5*time.Second, 20*time.Millisecond)

	// Bob replies from the view; Alice has nothing open so it counts.
	_, err = view.Send(ctx, "hi alice", "")
	require.NoError(t, err)
	assert.Len(t, view.Messages(), 4)
	assert.Eventually(t, func() bool {
		return alice.session.Unseen()[bob.user.ID] == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Logging out closes bob's socket; alice sees him go offline.
	require.NoError(t, bob.api.Logout(ctx))
	assert.Eventually(t, func() bool {
		return !alice.session.IsOnline(bob.user.ID)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClientErrorsUnwrapToDomain(t *testing.T) {
	ctx := context.Background()
	base := startServer(t)
	c := client.New(base)

	_, err := c.Me(ctx)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = c.Login(ctx, "nobody@example.com", "secret1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)

	p := join(t, base, "carol")
	_, err = p.api.Send(ctx, "missing", "hi", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = p.api.Send(ctx, "missing", "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	me, err := p.api.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.user.ID, me.ID)
}
