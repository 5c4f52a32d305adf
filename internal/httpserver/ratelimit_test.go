package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memWindow mirrors redisWindow's sorted-set semantics in memory.
type memWindow struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func (m *memWindow) Record(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits = make(map[string][]time.Time)
	}
	start := now.Add(-window)
	kept := m.hits[key][:0]
	for _, h := range m.hits[key] {
		if h.After(start) {
			kept = append(kept, h)
		}
	}
	count := len(kept)
	m.hits[key] = append(kept, now)
	return count, nil
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rl := newRateLimiter(&memWindow{}, zerolog.Nop())
	rl.now = func() time.Time { return clock }

	h := rl.Limit("login", 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := hit("10.0.0.1")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	second := hit("10.0.0.1")
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))
	assert.Equal(t, "2", third.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(third.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])

	t.Run("OtherClientUnaffected", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, hit("10.0.0.2").Code)
	})

	t.Run("WindowSlides", func(t *testing.T) {
		clock = clock.Add(61 * time.Second)
		rec := hit("10.0.0.1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})
}

func TestRedisWindowAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	key := "ratelimit:test:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { client.Del(ctx, key) })

	rl := NewRateLimiter(client, zerolog.Nop())
	for i := 0; i < 3; i++ {
		ok, remaining, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2-i, remaining)
	}
	ok, remaining, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
}
