package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// newClock starts ten seconds into the next hour so window ends stay in the
// future for Redis expiry.
func newClock() *fakeClock {
	return &fakeClock{t: time.Now().Truncate(time.Hour).Add(time.Hour + 10*time.Second)}
}

func limits(rules ...config.RateLimitRule) *config.RateLimitConfig {
	return &config.RateLimitConfig{Enabled: true, Limits: rules}
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:rl")
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func TestLimiterCountsPerWindow(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			clock := newClock()
			l, err := New(limits(config.RateLimitRule{Window: "minute", Requests: 2}), store, WithClock(clock.Now))
			require.NoError(t, err)
			defer l.Close()

			for i := range 2 {
				res, err := l.Allow(ctx, "email", "10.0.0.1")
				require.NoError(t, err)
				assert.True(t, res.Allowed, "request %d", i+1)
			}

			res, err := l.Allow(ctx, "email", "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Contains(t, res.Reason, "minute")
			assert.Equal(t, 50*time.Second, res.RetryAfter)
			assert.Equal(t, int64(0), res.Usages[0].Remaining)

			clock.Advance(time.Minute)
			res, err = l.Allow(ctx, "email", "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, int64(1), res.Usages[0].Current)
		})
	}
}

func TestLimiterSeparatesClientsAndScopes(t *testing.T) {
	ctx := context.Background()
	l, err := New(limits(config.RateLimitRule{Window: "hour", Requests: 1}), NewMemoryStore())
	require.NoError(t, err)

	for _, c := range []struct{ scope, id string }{{"email", "a"}, {"email", "b"}, {"weather", "a"}} {
		res, err := l.Allow(ctx, c.scope, c.id)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "%s/%s", c.scope, c.id)
	}

	res, err := l.Allow(ctx, "email", "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestLimiterMultipleWindows(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l, err := New(limits(
		config.RateLimitRule{Window: "minute", Requests: 10},
		config.RateLimitRule{Window: "hour", Requests: 3},
	), NewMemoryStore(), WithClock(clock.Now))
	require.NoError(t, err)

	for range 3 {
		res, err := l.Allow(ctx, "", "client")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		clock.Advance(time.Minute)
	}

	res, err := l.Allow(ctx, "", "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "hour")
	assert.Equal(t, WindowHour, res.Tightest().Window)
}

func TestNewRejectsBadRules(t *testing.T) {
	_, err := New(limits(), NewMemoryStore())
	assert.Error(t, err)

	_, err = New(limits(config.RateLimitRule{Window: "fortnight", Requests: 1}), NewMemoryStore())
	assert.Error(t, err)

	_, err = New(limits(config.RateLimitRule{Window: "day", Requests: 0}), NewMemoryStore())
	assert.Error(t, err)

	_, err = New(limits(config.RateLimitRule{Window: "day", Requests: 1}), nil)
	assert.Error(t, err)

	_, err = New(limits(config.RateLimitRule{Window: "day", Requests: 1}), NewMemoryStore())
	assert.NoError(t, err)
}

func TestNewFromConfigDisabled(t *testing.T) {
	l, err := NewFromConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = NewFromConfig(&config.RateLimitConfig{})
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestMemoryStoreSweepsExpired(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore()
	s.now = clock.Now

	_, err := s.Increment(ctx, "a", clock.t.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	clock.Advance(2 * time.Minute)
	_, err = s.Increment(ctx, "b", clock.t.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestMiddleware(t *testing.T) {
	l, err := New(limits(config.RateLimitRule{Window: "minute", Requests: 1}), NewMemoryStore())
	require.NoError(t, err)

	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Same host, different port.
	req.RemoteAddr = "192.0.2.7:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"rate_limited"`)

	req.Header.Set(ClientIDHeader, "ops-console")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareNilLimiter(t *testing.T) {
	h := Middleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
