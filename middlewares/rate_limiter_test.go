package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/waitercall/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()
	os.Exit(m.Run())
}

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(2, time.Minute)
	limiter.now = func() time.Time { return clock }
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = limiter.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = limiter.Allow(ctx, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, clock.Add(time.Minute), d.ResetAt)

	// Another client is unaffected.
	d, _ = limiter.Allow(ctx, "5.6.7.8")
	assert.True(t, d.Allowed)

	// Once the oldest hit slides out of the window, capacity returns.
	clock = clock.Add(61 * time.Second)
	d, _ = limiter.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterPrunesIdleClients(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(5, time.Minute)
	limiter.now = func() time.Time { return clock }
	ctx := context.Background()

	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		_, err := limiter.Allow(ctx, ip)
		require.NoError(t, err)
	}
	assert.Len(t, limiter.keys, 3)

	// Two windows later only the returning client survives the prune.
	clock = clock.Add(2 * time.Minute)
	_, err := limiter.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.Len(t, limiter.keys, 1)
	assert.Contains(t, limiter.keys, "1.1.1.1")
}

func TestRedisLimiterAllow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRedisLimiter(client, 5, time.Minute)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	member := strconv.FormatInt(now.UnixNano(), 10)
	mock.ExpectEvalSha(slidingWindow.Hash(), []string{"ratelimit:1.2.3.4"},
		now.UnixMilli(), int64(60000), int64(5), member).
		SetVal([]interface{}{int64(1), int64(4), now.Add(time.Minute).UnixMilli()})

	d, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), d.ResetAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiterDenied(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRedisLimiter(client, 5, time.Minute)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	// The script reports the oldest surviving hit plus the window.
	resetAt := now.Add(30 * time.Second).UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10)
	mock.ExpectEvalSha(slidingWindow.Hash(), []string{"ratelimit:1.2.3.4"},
		now.UnixMilli(), int64(60000), int64(5), member).
		SetVal([]interface{}{int64(0), int64(0), resetAt})

	d, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, resetAt, d.ResetAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	r := gin.New()
	r.POST("/calls", RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/calls", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "too many requests", body["error"])
	assert.Equal(t, float64(0), body["remaining"])

	resetAt, err := time.Parse(time.RFC3339, body["reset_at"].(string))
	require.NoError(t, err)
	assert.True(t, resetAt.After(time.Now()))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (LimitDecision, error) {
	return LimitDecision{}, assert.AnError
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/calls", RateLimit(failingLimiter{}), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/calls", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}
