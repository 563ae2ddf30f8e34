package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "ok")
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/r", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "hello")
	})))

	rec := get(t, h, "10.0.0.1:1234", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/r", line["path"])
	assert.EqualValues(t, http.StatusCreated, line["status"])
	assert.EqualValues(t, 5, line["bytes"])
	assert.NotEmpty(t, line["requestID"])
}

func TestLogger_ServerErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	get(t, h, "10.0.0.1:1234", nil)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/ideas/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/ideas/{id}", "404")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/ideas/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(1, 2)(okHandler)

	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1000", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1001", nil).Code)

	rec := get(t, h, "10.0.0.1:1002", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.2:1000", nil).Code)
}

func TestRateLimit_KeysByUserWhenAuthenticated(t *testing.T) {
	tokens, err := auth.NewTokenService("test-secret-at-least-16", time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(tokens, auth.NewMemoryBlacklist(), discardLogger())

	h := authn.RequireAuth(RateLimit(1, 1)(okHandler))

	alice, _, err := tokens.Generate(1)
	require.NoError(t, err)
	bob, _, err := tokens.Generate(2)
	require.NoError(t, err)

	aliceHeader := http.Header{"Authorization": {"Bearer " + alice}}
	bobHeader := http.Header{"Authorization": {"Bearer " + bob}}

	// Same IP, different users.
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1", aliceHeader).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1", bobHeader).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "10.0.0.1:1", aliceHeader).Code)
}

func TestMemoryLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newMemoryLimiter(1, 2, func() time.Time { return now })
	require.Equal(t, minLimiterIdle, l.idle)

	assert.True(t, l.allow("ip:a"))
	assert.True(t, l.allow("ip:a"))
	assert.False(t, l.allow("ip:a"))

	now = now.Add(30 * time.Second)
	assert.True(t, l.allow("ip:b"))

	// Past the idle window for a, not for b.
	now = now.Add(31 * time.Second)
	assert.True(t, l.allow("ip:c"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.clients, 2)
	assert.NotContains(t, l.clients, "ip:a")
	assert.Contains(t, l.clients, "ip:b")
}

func TestMemoryLimiter_IdleWindowFollowsRefillTime(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0) }

	assert.Equal(t, 5*time.Minute, newMemoryLimiter(0.5, 150, now).idle)
	assert.Equal(t, maxLimiterIdle, newMemoryLimiter(0.000001, 5, now).idle)
	assert.Equal(t, maxLimiterIdle, newMemoryLimiter(0, 5, now).idle)
}

func TestRedisRateLimit(t *testing.T) {
	m := mr.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// 1 rps over a 1s window with no burst: one request per window.
	h := RedisRateLimit(client, 1, 0, time.Second, discardLogger())(okHandler)

	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.2:1", nil).Code)

	assert.True(t, m.Exists("rl:ip:10.0.0.1"))

	m.FastForward(2 * time.Second)
	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1", nil).Code)
}

func TestRedisRateLimit_FailsOpen(t *testing.T) {
	m := mr.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var buf bytes.Buffer
	h := RedisRateLimit(client, 1, 0, time.Second, slog.New(slog.NewTextHandler(&buf, nil)))(okHandler)

	m.Close()

	rec := get(t, h, "10.0.0.1:1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(buf.String(), "rate limit check failed"))
}

func TestRedisRateLimit_NilClientFallsBack(t *testing.T) {
	h := RedisRateLimit(nil, 1, 1, time.Second, discardLogger())(okHandler)

	assert.Equal(t, http.StatusOK, get(t, h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "10.0.0.1:1", nil).Code)
}
