package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-scheduler-api/internal/config"
)

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		RateLimitRPS:    1,
		RateLimitBurst:  2,
		RequestTimeout:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
		EnableCORS:      true,
		AllowedOrigins:  []string{"http://kiosk.local"},
		TrustedProxies:  []string{"10.0.0.1"},
	}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimit_PerClient(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())
	h := sm.TrustedProxy(sm.RateLimit(okHandler))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, send("192.0.2.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1:1002"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2:1000"), "other clients keep their own budget")
}

func TestRateLimit_JSONBody(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.RateLimitBurst = 1
	sm := NewSecurityMiddleware(cfg)
	h := sm.RateLimit(okHandler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if i == 1 {
			assert.Equal(t, http.StatusTooManyRequests, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), "RATE_LIMIT_ERROR")
		}
	}
}

func TestEvictIdle(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	sm.limiterFor("192.0.2.1")
	now = now.Add(5 * time.Minute)
	sm.limiterFor("192.0.2.2")

	assert.Equal(t, 1, sm.evictIdle(3*time.Minute))
	assert.Len(t, sm.visitors, 1)
	assert.Contains(t, sm.visitors, "192.0.2.2")
}

func TestTrustedProxy(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct client", "192.0.2.7:5555", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "192.0.2.7"},
		{"trusted proxy forwarded", "10.0.0.1:443", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"trusted proxy real ip", "10.0.0.1:443", map[string]string{"X-Real-IP": " 203.0.113.10 "}, "203.0.113.10"},
		{"no headers", "10.0.0.1:443", nil, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := sm.TrustedProxy(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCORS(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())
	h := sm.CORS(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/computers", nil)
	req.Header.Set("Origin", "http://kiosk.local")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://kiosk.local", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/computers", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestTimeout(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())

	t.Run("fast handler passes through", func(t *testing.T) {
		h := sm.RequestTimeout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test", "yes")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("done"))
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "yes", rr.Header().Get("X-Test"))
		assert.Equal(t, "done", rr.Body.String())
	})

	t.Run("slow handler times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		h := sm.RequestTimeout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			<-release
			_, _ = w.Write([]byte("late"))
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusRequestTimeout, rr.Code)
		assert.Contains(t, rr.Body.String(), "TIMEOUT_ERROR")
		assert.NotContains(t, rr.Body.String(), "late")
	})
}

func TestSecurityHeaders(t *testing.T) {
	sm := NewSecurityMiddleware(testSecurityConfig())
	rr := httptest.NewRecorder()
	sm.SecurityHeaders(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggingMiddleware(log.New(&buf, "", 0))
	sm := NewSecurityMiddleware(testSecurityConfig())

	h := sm.TrustedProxy(lm.LogRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/computers", nil)
	req.RemoteAddr = "192.0.2.50:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "[GET] /api/computers")
	assert.Contains(t, out, "429")
	assert.True(t, strings.Contains(out, "SECURITY: Rate limit exceeded for IP: 192.0.2.50"), out)
}

func TestResponseWriter_Hijacker(t *testing.T) {
	var _ http.Hijacker = &responseWriter{}
	var _ http.Flusher = &responseWriter{}

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}
