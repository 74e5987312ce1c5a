package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rohits-web03/todo-api/internal/metrics"
)

const secret = "middleware-secret"

func signed(t *testing.T, key string, claims jwt.MapClaims) *http.Cookie {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookie, Value: token}
}

// echoUser writes the session user id, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(id.String()))
})

func TestAuth(t *testing.T) {
	auth := NewAuth(secret)
	id := uuid.New()
	valid := jwt.MapClaims{"userId": id.String(), "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name         string
		cookie       *http.Cookie
		requireCode  int
		optionalBody string
	}{
		{"no cookie", nil, http.StatusUnauthorized, "anonymous"},
		{"valid session", signed(t, secret, valid), http.StatusOK, id.String()},
		{"wrong key", signed(t, "other", valid), http.StatusUnauthorized, "anonymous"},
		{"expired", signed(t, secret, jwt.MapClaims{"userId": id.String(), "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, "anonymous"},
		{"bad user id", signed(t, secret, jwt.MapClaims{"userId": "42"}), http.StatusUnauthorized, "anonymous"},
		{"garbage", &http.Cookie{Name: SessionCookie, Value: "abc"}, http.StatusUnauthorized, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}

			rec := httptest.NewRecorder()
			auth.Require(echoUser).ServeHTTP(rec, req)
			assert.Equal(t, tt.requireCode, rec.Code)

			rec = httptest.NewRecorder()
			auth.Optional(echoUser).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.optionalBody, rec.Body.String())
		})
	}
}

func TestRequire_PassesPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	NewAuth(secret).Require(echoUser).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, nil, zaptest.NewLogger(t), metrics.Nop{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, rl.allow("a", now))
	assert.True(t, rl.allow("a", now))
	assert.False(t, rl.allow("a", now), "burst exhausted")
	assert.True(t, rl.allow("b", now), "clients are limited separately")

	assert.True(t, rl.allow("a", now.Add(31*time.Second)), "tokens refill over time")
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(2, nil, zap.NewNop(), metrics.Nop{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rl.allow("a", now)
	rl.allow("b", now)
	rl.allow("b", now.Add(rl.ttl+time.Second))
	rl.allow("c", now.Add(2*rl.ttl+2*time.Second))

	assert.NotContains(t, rl.clients, "a")
	assert.NotContains(t, rl.clients, "b")
	assert.Contains(t, rl.clients, "c")
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		proxies   TrustedProxies
		remote    string
		forwarded string
		want      string
	}{
		{"no proxies configured", nil, "10.0.0.1:5555", "203.0.113.7", "10.0.0.1"},
		{"untrusted peer ignores header", proxies, "198.51.100.4:5555", "203.0.113.7", "198.51.100.4"},
		{"trusted peer", proxies, "10.0.0.1:5555", "203.0.113.7", "203.0.113.7"},
		{"rightmost untrusted hop wins", proxies, "10.0.0.1:5555", "1.2.3.4, 203.0.113.7, 192.168.1.1", "203.0.113.7"},
		{"trusted peer without header", proxies, "10.0.0.1:5555", "", "10.0.0.1"},
		{"remote without port", nil, "10.0.0.9", "", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(req))
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, nil, zap.NewNop(), metrics.Nop{})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := range 50 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recovery(zap.New(core))(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	metrics.Nop
	requests []recordedRequest
}

func (f *fakeRecorder) RecordRequest(method, route string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, status})
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	recorder := &fakeRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Logger(zap.New(core), recorder)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/other", nil))

	require.Len(t, recorder.requests, 2)
	assert.Equal(t, recordedRequest{"GET", "GET /items/{id}", http.StatusTeapot}, recorder.requests[0])
	assert.Equal(t, recordedRequest{"POST", "unmatched", http.StatusNotFound}, recorder.requests[1])

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "/items/7", entries[0].ContextMap()["path"])
}
