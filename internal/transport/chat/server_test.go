package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lca-assistant/internal/common/config"
	"lca-assistant/internal/common/database"
	"lca-assistant/internal/common/logger"
	llmfallback "lca-assistant/internal/workers/ai-conversation/llm-fallback"
	routeintent "lca-assistant/internal/workers/ai-conversation/route-intent"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeRouter struct {
	result       *routeintent.Result
	err          error
	routed       []string
	dispatched   []routeintent.Slots
	dispatchedAs []routeintent.Intent
}

func (r *fakeRouter) Route(ctx context.Context, message string) (*routeintent.Result, error) {
	r.routed = append(r.routed, message)
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func (r *fakeRouter) Dispatch(ctx context.Context, intent routeintent.Intent, slots routeintent.Slots, message string) *routeintent.Result {
	r.dispatchedAs = append(r.dispatchedAs, intent)
	r.dispatched = append(r.dispatched, slots)
	return &routeintent.Result{
		Intent:  intent,
		Slots:   slots,
		Answer:  "profile of " + slots.Employer,
		Sources: []string{"https://reports.test/employer/google/"},
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func defaultResult() *routeintent.Result {
	return &routeintent.Result{
		Intent:  routeintent.IntentSchoolCount,
		Answer:  "University of Michigan: 1,204 H-1B petitions in FY2026.",
		Sources: []string{"https://reports.test/school/university-michigan/"},
	}
}

func newTestServer(t *testing.T, router Router, limiter *RateLimiter, deps map[string]Pinger) *Server {
	return newTestServerWithConfig(t, config.ServerConfig{Address: ":0"}, router, limiter, deps)
}

func newTestServerWithConfig(t *testing.T, cfg config.ServerConfig, router Router, limiter *RateLimiter, deps map[string]Pinger) *Server {
	log := logger.NewTestLogger(t)
	handler := NewHandler(router, time.Second, log)
	checker := NewChecker("test", deps)
	return NewServer(cfg, handler, checker, limiter, log)
}

func postChat(s *Server, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ==========================
// Chat Endpoint Tests
// ==========================

func TestChat_Success(t *testing.T) {
	router := &fakeRouter{result: defaultResult()}
	s := newTestServer(t, router, nil, nil)

	rec := postChat(s, `{"message": "  how many students from University of Michigan got H-1B last year?  "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "University of Michigan: 1,204 H-1B petitions in FY2026.", resp.Answer)
	assert.Equal(t, []string{"https://reports.test/school/university-michigan/"}, resp.Sources)
	assert.Equal(t, "school-count", resp.Intent)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"how many students from University of Michigan got H-1B last year?"}, router.routed)
}

func TestChat_ReusesInboundRequestID(t *testing.T) {
	s := newTestServer(t, &fakeRouter{result: defaultResult()}, nil, nil)

	rec := postChat(s, `{"message": "hello"}`, "X-Request-ID", "req-123")

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"requestId":"req-123"`)
}

func TestChat_BadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty message", `{"message": ""}`, "message must not be empty"},
		{"blank message", `{"message": "   "}`, "message must not be empty"},
		{"not json", `not json`, "request body must be a JSON object"},
		{"missing message", `{}`, ""},
		{"wrong type", `{"message": 42}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{result: defaultResult()}
			s := newTestServer(t, router, nil, nil)

			rec := postChat(s, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error)
			}
			assert.Empty(t, router.routed)
		})
	}
}

func TestChat_InternalErrorIsGeneric(t *testing.T) {
	router := &fakeRouter{err: errors.New("pq: password authentication failed for user service_role")}
	s := newTestServer(t, router, nil, nil)

	rec := postChat(s, `{"message": "hello"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestChat_ProfileCommand(t *testing.T) {
	router := &fakeRouter{}
	s := newTestServer(t, router, nil, nil)

	rec := postChat(s, `{"message": "/profile Google"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, router.dispatched, 1)
	assert.Equal(t, routeintent.IntentEmployerCount, router.dispatchedAs[0])
	assert.Equal(t, "Google", router.dispatched[0].Employer)
	assert.Empty(t, router.routed)
	assert.Contains(t, rec.Body.String(), "profile of Google")
}

func TestChat_ProfileWithoutCompany(t *testing.T) {
	router := &fakeRouter{}
	s := newTestServer(t, router, nil, nil)

	rec := postChat(s, `{"message": "/profile"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "/profile Google")
	assert.Empty(t, router.dispatched)
}

func TestChat_HelpCommand(t *testing.T) {
	router := &fakeRouter{}
	s := newTestServer(t, router, nil, nil)

	rec := postChat(s, `{"message": "/help"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, llmfallback.HelpText, resp.Answer)
	assert.Equal(t, "fallback", resp.Intent)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, router.routed)
}

// ==========================
// Rate Limiter Tests
// ==========================

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 2, logger.NewTestLogger(t))
	router := &fakeRouter{result: defaultResult()}
	s := newTestServer(t, router, limiter, nil)

	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`).Code)
	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`).Code)

	rec := postChat(s, `{"message": "hello"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Len(t, router.routed, 2)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`).Code)
}

func TestRateLimiter_IgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 2, logger.NewTestLogger(t))
	s := newTestServer(t, &fakeRouter{result: defaultResult()}, limiter, nil)

	statuses := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i+1)
		rec := postChat(s, `{"message": "hello"}`, "X-Forwarded-For", ip, "X-Real-IP", ip)
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, []int{200, 200, 429, 429, 429, 429}, statuses)
	assert.True(t, mr.Exists("ratelimit:chat:192.0.2.1"))
}

func TestRateLimiter_TrustedProxyForwardsClientIP(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer redisClient.Close()

	limiter := NewRateLimiter(redisClient, 1, logger.NewTestLogger(t))
	cfg := config.ServerConfig{Address: ":0", TrustedProxies: []string{"192.0.2.0/24", "not-a-cidr"}}
	s := newTestServerWithConfig(t, cfg, &fakeRouter{result: defaultResult()}, limiter, nil)

	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`, "X-Forwarded-For", "203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, postChat(s, `{"message": "hello"}`, "X-Forwarded-For", "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`, "X-Forwarded-For", "203.0.113.8").Code)
	assert.True(t, mr.Exists("ratelimit:chat:203.0.113.7"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectIncr("ratelimit:chat:192.0.2.1").SetErr(errors.New("connection refused"))

	limiter := NewRateLimiter(database.NewRedisFromClient(db), 1, logger.NewTestLogger(t))
	s := newTestServer(t, &fakeRouter{result: defaultResult()}, limiter, nil)

	rec := postChat(s, `{"message": "hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_DisabledWithoutLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()

	limiter := NewRateLimiter(database.NewRedisFromClient(db), 0, logger.NewTestLogger(t))
	s := newTestServer(t, &fakeRouter{result: defaultResult()}, limiter, nil)

	assert.Equal(t, http.StatusOK, postChat(s, `{"message": "hello"}`).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Health and Metrics Tests
// ==========================

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil, nil)

	rec := get(s, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReady(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil, map[string]Pinger{
		"store": fakePinger{},
		"redis": nil,
	})

	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/ready").Code, "not ready before start")

	s.checker.SetReady(true)
	rec := get(s, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store"`)
	assert.NotContains(t, rec.Body.String(), `"redis"`)
}

func TestReady_DependencyDown(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil, map[string]Pinger{
		"store": fakePinger{err: errors.New("dial tcp: connection refused")},
	})
	s.checker.SetReady(true)

	rec := get(s, "/ready")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeRouter{result: defaultResult()}, nil, nil)
	postChat(s, `{"message": "hello"}`)

	rec := get(s, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_requests_total")
}
