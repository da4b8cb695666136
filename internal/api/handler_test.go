package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/logger"
	"triage/internal/store"
	"triage/pkg/circuitbreaker"
	apperrors "triage/pkg/errors"
	"triage/pkg/models"
	"triage/pkg/ratelimit"
)

const testSecret = "test-secret"

type stubRunner struct {
	summary models.BatchSummary
	err     error
	got     models.ProcessRequest
}

func (s *stubRunner) Run(_ context.Context, req models.ProcessRequest) (models.BatchSummary, error) {
	s.got = req
	return s.summary, s.err
}

type stubStats struct {
	stats models.QueueStats
	err   error
}

func (s stubStats) Stats(context.Context, string) (models.QueueStats, error) {
	return s.stats, s.err
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type testServer struct {
	runner *stubRunner
	errors *apperrors.RingLog
	router http.Handler
}

func newTestServer(t *testing.T, runner *stubRunner, stats stubStats, limit *ratelimit.Limiter) *testServer {
	t.Helper()
	errs := apperrors.NewRingLog(10, nil)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(""), nil, nil)
	breakers.Get("model")

	h := NewHandler(HandlerDeps{
		Processor: runner,
		Status:    stats,
		Runs:      store.NewMemoryStore(),
		Breakers:  breakers,
		Errors:    errs,
	})
	router := NewRouter(context.Background(), RouterConfig{
		ServiceName:  "triage-test",
		AuthEnabled:  true,
		JWTSecret:    testSecret,
		ProcessLimit: limit,
		Logger:       logger.NopLogger(),
	}, h)
	return &testServer{runner: runner, errors: errs, router: router}
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestProcessEndpoint(t *testing.T) {
	runner := &stubRunner{summary: models.BatchSummary{
		BatchID:    "b1",
		Processed:  2,
		Successful: 1,
		Failed:     1,
		Results:    []models.ProcessingResult{{MessageID: "a", Success: true}, {MessageID: "b", FallbackUsed: true}},
	}}
	srv := newTestServer(t, runner, stubStats{}, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/process", `{"messageIds":["a","b"],"batchSize":5}`, token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["processed"])
	assert.EqualValues(t, 1, body["failed"])
	assert.Len(t, body["results"], 2)

	assert.Equal(t, "alice", runner.got.OwnerID)
	assert.Equal(t, []string{"a", "b"}, runner.got.MessageIDs)
	assert.Equal(t, 5, runner.got.BatchSize)
}

func TestProcessEndpointEmptyBody(t *testing.T) {
	runner := &stubRunner{summary: models.BatchSummary{Message: "No messages to process"}}
	srv := newTestServer(t, runner, stubStats{}, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/process", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "No messages to process", body["message"])
	assert.Equal(t, []interface{}{}, body["results"])
}

func TestProcessEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		bearer     string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "no token", wantStatus: http.StatusUnauthorized, wantError: "Unauthorized"},
		{name: "bad token", bearer: "not-a-jwt", wantStatus: http.StatusUnauthorized, wantError: "Unauthorized"},
		{name: "malformed body", bearer: "ok", body: `{"messageIds":`, wantStatus: http.StatusBadRequest},
		{
			name:       "batch ceiling",
			bearer:     "ok",
			err:        apperrors.ErrRateLimited.WithDetail("retryAfter", 3600),
			wantStatus: http.StatusTooManyRequests,
			wantError:  "Rate limit exceeded",
		},
		{
			name:       "store down",
			bearer:     "ok",
			err:        apperrors.ErrDatabase.WithCause(errors.New("connection refused")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
		{
			name:       "plain error",
			bearer:     "ok",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubRunner{err: tt.err}, stubStats{}, nil)
			bearer := tt.bearer
			if bearer == "ok" {
				bearer = token(t, "alice")
			}
			rec := srv.do(t, http.MethodPost, "/api/v1/process", tt.body, bearer)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode(t, rec)["error"])
			}
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
				assert.EqualValues(t, 3600, decode(t, rec)["retryAfter"])
			}
		})
	}
}

func TestTokenSignedWithOtherKeyRejected(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{}, nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "mallory"})
	signed, err := tok.SignedString([]byte("other"))
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/v1/process", "", signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcessWindowMiddleware(t *testing.T) {
	limit := ratelimit.NewLimiter(ratelimit.Policy{Name: "process", MaxRequests: 2, Window: time.Minute}, ratelimit.NewMemoryStore())
	srv := newTestServer(t, &stubRunner{}, stubStats{}, limit)
	bearer := token(t, "alice")

	for i := 0; i < 2; i++ {
		rec := srv.do(t, http.MethodPost, "/api/v1/process", "", bearer)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := srv.do(t, http.MethodPost, "/api/v1/process", "", bearer)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = srv.do(t, http.MethodPost, "/api/v1/process", "", token(t, "bob"))
	assert.Equal(t, http.StatusOK, rec.Code, "windows are per caller")
}

func TestProcessWindowSkipsStatusReads(t *testing.T) {
	limit := ratelimit.NewLimiter(ratelimit.Policy{Name: "process", MaxRequests: 1, Window: time.Minute}, ratelimit.NewMemoryStore())
	srv := newTestServer(t, &stubRunner{}, stubStats{}, limit)
	bearer := token(t, "alice")

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodGet, "/api/v1/process", "", bearer)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/process", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/v1/process", "", bearer)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/process", "", bearer)
	assert.Equal(t, http.StatusOK, rec.Code, "status stays readable after the window fills")
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{stats: models.QueueStats{Pending: 3, Completed: 2, Total: 5, Degraded: true}}, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/process", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["pending"])
	assert.EqualValues(t, 5, body["total"])
	assert.Equal(t, true, body["degraded"])
}

func TestErrorsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{}, nil)
	for i := 0; i < 3; i++ {
		srv.errors.Track(errors.New("rate limit exceeded"), apperrors.Context{Component: apperrors.ComponentModel})
	}

	rec := srv.do(t, http.MethodGet, "/api/v1/errors?limit=2", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["errors"], 2)
	assert.EqualValues(t, 3, body["total"])

	rec = srv.do(t, http.MethodGet, "/api/v1/errors?limit=abc", "", token(t, "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResilienceEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{}, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/resilience", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	breakers, ok := body["breakers"].([]interface{})
	require.True(t, ok)
	require.Len(t, breakers, 1)
	assert.Equal(t, "CLOSED", breakers[0].(map[string]interface{})["state"])
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{}, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/history", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []interface{}{}, body["runs"])
	assert.Equal(t, []interface{}{}, body["results"])
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, stubStats{}, nil)
	rec := srv.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
