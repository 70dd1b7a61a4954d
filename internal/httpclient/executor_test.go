package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/rate"
	"github.com/goldline/ratedesk/internal/retry"
)

func newExec(attempts int, client *http.Client) *Executor {
	policy := retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return New(zap.NewNop(), nil, client, policy, "test")
}

// countingHandler returns a handler whose response alternates based on a call counter.
// For calls <= failCount it returns failStatus; afterwards it returns 200 with body.
func countingHandler(failCount int, failStatus int, successBody []byte) (http.Handler, *atomic.Int32) {
	var n atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(n.Add(1)) <= failCount {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(successBody)
	}), &n
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
	retries  int
}

func (o *recordingObserver) ObserveRequest(_ string, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) IncRetry(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

// ─── Basic success ────────────────────────────────────────────────────────────

func TestDoJSON_SuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	exec := newExec(3, srv.Client())

	var out map[string]string
	require.NoError(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out))
	assert.Equal(t, "ok", out["result"])
}

// ─── 5xx retry then success ───────────────────────────────────────────────────

func TestDoJSON_Retries5xxThenSucceeds(t *testing.T) {
	h, count := countingHandler(1, http.StatusServiceUnavailable, []byte(`{"result":"ok"}`))
	srv := httptest.NewServer(h)
	defer srv.Close()

	obs := &recordingObserver{}
	exec := newExec(3, srv.Client()).WithObserver(obs)

	var out map[string]string
	require.NoError(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out))
	assert.EqualValues(t, 2, count.Load(), "expected exactly 2 attempts")
	assert.Equal(t, "ok", out["result"])
	assert.Equal(t, []string{"503", "200"}, obs.statuses)
	assert.Equal(t, 1, obs.retries)
}

// ─── 429 is retried like a server error ──────────────────────────────────────

func TestDoJSON_429TwiceThenSuccess(t *testing.T) {
	h, count := countingHandler(2, http.StatusTooManyRequests, []byte(`{"v":1}`))
	srv := httptest.NewServer(h)
	defer srv.Close()

	exec := newExec(3, srv.Client())

	var out map[string]int
	require.NoError(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out))
	assert.EqualValues(t, 3, count.Load())
	assert.Equal(t, 1, out["v"])
}

// ─── POST body is re-sent on retry ───────────────────────────────────────────

func TestDoJSON_PostBodyResentOnRetry(t *testing.T) {
	var mu sync.Mutex
	var received []string
	var contentTypes []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(b))
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		n := len(received)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	exec := newExec(2, srv.Client())

	req := Request{Method: http.MethodPost, URL: srv.URL, Body: map[string]string{"value": "hello"}}
	require.NoError(t, exec.DoJSON(context.Background(), req, nil))
	require.Len(t, received, 2, "expected two attempts")
	assert.JSONEq(t, `{"value":"hello"}`, received[0], "first attempt body")
	assert.JSONEq(t, `{"value":"hello"}`, received[1], "retry must re-send the full body")
	assert.Equal(t, "application/json", contentTypes[1])
}

// ─── Headers are applied to every attempt ────────────────────────────────────

func TestDoJSON_HeadersForwarded(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())
	req := Request{Method: http.MethodGet, URL: srv.URL, Header: http.Header{"X-Api-Key": []string{"secret"}}}
	require.NoError(t, exec.DoJSON(context.Background(), req, nil))
	assert.Equal(t, "secret", got)
}

// ─── 4xx: no retry ────────────────────────────────────────────────────────────

func TestDoJSON_4xxNotRetried(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	exec := newExec(3, srv.Client())

	err := exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.EqualValues(t, 1, count.Load(), "4xx must not be retried")
}

// ─── All retries exhausted ────────────────────────────────────────────────────

func TestDoJSON_ExhaustAllRetries(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := newExec(3, srv.Client())

	err := exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.EqualValues(t, 3, count.Load(), "MaxAttempts=3 means 3 total attempts")
}

// ─── MaxAttempts=1: single attempt only ──────────────────────────────────────

func TestDoJSON_SingleAttempt(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())

	require.Error(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil))
	assert.EqualValues(t, 1, count.Load(), "MaxAttempts=1 means exactly one attempt")
}

// ─── Custom error handler receives body ──────────────────────────────────────

func TestDoJSON_CustomErrorHandlerCalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID"}`))
	}))
	defer srv.Close()

	exec := newExec(3, srv.Client()).WithErrorHandler(func(status int, body []byte) error {
		return fmt.Errorf("upstream %d: %s", status, body)
	})

	err := exec.DoJSON(context.Background(), Request{Method: http.MethodPost, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "INVALID")
}

// ─── JSON decode error ────────────────────────────────────────────────────────

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())

	var out map[string]string
	err := exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")
}

// ─── Per-attempt timeout is retried ──────────────────────────────────────────

func TestDoJSON_TimeoutRetried(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 50 * time.Millisecond}
	exec := New(zap.NewNop(), nil, srv.Client(), policy, "test")

	var out map[string]bool
	require.NoError(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out))
	assert.True(t, out["ok"])
	assert.EqualValues(t, 2, count.Load())
}

// ─── Rate limiter is consulted per attempt ───────────────────────────────────

func TestDoJSON_RateLimitedContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 0, Burst: 1})
	exec := New(zap.NewNop(), mgr, srv.Client(), retry.Policy{MaxAttempts: 1}, "test")

	require.NoError(t, exec.DoJSON(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := exec.DoJSON(ctx, Request{Method: http.MethodGet, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
