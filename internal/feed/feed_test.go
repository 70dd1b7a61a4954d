package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/internal/retry"
	"github.com/goldline/ratedesk/pkg/model"
)

func newTestExec(attempts int, client *http.Client, source string) *httpclient.Executor {
	policy := retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return httpclient.New(zap.NewNop(), nil, client, policy, source)
}

type recordingSink struct {
	mu    sync.Mutex
	ticks []*model.RawGoldTick
}

func (s *recordingSink) Update(raw *model.RawGoldTick) model.GoldQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, raw)
	if raw == nil || raw.Bid == nil {
		return model.GoldQuote{MarketStatus: model.MarketError}
	}
	return model.GoldQuote{Bid: *raw.Bid, MarketStatus: model.MarketTradeable}
}

func (s *recordingSink) snapshot() []*model.RawGoldTick {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RawGoldTick, len(s.ticks))
	copy(out, s.ticks)
	return out
}

// ─── PivotClient ──────────────────────────────────────────────────────────────

func TestPivotClient_Fetch(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{
			"rates": {"USD_TO_INR": 83.5, "usd_to_aed": "3.6725", "USD_TO_EUR": "n/a", "BOGUS": 1, "USD_TO_GBP": -1},
			"fetchedAt": "2026-03-01T10:00:00Z"
		}`))
	}))
	defer srv.Close()

	c := NewPivotClient(zap.NewNop(), newTestExec(1, srv.Client(), FeedPivots),
		StaticCredentials{APIKey: "k1", BaseURL: srv.URL + "/"})

	set, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, LiveRatePath, gotPath)
	assert.Equal(t, map[string]float64{"USD_TO_INR": 83.5, "USD_TO_AED": 3.6725}, set.Rates)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), set.FetchedAt)
}

func TestPivotClient_MissingRatesIsMalformed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewPivotClient(zap.NewNop(), newTestExec(3, srv.Client(), FeedPivots), StaticCredentials{BaseURL: srv.URL})

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.EqualValues(t, 1, calls.Load(), "malformed responses are not retried")
}

func TestPivotClient_429TwiceThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"rates":{"USD_TO_AED":3.6725}}`))
	}))
	defer srv.Close()

	c := NewPivotClient(zap.NewNop(), newTestExec(3, srv.Client(), FeedPivots), StaticCredentials{BaseURL: srv.URL})

	set, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3.6725, set.Rates["USD_TO_AED"])
	assert.False(t, set.FetchedAt.IsZero(), "falls back to local clock when fetchedAt absent")
}

func TestPivotClient_429ThriceFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPivotClient(zap.NewNop(), newTestExec(3, srv.Client(), FeedPivots), StaticCredentials{BaseURL: srv.URL})

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}

type failingCreds struct{}

func (failingCreds) Resolve(context.Context, string) (Credentials, error) {
	return Credentials{}, errors.New("vault sealed")
}

func TestPivotClient_CredentialFailure(t *testing.T) {
	c := NewPivotClient(zap.NewNop(), newTestExec(1, nil, FeedPivots), failingCreds{})
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault sealed")
}

func TestPivotClient_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewPivotClient(zap.NewNop(), newTestExec(3, srv.Client(), FeedPivots), StaticCredentials{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// ─── GoldPoller ───────────────────────────────────────────────────────────────

func TestGoldPoller_PollOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"bid":2000.5,"offer":2001,"marketStatus":"TRADEABLE"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	p := NewGoldPoller(zap.NewNop(), newTestExec(1, srv.Client(), FeedGold), srv.URL, sink, time.Minute)

	q, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.5, q.Bid)

	ticks := sink.snapshot()
	require.Len(t, ticks, 1)
	require.NotNil(t, ticks[0].Offer)
	assert.Equal(t, 2001.0, *ticks[0].Offer)
}

func TestGoldPoller_FailureMarksError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	p := NewGoldPoller(zap.NewNop(), newTestExec(1, srv.Client(), FeedGold), srv.URL, sink, time.Minute)

	q, err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.MarketError, q.MarketStatus)
	ticks := sink.snapshot()
	require.Len(t, ticks, 1)
	assert.Nil(t, ticks[0])
}

func TestGoldPoller_StartStop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"bid":2000}`))
	}))
	defer srv.Close()

	p := NewGoldPoller(zap.NewNop(), newTestExec(1, srv.Client(), FeedGold), srv.URL, &recordingSink{}, 10*time.Millisecond)
	p.Start(context.Background())

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()
}

// ─── GoldStream ───────────────────────────────────────────────────────────────

func TestGoldStream_ForwardsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-API-Key"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"bid":2000,"marketStatus":"LOADING"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not-json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"bid":2001,"marketStatus":"TRADEABLE"}`))
		// hold the connection open until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	sink := &recordingSink{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewGoldStream(wsURL, Credentials{APIKey: "k2"}, sink, zap.NewNop()).WithReconnectDelay(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	ticks := sink.snapshot()
	assert.Equal(t, 2000.0, *ticks[0].Bid)
	assert.Equal(t, 2001.0, *ticks[1].Bid)
	assert.Equal(t, "k2", gotKey.Load())
	assert.True(t, s.IsConnected())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
	assert.False(t, s.IsConnected())
}

func TestGoldStream_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"bid":2000}`))
		if n == 1 {
			_ = conn.Close()
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	sink := &recordingSink{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewGoldStream(wsURL, Credentials{}, sink, zap.NewNop()).WithReconnectDelay(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return conns.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	var sawDisconnect bool
	for _, tk := range sink.snapshot() {
		if tk == nil {
			sawDisconnect = true
		}
	}
	assert.True(t, sawDisconnect, "a dropped connection reports an unavailable tick")
}
