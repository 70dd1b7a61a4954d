package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/internal/retry"
	"github.com/goldline/ratedesk/pkg/model"
)

func newRESTStore(t *testing.T, h http.HandlerFunc) *RESTStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	exec := httpclient.New(zap.NewNop(), nil, srv.Client(), retry.Policy{MaxAttempts: 1, Timeout: time.Second}, "trade_api")
	return NewRESTStore(exec, srv.URL+"/")
}

func TestRESTStore_ListShapes(t *testing.T) {
	for name, body := range map[string]string{
		"bare array": `[{"orderId":"a","amount":"10","status":"ACTIVE"}]`,
		"wrapped":    `{"trades":[{"orderId":"a","amount":10,"status":"ACTIVE"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newRESTStore(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, TradesPath, r.URL.Path)
				_, _ = io.WriteString(w, body)
			})

			list, err := s.List(context.Background())
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "a", list[0].OrderID)
			assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(10)))
		})
	}
}

func TestRESTStore_CreatePostsTrade(t *testing.T) {
	s := newRESTStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, TradesPath, r.URL.Path)
		var in model.Trade
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ord-1", in.OrderID)
		assert.Equal(t, "3672.5", in.Converted.String())

		in.Reference = "TRD-77"
		_ = json.NewEncoder(w).Encode(in)
	})

	out, err := s.Create(context.Background(), model.Trade{
		OrderID:   "ord-1",
		Amount:    decimal.NewFromInt(1000),
		Rate:      decimal.RequireFromString("3.6725"),
		Converted: decimal.RequireFromString("3672.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "TRD-77", out.Reference)
}

func TestRESTStore_UpdateAndDeleteAddressItem(t *testing.T) {
	var seen []string
	s := newRESTStore(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			_, _ = io.Copy(w, r.Body)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := s.Update(context.Background(), model.Trade{OrderID: "ord-1"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "ord-1"))

	assert.Equal(t, []string{
		"PUT " + TradesPath + "/ord-1",
		"DELETE " + TradesPath + "/ord-1",
	}, seen)
}

func TestRESTStore_NotFound(t *testing.T) {
	s := newRESTStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := s.Update(context.Background(), model.Trade{OrderID: "gone"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "gone"), ErrNotFound)
}

func TestRESTStore_ServerErrorSurfaces(t *testing.T) {
	s := newRESTStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := s.Delete(context.Background(), "ord-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLedger_OverRESTStore(t *testing.T) {
	s := newRESTStore(t, func(w http.ResponseWriter, r *http.Request) {
		var in model.Trade
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.Reference = "TRD-1"
		_ = json.NewEncoder(w).Encode(in)
	})
	l := newLedger(s, nil)

	tr, err := l.Execute(context.Background(), ticket())
	require.NoError(t, err)
	assert.Equal(t, "TRD-1", tr.Reference)
	assert.Equal(t, "3672.5", tr.Converted.String())
}
