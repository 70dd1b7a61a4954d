package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/pkg/model"
)

// TradesPath is the trade collection on the persistence service.
const TradesPath = "/currency-trading/trades"

// Doer executes a JSON request; *httpclient.Executor satisfies it.
type Doer interface {
	DoJSON(ctx context.Context, req httpclient.Request, out any) error
}

// RESTStore persists trades through the trade API.
type RESTStore struct {
	exec    Doer
	baseURL string
}

// NewRESTStore builds a Store over the trade API at baseURL. The executor
// should not retry writes; the API is not idempotent for POST.
func NewRESTStore(exec Doer, baseURL string) *RESTStore {
	return &RESTStore{exec: exec, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *RESTStore) collection() string { return s.baseURL + TradesPath }

func (s *RESTStore) item(id string) string { return s.collection() + "/" + url.PathEscape(id) }

// List implements Store. The API may answer with a bare array or {"trades": [...]}.
func (s *RESTStore) List(ctx context.Context) ([]model.Trade, error) {
	var raw listResponse
	if err := s.exec.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, URL: s.collection()}, &raw); err != nil {
		return nil, err
	}
	return raw.Trades, nil
}

// Create implements Store.
func (s *RESTStore) Create(ctx context.Context, t model.Trade) (model.Trade, error) {
	var out model.Trade
	err := s.exec.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, URL: s.collection(), Body: t}, &out)
	return out, err
}

// Update implements Store.
func (s *RESTStore) Update(ctx context.Context, t model.Trade) (model.Trade, error) {
	var out model.Trade
	err := s.exec.DoJSON(ctx, httpclient.Request{Method: http.MethodPut, URL: s.item(t.OrderID), Body: t}, &out)
	if isNotFound(err) {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrNotFound, t.OrderID)
	}
	return out, err
}

// Delete implements Store.
func (s *RESTStore) Delete(ctx context.Context, orderID string) error {
	err := s.exec.DoJSON(ctx, httpclient.Request{Method: http.MethodDelete, URL: s.item(orderID)}, nil)
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return err
}

func isNotFound(err error) bool {
	var se *httpclient.StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type listResponse struct {
	Trades []model.Trade
}

func (l *listResponse) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		return json.Unmarshal(b, &l.Trades)
	}
	var wrapped struct {
		Trades []model.Trade `json:"trades"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	l.Trades = wrapped.Trades
	return nil
}
