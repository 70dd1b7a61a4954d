package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/pkg/model"
)

// LiveRatePath is the pivot-rate endpoint relative to the feed base URL.
const LiveRatePath = "/currency-trading/live-rate"

type liveRateResponse struct {
	Rates     map[string]json.RawMessage `json:"rates"`
	FetchedAt string                     `json:"fetchedAt"`
}

// PivotClient fetches the current PivotRateSet.
type PivotClient struct {
	logger *zap.Logger
	exec   Doer
	creds  CredentialSource
	now    func() time.Time
}

// NewPivotClient constructs a pivot fetcher over a retrying executor.
func NewPivotClient(logger *zap.Logger, exec Doer, creds CredentialSource) *PivotClient {
	return &PivotClient{
		logger: logger,
		exec:   exec,
		creds:  creds,
		now:    time.Now,
	}
}

// Fetch retrieves pivots. Retries and backoff are owned by the executor;
// ctx cancellation aborts the in-flight attempt and any pending backoff.
func (c *PivotClient) Fetch(ctx context.Context) (model.PivotRateSet, error) {
	creds, err := c.creds.Resolve(ctx, FeedPivots)
	if err != nil {
		return model.PivotRateSet{}, fmt.Errorf("resolve feed credentials: %w", err)
	}

	var resp liveRateResponse
	req := httpclient.Request{
		Method: http.MethodGet,
		URL:    joinURL(creds.BaseURL, LiveRatePath),
		Header: authHeader(creds),
	}
	if err := c.exec.DoJSON(ctx, req, &resp); err != nil {
		return model.PivotRateSet{}, fmt.Errorf("fetch pivots: %w", err)
	}
	if resp.Rates == nil {
		return model.PivotRateSet{}, fmt.Errorf("%w: missing rates", ErrMalformedResponse)
	}

	set := model.PivotRateSet{
		Rates:     make(map[string]float64, len(resp.Rates)),
		FetchedAt: c.now().UTC(),
	}
	if ts, err := time.Parse(time.RFC3339, resp.FetchedAt); err == nil {
		set.FetchedAt = ts.UTC()
	}

	for name, raw := range resp.Rates {
		from, to, err := model.ParsePivotName(name)
		if err != nil {
			c.logger.Warn("feed.pivot_name_invalid", zap.String("pivot", name))
			continue
		}
		v, ok := parseRate(raw)
		if !ok || !model.IsUsableRate(v) {
			c.logger.Warn("feed.pivot_value_invalid",
				zap.String("pivot", name),
				zap.ByteString("value", raw))
			continue
		}
		set.Rates[model.PivotName(from, to)] = v
	}

	c.logger.Debug("feed.pivots_fetched",
		zap.Int("count", len(set.Rates)),
		zap.Time("fetched_at", set.FetchedAt))
	return set, nil
}

// parseRate accepts JSON numbers and numeric strings.
func parseRate(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
