package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/rate"
	"github.com/goldline/ratedesk/internal/retry"
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Source string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Source, e.Status)
}

// Retryable reports whether the status is worth another attempt (429 and 5xx).
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Request describes one logical call. A fresh *http.Request is built from it
// for every attempt so the body is re-sent on retry.
type Request struct {
	Method string
	URL    string
	Body   any // JSON-encoded when non-nil
	Header http.Header
}

// Observer receives per-attempt outcomes; internal/metrics implements it.
type Observer interface {
	ObserveRequest(source, status string, elapsed time.Duration)
	IncRetry(source string)
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	policy       retry.Policy
	source       string
	observer     Observer
	errorHandler func(status int, body []byte) error
}

// New creates an Executor for one upstream source (used as log prefix,
// metric label and rate-limit key).
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	policy retry.Policy,
	source string,
) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		policy:  policy,
		source:  source,
	}
}

// WithObserver attaches a metrics observer.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// WithErrorHandler maps non-retryable 4xx responses to a source-specific error.
func (e *Executor) WithErrorHandler(fn func(status int, body []byte) error) *Executor {
	e.errorHandler = fn
	return e
}

// Source returns the upstream tag of this executor.
func (e *Executor) Source() string { return e.source }

// DoJSON executes req under the retry policy, then JSON-decodes the response into out.
func (e *Executor) DoJSON(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		e.logger.Warn(e.source+".retry",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if e.observer != nil {
			e.observer.IncRetry(e.source)
		}
	}

	body, err := retry.Do(ctx, e.policy, onRetry, func(ctx context.Context, attempt int) ([]byte, error) {
		return e.attempt(ctx, req, payload, attempt)
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return fmt.Errorf("%s request failed: %w", e.source, err)
		}
		return err
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(e.source+".decode_failed",
				zap.Error(err),
				zap.String("url", req.URL),
				zap.String("body", string(body)))
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	return nil
}

func (e *Executor) attempt(ctx context.Context, req Request, payload []byte, attempt int) ([]byte, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.source); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.http.Do(httpReq)
	if err != nil {
		e.observe("network_error", time.Since(start))
		e.logger.Warn(e.source+".http_failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	e.observe(strconv.Itoa(resp.StatusCode), elapsed)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		se := &StatusError{Source: e.source, Status: resp.StatusCode, Body: body}
		if se.Retryable() {
			e.logger.Warn(e.source+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL),
				zap.Duration("latency", elapsed))
			return nil, se
		}
		if e.errorHandler != nil {
			return nil, retry.Permanent(e.errorHandler(resp.StatusCode, body))
		}
		return nil, retry.Permanent(se)
	}

	e.logger.Debug(e.source+".http_success",
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return body, nil
}

func (e *Executor) observe(status string, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveRequest(e.source, status, elapsed)
	}
}
