package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldline/ratedesk/internal/feed"
	"github.com/goldline/ratedesk/pkg/model"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(feed.LiveRatePath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":{"USD_TO_AED":3.6725,"USD_TO_INR":83.5},"fetchedAt":"2026-03-01T09:00:00Z"}`))
	})
	mux.HandleFunc("/parties/P1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"P1","name":"Acme","currencies":[{"currency":"USD","bid":0.001,"ask":0.001,"isDefault":true}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RATE_FEED_URL", srv.URL)
	t.Setenv("PARTY_API_URL", srv.URL)
	t.Setenv("GOLD_FEED_POLL_URL", "")
	t.Setenv("FALLBACK_PIVOTS", "")
	t.Setenv("SUPPORTED_CURRENCIES", "USD,AED,INR")
	t.Setenv("RETRY_ATTEMPTS", "1")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

// ─── rates ───────────────────────────────────────────────────────────────────

func TestRates_Table(t *testing.T) {
	out, err := runCLI(t, newUpstream(t), "rates", "--base", "aed")
	require.NoError(t, err)

	assert.Contains(t, out, "BASE AED")
	assert.Contains(t, out, "0.272294")
	assert.Contains(t, out, "22.736555")
}

func TestRates_JSON(t *testing.T) {
	out, err := runCLI(t, newUpstream(t), "rates", "--base", "USD", "--json")
	require.NoError(t, err)

	var snap model.RateSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, model.USD, snap.Base)
	assert.InDelta(t, 83.5, snap.Rates[model.INR].Value, 1e-9)
	assert.InDelta(t, 3.6725, snap.Rates[model.AED].Value, 1e-9)
}

func TestRates_InvalidBase(t *testing.T) {
	_, err := runCLI(t, newUpstream(t), "rates", "--base", "DOLLAR")
	require.Error(t, err)
}

// ─── price ───────────────────────────────────────────────────────────────────

func TestPrice_AppliesPartySpreads(t *testing.T) {
	out, err := runCLI(t, newUpstream(t), "price", "--base", "INR", "--party", "P1", "--json")
	require.NoError(t, err)

	var pairs []model.PricedPair
	require.NoError(t, json.Unmarshal([]byte(out), &pairs))
	require.Len(t, pairs, 1)
	assert.Equal(t, model.USD, pairs[0].Quote)
	assert.InDelta(t, 1/83.5, pairs[0].Value, 1e-12)
	assert.InDelta(t, pairs[0].Value+0.001, pairs[0].BuyRate, 1e-12)
	assert.InDelta(t, pairs[0].Value-0.001, pairs[0].SellRate, 1e-12)
}

func TestPrice_RequiresParty(t *testing.T) {
	_, err := runCLI(t, newUpstream(t), "price", "--base", "AED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--party")
}

func TestPrice_UnknownParty(t *testing.T) {
	_, err := runCLI(t, newUpstream(t), "price", "--base", "AED", "--party", "P9")
	require.Error(t, err)
}
