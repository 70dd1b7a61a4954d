// Package feed talks to the upstream market-data provider: the pivot-rate
// endpoint and the gold quote source (HTTP poll or websocket push).
package feed

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goldline/ratedesk/internal/httpclient"
)

// ErrMalformedResponse is returned when the feed answers 2xx with an unusable body.
var ErrMalformedResponse = errors.New("malformed feed response")

const (
	FeedPivots = "feed.pivots"
	FeedGold   = "feed.gold"
)

// Credentials are what a feed call needs beyond the path.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// CredentialSource resolves credentials per feed name.
type CredentialSource interface {
	Resolve(ctx context.Context, feed string) (Credentials, error)
}

// StaticCredentials serves the same credentials for every feed.
type StaticCredentials Credentials

// Resolve implements CredentialSource.
func (s StaticCredentials) Resolve(context.Context, string) (Credentials, error) {
	return Credentials(s), nil
}

// Doer executes a JSON request; *httpclient.Executor satisfies it.
type Doer interface {
	DoJSON(ctx context.Context, req httpclient.Request, out any) error
}

func authHeader(c Credentials) http.Header {
	h := http.Header{}
	if c.APIKey != "" {
		h.Set("X-API-Key", c.APIKey)
	}
	return h
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
