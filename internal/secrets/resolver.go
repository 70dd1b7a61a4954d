package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/feed"
	"github.com/goldline/ratedesk/pkg/cache"
	pkgsecrets "github.com/goldline/ratedesk/pkg/secrets"
)

// ErrNoCredentials is returned when neither the secret store nor the
// environment has credentials for a feed.
var ErrNoCredentials = errors.New("no credentials configured for feed")

// FeedResolver resolves upstream feed credentials from the secrets provider,
// caching results locally to reduce API calls. Feeds without a secret fall
// back to the credentials given in the environment.
//
// Secret naming convention: {env}/ratedesk/{feed}
type FeedResolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *cache.TTL[feed.Credentials]
	fallback map[string]feed.Credentials
}

// NewFeedResolver constructs a resolver. provider may be nil, in which case
// only fallback credentials are served.
func NewFeedResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	c *cache.TTL[feed.Credentials],
	fallback map[string]feed.Credentials,
) *FeedResolver {
	return &FeedResolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    c,
		fallback: fallback,
	}
}

// SecretName builds the secrets manager key for a feed.
// Pattern: {env}/ratedesk/{feed}, with the "feed." prefix dropped.
func (r *FeedResolver) SecretName(feedName string) string {
	return strings.ToLower(fmt.Sprintf("%s/ratedesk/%s", r.env, strings.TrimPrefix(feedName, "feed.")))
}

// Resolve implements feed.CredentialSource.
func (r *FeedResolver) Resolve(ctx context.Context, feedName string) (feed.Credentials, error) {
	// --- check in-memory cache first ---
	if creds, ok := r.cache.Get(feedName); ok {
		return creds, nil
	}

	if r.provider != nil {
		name := r.SecretName(feedName)
		secret, err := r.provider.GetSecret(ctx, name)
		switch {
		case err == nil:
			creds, perr := parseCredentials(secret)
			if perr != nil {
				return feed.Credentials{}, fmt.Errorf("parse secret %q: %w", name, perr)
			}
			r.merge(feedName, &creds)
			r.cache.Put(feedName, creds)
			r.logger.Info("secrets.feed_credentials_resolved", zap.String("feed", feedName))
			return creds, nil
		case errors.Is(err, pkgsecrets.ErrSecretNotFound):
			r.logger.Debug("secrets.feed_secret_absent", zap.String("key", name))
		default:
			r.logger.Warn("secrets.secret_fetch_failed", zap.String("key", name), zap.Error(err))
			if _, ok := r.fallback[feedName]; !ok {
				return feed.Credentials{}, fmt.Errorf("resolve credentials for %q: %w", feedName, err)
			}
		}
	}

	creds, ok := r.fallback[feedName]
	if !ok {
		return feed.Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, feedName)
	}
	return creds, nil
}

// Invalidate drops the cached credentials for a feed, e.g. after a 401.
func (r *FeedResolver) Invalidate(feedName string) {
	r.cache.Bust(feedName)
}

// merge fills fields the secret left blank from the environment fallback.
func (r *FeedResolver) merge(feedName string, creds *feed.Credentials) {
	fb, ok := r.fallback[feedName]
	if !ok {
		return
	}
	if creds.BaseURL == "" {
		creds.BaseURL = fb.BaseURL
	}
	if creds.APIKey == "" {
		creds.APIKey = fb.APIKey
	}
}

func parseCredentials(m map[string]string) (feed.Credentials, error) {
	creds := feed.Credentials{
		APIKey:  strings.TrimSpace(m["api_key"]),
		BaseURL: strings.TrimSpace(m["base_url"]),
	}
	if creds.APIKey == "" {
		return feed.Credentials{}, errors.New("missing api_key")
	}
	return creds, nil
}
