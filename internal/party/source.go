// Package party loads counterparty spread configurations.
package party

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/pkg/cache"
	"github.com/goldline/ratedesk/pkg/model"
)

var (
	// ErrNegativeSpread rejects configs with a bid or ask below zero.
	ErrNegativeSpread = errors.New("party: negative spread")
	// ErrUnknownParty is returned when the party service answers 404.
	ErrUnknownParty = errors.New("party: unknown party")
)

type currencyDTO struct {
	Currency  string  `json:"currency"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	IsDefault bool    `json:"isDefault"`
}

type partyDTO struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Currencies []currencyDTO `json:"currencies"`
}

// Doer executes a JSON request; *httpclient.Executor satisfies it.
type Doer interface {
	DoJSON(ctx context.Context, req httpclient.Request, out any) error
}

// Source fetches party spreads from the party service and caches them.
type Source struct {
	logger  *zap.Logger
	exec    Doer
	baseURL string
	cache   *cache.TTL[model.PartySpreadConfig]
}

// NewSource constructs a party spread source.
func NewSource(logger *zap.Logger, exec Doer, baseURL string, c *cache.TTL[model.PartySpreadConfig]) *Source {
	return &Source{
		logger:  logger,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   c,
	}
}

// Get returns the cached config for id, loading it on a miss.
func (s *Source) Get(ctx context.Context, id string) (model.PartySpreadConfig, error) {
	if cfg, ok := s.cache.Get(id); ok {
		return cfg, nil
	}
	return s.load(ctx, id)
}

// Reload drops any cached config for id and loads it again.
func (s *Source) Reload(ctx context.Context, id string) (model.PartySpreadConfig, error) {
	s.cache.Bust(id)
	return s.load(ctx, id)
}

func (s *Source) load(ctx context.Context, id string) (model.PartySpreadConfig, error) {
	if strings.TrimSpace(id) == "" {
		return model.PartySpreadConfig{}, ErrUnknownParty
	}

	var dto partyDTO
	req := httpclient.Request{
		Method: http.MethodGet,
		URL:    s.baseURL + "/parties/" + url.PathEscape(id),
	}
	if err := s.exec.DoJSON(ctx, req, &dto); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return model.PartySpreadConfig{}, fmt.Errorf("%w: %s", ErrUnknownParty, id)
		}
		return model.PartySpreadConfig{}, fmt.Errorf("load party %s: %w", id, err)
	}

	cfg, err := s.toConfig(id, dto)
	if err != nil {
		return model.PartySpreadConfig{}, err
	}
	s.cache.Put(id, cfg)
	s.logger.Info("party.spreads_loaded",
		zap.String("party", id),
		zap.Int("currencies", len(cfg.Spreads)))
	return cfg, nil
}

func (s *Source) toConfig(id string, dto partyDTO) (model.PartySpreadConfig, error) {
	cfg := model.PartySpreadConfig{
		PartyID: id,
		Name:    dto.Name,
		Spreads: make(map[model.CurrencyCode]model.Spread, len(dto.Currencies)),
	}
	if dto.ID != "" {
		cfg.PartyID = dto.ID
	}

	for _, c := range dto.Currencies {
		code, err := model.ParseCurrency(c.Currency)
		if err != nil {
			s.logger.Warn("party.currency_invalid",
				zap.String("party", id),
				zap.String("currency", c.Currency))
			continue
		}
		if c.Bid < 0 || c.Ask < 0 {
			return model.PartySpreadConfig{}, fmt.Errorf("%w: party %s currency %s", ErrNegativeSpread, id, code)
		}
		cfg.Spreads[code] = model.Spread{Bid: c.Bid, Ask: c.Ask}
		if c.IsDefault && cfg.DefaultCurrency == "" {
			cfg.DefaultCurrency = code
		}
	}
	return cfg, nil
}
