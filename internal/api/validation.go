package api

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/goldline/ratedesk/internal/desk"
	"github.com/goldline/ratedesk/internal/ledger"
	"github.com/goldline/ratedesk/internal/party"
	"github.com/goldline/ratedesk/internal/watchlist"
	"github.com/goldline/ratedesk/pkg/model"
)

var validate = validator.New()

// bindAndValidate parses the body into T and validates its struct tags.
// On failure the 400 response has already been written.
func bindAndValidate[T any](c *fiber.Ctx) (*T, bool) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		return nil, false
	}
	if err := validate.Struct(input); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		return nil, false
	}
	return &input, true
}

// currencyParam parses a path or query currency, writing a 400 on failure.
func currencyParam(c *fiber.Ctx, raw string) (model.CurrencyCode, bool) {
	code, err := model.ParseCurrency(raw)
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		return "", false
	}
	return code, true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, party.ErrUnknownParty):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrNoParty),
		errors.Is(err, ledger.ErrInvalidPair),
		errors.Is(err, ledger.ErrMissingRate),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, desk.ErrUnsupportedCurrency),
		errors.Is(err, watchlist.ErrBaseCurrency):
		return fiber.StatusBadRequest
	case errors.Is(err, desk.ErrNoPrice),
		errors.Is(err, party.ErrNegativeSpread):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusBadGateway
	}
}
