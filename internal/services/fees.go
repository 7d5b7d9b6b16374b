package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

// FeePolicy decides what a checkout does when the carrier cannot quote.
type FeePolicy string

const (
	FeePolicyFallbackZero FeePolicy = "fallback_zero"
	FeePolicyAbort        FeePolicy = "abort"
)

type FeeCalculator struct {
	carrier       Carrier
	cache         QuoteCache
	cacheTTL      time.Duration
	policy        FeePolicy
	defaultWeight int
	logger        *slog.Logger
}

func NewFeeCalculator(carrierClient Carrier, quoteCache QuoteCache, cacheTTL time.Duration, policy FeePolicy, defaultWeight int, logger *slog.Logger) *FeeCalculator {
	if policy == "" {
		policy = FeePolicyFallbackZero
	}
	if defaultWeight <= 0 {
		defaultWeight = models.DefaultItemWeight
	}
	return &FeeCalculator{
		carrier:       carrierClient,
		cache:         quoteCache,
		cacheTTL:      cacheTTL,
		policy:        policy,
		defaultWeight: defaultWeight,
		logger:        logger.With("component", "fee_calculator"),
	}
}

type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shipping_fee"`
	Total       int64 `json:"total"`
	Weight      int   `json:"weight"`
}

// ComputeTotals derives the money fields from line items and a fee.
func (c *FeeCalculator) ComputeTotals(items []models.LineItem, shippingFee int64) Totals {
	order := models.Order{Items: items, ShippingFee: shippingFee}
	return Totals{
		Subtotal:    order.Subtotal(),
		ShippingFee: shippingFee,
		Total:       order.Total(),
		Weight:      order.TotalWeight(c.defaultWeight),
	}
}

// QuoteShippingFee asks the carrier for the fee to ship items to dest,
// applying the configured policy when the carrier fails.
func (c *FeeCalculator) QuoteShippingFee(ctx context.Context, dest carrier.Destination, items []models.LineItem) (int64, error) {
	span := sentry.StartSpan(
		ctx,
		"service.fees.quote",
		sentry.WithOpName("service.fees"),
		sentry.WithDescription("QuoteShippingFee"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, c.logger)
	weight := c.ComputeTotals(items, 0).Weight
	key := cache.FeeQuoteKey(dest.DistrictID, dest.WardCode, weight)

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key)
		if err == nil {
			if fee, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return fee, nil
			}
		} else if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("fee quote cache read failed", "error", err, "key", key)
		}
	}

	fee, err := c.carrier.QuoteFee(ctx, carrier.FeeRequest{Destination: dest, Weight: weight})
	if err != nil {
		if c.policy == FeePolicyAbort {
			return 0, fmt.Errorf("%w: shipping fee quote: %w", ErrDependency, err)
		}
		logger.Warn("carrier fee quote failed, using zero fee",
			"error", err,
			"district_id", dest.DistrictID,
			"ward_code", dest.WardCode,
			"weight", weight,
		)
		return 0, nil
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, key, strconv.FormatInt(fee, 10), c.cacheTTL); err != nil {
			logger.Warn("fee quote cache write failed", "error", err, "key", key)
		}
	}
	return fee, nil
}
