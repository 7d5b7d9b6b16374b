package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

type CheckoutLine struct {
	ProductID string
	Quantity  int
}

type CheckoutInput struct {
	Recipient     models.Recipient
	Lines         []CheckoutLine
	PaymentMethod models.PaymentMethod
	ClientIP      string
}

type CheckoutResult struct {
	Order  *models.Order
	Totals Totals
	// PaymentURL is set for gateway orders only.
	PaymentURL string
}

// PurchasedProductIDs lists the product ids the order bought, for clearing
// them from the cart.
func (r *CheckoutResult) PurchasedProductIDs() []string {
	if r == nil || r.Order == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Order.Items))
	for _, item := range r.Order.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

type CheckoutService struct {
	catalog Catalog
	fees    *FeeCalculator
	orders  *OrderService
	logger  *slog.Logger
}

func NewCheckoutService(productCatalog Catalog, fees *FeeCalculator, orders *OrderService, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		catalog: productCatalog,
		fees:    fees,
		orders:  orders,
		logger:  logger.With("component", "checkout"),
	}
}

// ResolveLines snapshots catalog products for the requested lines. Lines for
// the same product are merged.
func (s *CheckoutService) ResolveLines(ctx context.Context, lines []CheckoutLine) ([]models.LineItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	items := make([]models.LineItem, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrValidation, productID)
		}
		if i, ok := index[productID]; ok {
			items[i].Quantity += line.Quantity
			continue
		}

		product, err := s.catalog.FindByID(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: catalog lookup: %w", ErrDependency, err)
		}
		index[productID] = len(items)
		items = append(items, product.Snapshot(line.Quantity))
	}
	return items, nil
}

// Quote returns the totals the shopper would pay for lines shipped to dest.
func (s *CheckoutService) Quote(ctx context.Context, dest carrier.Destination, lines []CheckoutLine) (Totals, error) {
	items, err := s.ResolveLines(ctx, lines)
	if err != nil {
		return Totals{}, err
	}
	fee, err := s.fees.QuoteShippingFee(ctx, dest, items)
	if err != nil {
		return Totals{}, err
	}
	return s.fees.ComputeTotals(items, fee), nil
}

// Checkout creates an order from the selected cart lines. A COD order gets
// its carrier shipment right away; a gateway order gets a payment redirect.
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span, ctx := startSpan(ctx, "checkout", "Checkout")
	defer span.Finish()
	logger := logging.FromContext(ctx, s.logger)

	if !input.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, input.PaymentMethod)
	}

	items, err := s.ResolveLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	dest := carrier.Destination{
		DistrictID: input.Recipient.DistrictID,
		WardCode:   input.Recipient.WardCode,
	}
	fee, err := s.fees.QuoteShippingFee(ctx, dest, items)
	if err != nil {
		return nil, err
	}

	totals := s.fees.ComputeTotals(items, fee)
	if input.PaymentMethod == models.PaymentMethodGateway && totals.Total <= 0 {
		return nil, fmt.Errorf("%w: gateway payments need a positive total", ErrValidation)
	}

	order, err := s.orders.Create(ctx, CreateOrderInput{
		Recipient:     input.Recipient,
		Items:         items,
		PaymentMethod: input.PaymentMethod,
		ShippingFee:   fee,
	})
	if err != nil {
		return nil, err
	}

	// The order is committed; a cancelled request must not strand it halfway.
	ctx = context.WithoutCancel(ctx)
	result := &CheckoutResult{Order: order, Totals: totals}

	if order.PaymentMethod == models.PaymentMethodGateway {
		paymentURL, err := s.orders.PaymentURL(order, input.ClientIP)
		if err != nil {
			// Nobody can pay an order without a payment link.
			if _, cancelErr := s.orders.cancel(ctx, order, ActorSystem); cancelErr != nil {
				logger.Error("failed to cancel unpayable order", "error", cancelErr, "order_id", order.ID)
			}
			return nil, err
		}
		result.PaymentURL = paymentURL
		return result, nil
	}

	shipped, err := s.orders.ensureShipment(ctx, order)
	if err != nil {
		logger.Warn("shipment creation at checkout failed", "error", err, "order_id", order.ID)
	} else {
		result.Order = shipped
	}
	return result, nil
}
