package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/gateway"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	CallbackSourceReturn = "return"
	CallbackSourceIPN    = "ipn"
)

// Acknowledgement codes returned to the gateway's IPN caller.
const (
	RspConfirmed        = "00"
	RspOrderNotFound    = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidSignature = "97"
	RspUnknown          = "99"
)

var rspMessages = map[string]string{
	RspConfirmed:        "Confirm Success",
	RspOrderNotFound:    "Order not found",
	RspAlreadyConfirmed: "Order already confirmed",
	RspInvalidAmount:    "Invalid amount",
	RspInvalidSignature: "Invalid signature",
	RspUnknown:          "Unknown error",
}

func RspMessage(code string) string {
	if msg, ok := rspMessages[code]; ok {
		return msg
	}
	return rspMessages[RspUnknown]
}

// Callback outcomes, also used as metric labels.
const (
	OutcomePaid             = "paid"
	OutcomePaymentFailed    = "payment_failed"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeMalformed        = "malformed"
	OutcomeOrderNotFound    = "order_not_found"
	OutcomeAmountMismatch   = "amount_mismatch"
	OutcomeConflict         = "conflict"
	OutcomeError            = "error"
)

type CallbackResult struct {
	Order   *models.Order
	Outcome string
	RspCode string
	// Paid reports whether the order is paid after the callback, whichever
	// request got there first.
	Paid bool
}

func (r *CallbackResult) Message() string {
	return RspMessage(r.RspCode)
}

// PaymentService applies gateway return and IPN callbacks. Both sources go
// through the same verified, idempotent path.
type PaymentService struct {
	gateway PaymentGateway
	orders  *OrderService
	logger  *slog.Logger
}

func NewPaymentService(paymentGateway PaymentGateway, orders *OrderService, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		gateway: paymentGateway,
		orders:  orders,
		logger:  logger.With("component", "payments"),
	}
}

// HandleCallback verifies values and applies the payment result. The result
// is always non-nil; the error carries the taxonomy sentinel when the
// callback was rejected.
func (s *PaymentService) HandleCallback(ctx context.Context, source string, values url.Values) (*CallbackResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payments.callback",
		sentry.WithOpName("service.payments"),
		sentry.WithDescription("HandleCallback"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	result, err := s.handleCallback(ctx, values)
	observability.RecordPaymentCallback(ctx, source, result.Outcome, result.RspCode)

	logger := logging.FromContext(ctx, s.logger).With("source", source, "outcome", result.Outcome, "rsp_code", result.RspCode)
	if result.Order != nil {
		logger = logger.With(logging.OrderAttrs(result.Order)...)
	}
	if err != nil {
		logger.Warn("payment callback rejected", "error", err)
	} else {
		logger.Info("payment callback handled")
	}
	return result, err
}

func (s *PaymentService) handleCallback(ctx context.Context, values url.Values) (*CallbackResult, error) {
	callback, err := s.gateway.ParseCallback(values)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) || errors.Is(err, gateway.ErrMissingSignature) {
			return &CallbackResult{Outcome: OutcomeInvalidSignature, RspCode: RspInvalidSignature},
				fmt.Errorf("%w: %w", ErrSignature, err)
		}
		return &CallbackResult{Outcome: OutcomeMalformed, RspCode: RspUnknown},
			fmt.Errorf("%w: %w", ErrValidation, err)
	}

	order, err := s.orders.FindByTxnRef(ctx, callback.TxnRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &CallbackResult{Outcome: OutcomeOrderNotFound, RspCode: RspOrderNotFound}, err
		}
		return &CallbackResult{Outcome: OutcomeError, RspCode: RspUnknown}, err
	}

	if callback.HasAmount && callback.Amount != order.Total() {
		return &CallbackResult{Order: order, Outcome: OutcomeAmountMismatch, RspCode: RspInvalidAmount, Paid: order.IsPaid()},
			fmt.Errorf("%w: callback amount %d does not match order total %d", ErrValidation, callback.Amount, order.Total())
	}

	if order.IsPaid() {
		return &CallbackResult{Order: order, Outcome: OutcomeDuplicate, RspCode: RspAlreadyConfirmed, Paid: true}, nil
	}

	if callback.Succeeded() {
		return s.applyPaid(ctx, order, callback)
	}
	return s.applyFailed(ctx, order, callback)
}

func (s *PaymentService) applyPaid(ctx context.Context, order *models.Order, callback *gateway.Callback) (*CallbackResult, error) {
	paid, changed, err := s.orders.MarkPaid(ctx, callback.TxnRef, callback.TransactionNo)
	switch {
	case errors.Is(err, ErrConflict):
		return &CallbackResult{Order: order, Outcome: OutcomeConflict, RspCode: RspAlreadyConfirmed}, err
	case errors.Is(err, ErrNotFound):
		return &CallbackResult{Order: order, Outcome: OutcomeOrderNotFound, RspCode: RspOrderNotFound}, err
	case err != nil:
		return &CallbackResult{Order: order, Outcome: OutcomeError, RspCode: RspUnknown}, err
	case !changed:
		return &CallbackResult{Order: paid, Outcome: OutcomeDuplicate, RspCode: RspAlreadyConfirmed, Paid: true}, nil
	default:
		return &CallbackResult{Order: paid, Outcome: OutcomePaid, RspCode: RspConfirmed, Paid: true}, nil
	}
}

func (s *PaymentService) applyFailed(ctx context.Context, order *models.Order, callback *gateway.Callback) (*CallbackResult, error) {
	failed, changed, err := s.orders.MarkPaymentFailed(ctx, callback.TxnRef)
	switch {
	case errors.Is(err, ErrNotFound):
		return &CallbackResult{Order: order, Outcome: OutcomeOrderNotFound, RspCode: RspOrderNotFound}, err
	case err != nil:
		return &CallbackResult{Order: order, Outcome: OutcomeError, RspCode: RspUnknown}, err
	case !changed:
		return &CallbackResult{Order: failed, Outcome: OutcomeDuplicate, RspCode: RspAlreadyConfirmed, Paid: failed.IsPaid()}, nil
	default:
		return &CallbackResult{Order: failed, Outcome: OutcomePaymentFailed, RspCode: RspConfirmed}, nil
	}
}
