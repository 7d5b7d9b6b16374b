package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/models"
)

func TestCheckoutCODShipsImmediately(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result, err := env.checkout.Checkout(t.Context(), CheckoutInput{
		Recipient:     testRecipient(),
		Lines:         []CheckoutLine{{ProductID: "tea", Quantity: 1}, {ProductID: "tea", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
	})
	require.NoError(t, err)

	assert.Empty(t, result.PaymentURL)
	assert.Equal(t, Totals{Subtotal: 200, ShippingFee: 30, Total: 230, Weight: 600}, result.Totals)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 2, result.Order.Items[0].Quantity)
	assert.Equal(t, "T-1", result.Order.Items[0].Code)
	assert.Equal(t, models.StateShipmentCreated, result.Order.State)
	assert.Equal(t, []string{"tea"}, result.PurchasedProductIDs())
	require.Equal(t, 1, env.carrier.createCount())
	assert.Equal(t, int64(230), env.carrier.created[0].CODAmount)
}

func TestCheckoutGatewayReturnsRedirect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result, err := env.checkout.Checkout(t.Context(), CheckoutInput{
		Recipient:     testRecipient(),
		Lines:         []CheckoutLine{{ProductID: "cup", Quantity: 2}},
		PaymentMethod: models.PaymentMethodGateway,
		ClientIP:      "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingGatewayPayment, result.Order.State)
	assert.Contains(t, result.PaymentURL, "https://sandbox.example.com/pay?")
	assert.Contains(t, result.PaymentURL, "vnp_TxnRef="+result.Order.TxnRef)
	assert.Contains(t, result.PaymentURL, "vnp_Amount=9003000&")
	assert.Equal(t, models.DefaultItemWeight, result.Order.Items[0].UnitWeight)
	assert.Zero(t, env.carrier.createCount())
}

func TestCheckoutGatewayCancelsOrderWithoutPaymentURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gateway.buildErr = errors.New("return url rejected")

	result, err := env.checkout.Checkout(t.Context(), CheckoutInput{
		Recipient:     testRecipient(),
		Lines:         []CheckoutLine{{ProductID: "cup", Quantity: 1}},
		PaymentMethod: models.PaymentMethodGateway,
		ClientIP:      "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, result)

	env.store.mu.Lock()
	orders := make([]*models.Order, 0, len(env.store.orders))
	for _, order := range env.store.orders {
		orders = append(orders, order)
	}
	env.store.mu.Unlock()

	require.Len(t, orders, 1)
	assert.Equal(t, models.StateCancelled, orders[0].State)
	assert.Zero(t, env.carrier.createCount())
}

func TestCheckoutRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  CheckoutInput
		policy FeePolicy
		feeErr error
		want   error
	}{
		{
			name:  "empty cart",
			input: CheckoutInput{Recipient: testRecipient(), PaymentMethod: models.PaymentMethodCOD},
			want:  ErrValidation,
		},
		{
			name: "unknown product",
			input: CheckoutInput{
				Recipient:     testRecipient(),
				Lines:         []CheckoutLine{{ProductID: "nope", Quantity: 1}},
				PaymentMethod: models.PaymentMethodCOD,
			},
			want: ErrValidation,
		},
		{
			name: "inactive product",
			input: CheckoutInput{
				Recipient:     testRecipient(),
				Lines:         []CheckoutLine{{ProductID: "hidden", Quantity: 1}},
				PaymentMethod: models.PaymentMethodCOD,
			},
			want: ErrValidation,
		},
		{
			name: "zero gateway total",
			input: CheckoutInput{
				Recipient:     testRecipient(),
				Lines:         []CheckoutLine{{ProductID: "free", Quantity: 1}},
				PaymentMethod: models.PaymentMethodGateway,
			},
			feeErr: errors.New("carrier down"),
			want:   ErrValidation,
		},
		{
			name: "fee quote aborts",
			input: CheckoutInput{
				Recipient:     testRecipient(),
				Lines:         []CheckoutLine{{ProductID: "tea", Quantity: 1}},
				PaymentMethod: models.PaymentMethodCOD,
			},
			policy: FeePolicyAbort,
			feeErr: errors.New("carrier down"),
			want:   ErrDependency,
		},
		{
			name: "unknown payment method",
			input: CheckoutInput{
				Recipient:     testRecipient(),
				Lines:         []CheckoutLine{{ProductID: "tea", Quantity: 1}},
				PaymentMethod: "card",
			},
			want: ErrValidation,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.carrier.feeErr = tt.feeErr
			if tt.policy != "" {
				env.fees.policy = tt.policy
			}

			_, err := env.checkout.Checkout(t.Context(), tt.input)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, env.store.orders)
		})
	}
}

func TestQuoteShippingFeeFallsBackToZero(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.carrier.feeErr = errors.New("carrier down")

	fee, err := env.fees.QuoteShippingFee(t.Context(), carrier.Destination{DistrictID: 1442, WardCode: "20109"}, teaItems())
	require.NoError(t, err)
	assert.Zero(t, fee)
}

func TestQuoteShippingFeeUsesCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	dest := carrier.Destination{DistrictID: 1442, WardCode: "20109"}

	for range 3 {
		fee, err := env.fees.QuoteShippingFee(t.Context(), dest, teaItems())
		require.NoError(t, err)
		assert.Equal(t, int64(30), fee)
	}
	assert.Equal(t, 1, env.carrier.feeCalls)

	heavier := []models.LineItem{{ProductID: "tea", Quantity: 3, UnitPrice: 100, UnitWeight: 300}}
	_, err := env.fees.QuoteShippingFee(t.Context(), dest, heavier)
	require.NoError(t, err)
	assert.Equal(t, 2, env.carrier.feeCalls)
}

func TestQuoteShippingFeeWithoutCache(t *testing.T) {
	t.Parallel()

	carrierClient := newFakeCarrier()
	calc := NewFeeCalculator(carrierClient, nil, time.Minute, "", 0, testLogger())

	fee, err := calc.QuoteShippingFee(t.Context(), carrier.Destination{DistrictID: 1}, teaItems())
	require.NoError(t, err)
	assert.Equal(t, int64(30), fee)
	assert.Equal(t, FeePolicyFallbackZero, calc.policy)
}

func TestCheckoutQuote(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	totals, err := env.checkout.Quote(t.Context(), carrier.Destination{DistrictID: 1442, WardCode: "20109"}, []CheckoutLine{
		{ProductID: "tea", Quantity: 2},
		{ProductID: "cup", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, Totals{Subtotal: 45200, ShippingFee: 30, Total: 45230, Weight: 1100}, totals)
}
