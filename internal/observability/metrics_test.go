package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOrderTransition(t *testing.T) {
	counter := OrderTransitions.WithLabelValues("mark_paid", "applied")
	before := testutil.ToFloat64(counter)

	RecordOrderTransition(context.Background(), "mark_paid", "applied")
	RecordOrderTransition(context.Background(), "mark_paid", "applied")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("transition counter grew by %v, want 2", got)
	}
}

func TestRecordPaymentCallback(t *testing.T) {
	counter := PaymentCallbacks.WithLabelValues("ipn", "duplicate")
	before := testutil.ToFloat64(counter)

	RecordPaymentCallback(context.Background(), "ipn", "duplicate", "02")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("callback counter grew by %v, want 1", got)
	}
}

func TestRecordCarrierCall(t *testing.T) {
	before := testutil.CollectAndCount(CarrierRequestDuration)

	RecordCarrierCall(context.Background(), "shipment_detail_test", "error", 0.25)

	if got := testutil.CollectAndCount(CarrierRequestDuration); got != before+1 {
		t.Fatalf("carrier histogram series = %d, want %d", got, before+1)
	}
}

func TestMeterFromContextWithoutMeter(t *testing.T) {
	t.Parallel()

	if MeterFromContext(context.Background()) == nil {
		t.Fatal("expected a meter even when none is stored")
	}
	ctx := WithMeter(context.Background(), nil)
	if MeterFromContext(ctx) == nil {
		t.Fatal("expected stored meter")
	}
}
