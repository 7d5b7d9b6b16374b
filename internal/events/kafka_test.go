package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/models"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherPublish(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	order := &models.Order{
		ID:            uuid.New(),
		Items:         []models.LineItem{{Quantity: 2, UnitPrice: 100}},
		ShippingFee:   30,
		PaymentMethod: models.PaymentMethodGateway,
		PaymentStatus: models.PaymentPaid,
		State:         models.StateReadyToShip,
	}
	at := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)

	require.NoError(t, publisher.Publish(t.Context(), NewOrderEvent(TypeOrderPaid, order, "gateway", at)))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, order.ID.String(), string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, TypeOrderPaid, string(msg.Headers[0].Value))

	var event OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, int64(230), event.Total)
	assert.Equal(t, "ready_to_ship", event.State)
	assert.Equal(t, "gateway", event.Actor)
	assert.True(t, event.OccurredAt.Equal(at))

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{err: errors.New("broker down")}
	publisher := &KafkaPublisher{writer: writer, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := publisher.Publish(t.Context(), OrderEvent{Type: TypeOrderCancelled, OrderID: "o-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order.cancelled")
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(KafkaConfig{Topic: "orders"}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
}
