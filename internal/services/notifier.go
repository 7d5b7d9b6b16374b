package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

// Notification describes a committed order transition. Kind is one of the
// events.TypeOrder* names.
type Notification struct {
	Kind  string
	Order *models.Order
	Actor string
	At    time.Time
}

// Notifier receives transitions after they are stored. Delivery is best
// effort: implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

// MultiNotifier fans a notification out to every sink in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

type EmailNotifier struct {
	provider email.Provider
	renderer *email.Renderer
	shopName string
	shopURL  string
	logger   *slog.Logger
}

func NewEmailNotifier(provider email.Provider, renderer *email.Renderer, shopName, shopURL string, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		provider: provider,
		renderer: renderer,
		shopName: shopName,
		shopURL:  shopURL,
		logger:   logger.With("component", "email_notifier"),
	}
}

// emailTemplateFor picks the customer email for a transition, if any.
func emailTemplateFor(n Notification) string {
	switch n.Kind {
	case events.TypeOrderCreated:
		if n.Order.PaymentMethod == models.PaymentMethodCOD {
			return email.TemplateOrderCreated
		}
	case events.TypeOrderPaid:
		return email.TemplateOrderPaid
	case events.TypeOrderCancelled:
		return email.TemplateOrderCancelled
	case events.TypeOrderCarrierSynced:
		if n.Order.State == models.StateDelivered {
			return email.TemplateOrderDelivered
		}
	}
	return ""
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) {
	if n.Order == nil || n.Order.Recipient.Email == "" {
		return
	}
	templateName := emailTemplateFor(n)
	if templateName == "" {
		return
	}

	info := email.NewOrderInfo(n.Order, e.shopName, e.shopURL)
	if err := email.Send(ctx, e.provider, e.renderer, templateName, info); err != nil {
		logging.FromContext(ctx, e.logger).Warn("failed to send order email",
			"error", err,
			"template", templateName,
			"order_id", n.Order.ID,
		)
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.OrderEvent) error
}

type EventNotifier struct {
	publisher EventPublisher
	logger    *slog.Logger
}

func NewEventNotifier(publisher EventPublisher, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{
		publisher: publisher,
		logger:    logger.With("component", "event_notifier"),
	}
}

func (e *EventNotifier) Notify(ctx context.Context, n Notification) {
	if n.Order == nil {
		return
	}
	event := events.NewOrderEvent(n.Kind, n.Order, n.Actor, n.At)
	if err := e.publisher.Publish(ctx, event); err != nil {
		logging.FromContext(ctx, e.logger).Warn("failed to publish order event",
			"error", err,
			"type", n.Kind,
			"order_id", n.Order.ID,
		)
	}
}
