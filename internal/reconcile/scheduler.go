// Package reconcile periodically pulls carrier statuses for in-flight
// shipments and applies them to orders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	DefaultInterval    = 10 * time.Minute
	DefaultConcurrency = 4
	DefaultBatchSize   = 500
)

var ErrAlreadyStarted = errors.New("reconcile scheduler already started")

// Orders is the slice of the order service a sweep needs.
type Orders interface {
	ListInFlight(ctx context.Context, limit int) ([]*models.Order, error)
	SyncFromCarrier(ctx context.Context, shipmentCode, carrierStatus string) (*models.Order, bool, error)
}

type ShipmentTracker interface {
	ShipmentDetail(ctx context.Context, orderCode string) (*carrier.ShipmentDetail, error)
}

type Config struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
}

// Summary counts what one sweep did with each order it visited.
type Summary struct {
	Checked   int
	Updated   int
	Unchanged int
	Failed    int
}

type Scheduler struct {
	orders      Orders
	tracker     ShipmentTracker
	interval    time.Duration
	concurrency int
	batchSize   int
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(orders Orders, tracker ShipmentTracker, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		orders:      orders,
		tracker:     tracker,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		logger:      logger.With("component", "reconcile"),
	}
}

// Start runs a sweep every interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.logger.Info("reconcile scheduler started", "interval", s.interval, "concurrency", s.concurrency)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reconcile sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the loop and waits for an in-progress sweep to return, or for
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info("reconcile scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for reconcile sweep: %w", ctx.Err())
	}
}

// RunOnce performs one synchronous sweep. A failure on one order is logged
// and counted; the rest of the sweep continues. The error is only set when
// the in-flight orders could not be listed.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	span := sentry.StartSpan(
		ctx,
		"reconcile.sweep",
		sentry.WithOpName("reconcile"),
		sentry.WithDescription("RunOnce"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	start := time.Now()
	defer func() {
		observability.ReconcileSweepDuration.Observe(time.Since(start).Seconds())
	}()

	orders, err := s.orders.ListInFlight(ctx, s.batchSize)
	if err != nil {
		observability.ReconcileSweeps.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("list in-flight orders: %w", err)
	}

	var updated, unchanged, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, order := range orders {
		g.Go(func() error {
			changed, err := s.reconcileOrder(gctx, order)
			switch {
			case err != nil:
				failed.Add(1)
				observability.ReconcileOrders.WithLabelValues("failed").Inc()
				s.logger.Warn("reconcile order failed",
					"error", err,
					"order_id", order.ID,
					"shipment_code", order.ShipmentCode,
				)
			case changed:
				updated.Add(1)
				observability.ReconcileOrders.WithLabelValues("updated").Inc()
			default:
				unchanged.Add(1)
				observability.ReconcileOrders.WithLabelValues("unchanged").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Checked:   len(orders),
		Updated:   int(updated.Load()),
		Unchanged: int(unchanged.Load()),
		Failed:    int(failed.Load()),
	}
	outcome := "ok"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	observability.ReconcileSweeps.WithLabelValues(outcome).Inc()

	s.logger.Info("reconcile sweep finished",
		"checked", summary.Checked,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (s *Scheduler) reconcileOrder(ctx context.Context, order *models.Order) (bool, error) {
	detail, err := s.tracker.ShipmentDetail(ctx, order.ShipmentCode)
	if err != nil {
		return false, fmt.Errorf("shipment detail: %w", err)
	}
	if detail.Status == "" {
		return false, nil
	}
	_, changed, err := s.orders.SyncFromCarrier(ctx, order.ShipmentCode, detail.Status)
	return changed, err
}
