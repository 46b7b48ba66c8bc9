package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/observability"

	"golang.org/x/time/rate"
)

const (
	DefaultAlertQueueSize = 256
	DefaultAlertRate      = 5.0
)

// AlertPublisher accepts notifications without waiting for delivery.
type AlertPublisher interface {
	Enqueue(ctx context.Context, n Notification) bool
}

// AlertDispatcher is the background worker that drains queued notifications into a Notifier.
type AlertDispatcher struct {
	queue    chan Notification
	notifier Notifier
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAlertDispatcher(notifier Notifier, queueSize int, ratePerSec float64, logger *slog.Logger) *AlertDispatcher {
	if queueSize <= 0 {
		queueSize = DefaultAlertQueueSize
	}
	if ratePerSec <= 0 {
		ratePerSec = DefaultAlertRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &AlertDispatcher{
		queue:    make(chan Notification, queueSize),
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:   logger,
	}
}

// Enqueue never blocks. It returns false when the queue is full or the dispatcher stopped.
func (d *AlertDispatcher) Enqueue(ctx context.Context, n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- n:
		observability.RecordNotificationDelivery(ctx, "queue", "enqueued")
		return true
	default:
		observability.RecordNotificationDelivery(ctx, "queue", "dropped")
		d.logger.WarnContext(ctx, "security alert queue full",
			"module", "alert_dispatcher",
			"operation", "enqueue",
			"outcome", "dropped",
			"notification_id", n.ID,
		)
		return false
	}
}

// Run delivers queued notifications until ctx is done, then drains what is left
// within drainTimeout.
func (d *AlertDispatcher) Run(ctx context.Context, drainTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			d.close()
			d.drain(drainTimeout)
			return nil
		case n := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				d.close()
				d.deliver(context.Background(), n)
				d.drain(drainTimeout)
				return nil
			}
			d.deliver(ctx, n)
		}
	}
}

func (d *AlertDispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *AlertDispatcher) drain(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
	}
}

func (d *AlertDispatcher) deliver(ctx context.Context, n Notification) {
	res := d.notifier.Send(ctx, n)
	d.logger.InfoContext(ctx, "security alert dispatched",
		"module", "alert_dispatcher",
		"operation", "deliver",
		"outcome", outcomeLabel(res.Success),
		"notification_id", n.ID,
		"retry_count", res.RetryCount,
	)
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
