package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
)

const (
	DefaultNotifyMaxRetries = 3
	DefaultNotifyRetryBase  = time.Second
)

type Notification struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
	Severity   domain.Severity `json:"severity"`
	Recipients []string        `json:"recipients,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DeliveryResult reports the outcome of a send. RetryCount is the number of failed attempts.
type DeliveryResult struct {
	Success    bool `json:"success"`
	RetryCount int  `json:"retry_count"`
}

type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Notifier interface {
	Send(ctx context.Context, n Notification) DeliveryResult
}

// RetryingNotifier delivers to every channel with bounded exponential backoff.
// A send succeeds when at least one channel accepted the notification.
type RetryingNotifier struct {
	channels   []NotificationChannel
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

func NewRetryingNotifier(channels []NotificationChannel, maxRetries int, retryBase time.Duration, logger *slog.Logger) *RetryingNotifier {
	if maxRetries < 0 {
		maxRetries = DefaultNotifyMaxRetries
	}
	if retryBase <= 0 {
		retryBase = DefaultNotifyRetryBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingNotifier{channels: channels, maxRetries: maxRetries, retryBase: retryBase, logger: logger}
}

func (n *RetryingNotifier) Send(ctx context.Context, note Notification) DeliveryResult {
	if len(n.channels) == 0 {
		return DeliveryResult{Success: true}
	}
	result := DeliveryResult{}
	for _, ch := range n.channels {
		failures, err := n.sendOne(ctx, ch, note)
		result.RetryCount += failures
		if err != nil {
			observability.RecordNotificationDelivery(ctx, ch.Name(), "error")
			n.logger.WarnContext(ctx, "security notification delivery failed",
				"module", "notifier",
				"operation", "send",
				"outcome", "error",
				"channel", ch.Name(),
				"notification_id", note.ID,
				"error", err,
			)
			continue
		}
		result.Success = true
		observability.RecordNotificationDelivery(ctx, ch.Name(), "success")
	}
	return result
}

func (n *RetryingNotifier) sendOne(ctx context.Context, ch NotificationChannel, note Notification) (int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.retryBase
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxInterval = 30 * n.retryBase

	failures := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := ch.Send(ctx, note); err != nil {
			failures++
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(n.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			n.logger.DebugContext(ctx, "retrying security notification",
				"module", "notifier",
				"channel", ch.Name(),
				"attempt", failures,
				"next_retry", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return failures, &NotificationError{Channel: ch.Name(), Attempts: failures, Err: err}
	}
	return failures, nil
}

// LogChannel writes notifications to the structured log. It never fails.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, n Notification) error {
	c.logger.WarnContext(ctx, "security alert",
		"module", "notifier",
		"notification_id", n.ID,
		"kind", n.Kind,
		"severity", string(n.Severity),
		"subject", n.Subject,
		"recipients", len(n.Recipients),
	)
	return nil
}

func notificationText(n Notification) string {
	return fmt.Sprintf("[%s] %s\n\n%s", n.Severity, n.Subject, n.Body)
}
