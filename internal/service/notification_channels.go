package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WebhookChannel posts notifications as JSON. 4xx responses are not retried.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(map[string]any{
		"id":         n.ID,
		"kind":       n.Kind,
		"severity":   n.Severity,
		"subject":    n.Subject,
		"text":       notificationText(n),
		"recipients": n.Recipients,
		"metadata":   n.Metadata,
		"created_at": n.CreatedAt,
	})
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook unavailable: status %d", resp.StatusCode)
	}
}

// NATSChannel publishes the JSON-encoded notification on a subject.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
}

func NewNATSChannel(url, subject string) (*NATSChannel, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats channel requires a url")
	}
	if subject == "" {
		subject = "security.alerts"
	}
	conn, err := nats.Connect(url, nats.Name("security-monitoring-service"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSChannel{conn: conn, subject: subject}, nil
}

func (c *NATSChannel) Name() string { return "nats" }

func (c *NATSChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := c.conn.Publish(c.subject, payload); err != nil {
		return err
	}
	return c.conn.FlushWithContext(ctx)
}

func (c *NATSChannel) Close() error {
	c.conn.Close()
	return nil
}

// KafkaChannel writes notifications keyed by kind so one kind stays ordered on a partition.
type KafkaChannel struct {
	writer *kafka.Writer
}

func NewKafkaChannel(brokers []string, topic string) (*KafkaChannel, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka channel requires at least one broker")
	}
	if topic == "" {
		topic = "security.alerts"
	}
	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return backoff.Permanent(err)
	}
	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Kind),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
