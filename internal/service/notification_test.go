package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type flakyChannel struct {
	name     string
	failures int
	calls    int
	mu       sync.Mutex
	sent     []Notification
}

func (c *flakyChannel) Name() string { return c.name }

func (c *flakyChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return errors.New("temporarily unavailable")
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *flakyChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestRetryingNotifierRetryCounts(t *testing.T) {
	cases := []struct {
		name        string
		failures    int
		wantSuccess bool
		wantRetries int
		wantCalls   int
	}{
		{name: "first try", failures: 0, wantSuccess: true, wantRetries: 0, wantCalls: 1},
		{name: "two failures", failures: 2, wantSuccess: true, wantRetries: 2, wantCalls: 3},
		{name: "exhausted", failures: 10, wantSuccess: false, wantRetries: 4, wantCalls: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &flakyChannel{name: "flaky", failures: tc.failures}
			n := NewRetryingNotifier([]NotificationChannel{ch}, 3, time.Millisecond, discardLogger())
			res := n.Send(context.Background(), Notification{ID: "n1", Subject: "alert"})
			if res.Success != tc.wantSuccess || res.RetryCount != tc.wantRetries {
				t.Fatalf("unexpected result %+v", res)
			}
			if ch.calls != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, ch.calls)
			}
		})
	}
}

func TestRetryingNotifierOneChannelSuffices(t *testing.T) {
	broken := &flakyChannel{name: "broken", failures: 100}
	healthy := &flakyChannel{name: "healthy"}
	n := NewRetryingNotifier([]NotificationChannel{broken, healthy}, 1, time.Millisecond, discardLogger())
	res := n.Send(context.Background(), Notification{ID: "n2"})
	if !res.Success {
		t.Fatalf("expected success via healthy channel, got %+v", res)
	}
	if res.RetryCount != 2 {
		t.Fatalf("expected broken channel failures counted, got %d", res.RetryCount)
	}
}

func TestWebhookChannelDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewRetryingNotifier([]NotificationChannel{NewWebhookChannel(srv.URL, time.Second)}, 3, time.Millisecond, discardLogger())
	res := n.Send(context.Background(), Notification{ID: "n3", Subject: "alert"})
	if res.Success {
		t.Fatal("expected failure on 400")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func TestWebhookChannelRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewRetryingNotifier([]NotificationChannel{NewWebhookChannel(srv.URL, time.Second)}, 3, time.Millisecond, discardLogger())
	res := n.Send(context.Background(), Notification{ID: "n4"})
	if !res.Success || res.RetryCount != 1 {
		t.Fatalf("expected success after one retry, got %+v", res)
	}
}

func TestAlertDispatcherDeliversAndDrains(t *testing.T) {
	ch := &flakyChannel{name: "mem"}
	notifier := NewRetryingNotifier([]NotificationChannel{ch}, 0, time.Millisecond, discardLogger())
	d := NewAlertDispatcher(notifier, 8, 1000, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx, time.Second)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		if !d.Enqueue(context.Background(), Notification{ID: "q"}) {
			t.Fatal("expected enqueue to succeed")
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for ch.sentCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if ch.sentCount() != 3 {
		t.Fatalf("expected 3 deliveries, got %d", ch.sentCount())
	}
	if d.Enqueue(context.Background(), Notification{ID: "late"}) {
		t.Fatal("expected enqueue to fail after shutdown")
	}
}

func TestAlertDispatcherEnqueueNeverBlocks(t *testing.T) {
	d := NewAlertDispatcher(NewRetryingNotifier(nil, 0, time.Millisecond, discardLogger()), 1, 1, discardLogger())
	if !d.Enqueue(context.Background(), Notification{ID: "a"}) {
		t.Fatal("expected first enqueue to fit")
	}
	if d.Enqueue(context.Background(), Notification{ID: "b"}) {
		t.Fatal("expected full queue to reject")
	}
}
