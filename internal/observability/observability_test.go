package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded header ignored", headers: map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, remote: "10.0.0.2:1234", want: "10.0.0.2"},
		{name: "real ip header ignored", headers: map[string]string{"X-Real-Ip": "8.8.8.8"}, remote: "10.0.0.2:1234", want: "10.0.0.2"},
		{name: "remote addr", remote: "1.2.3.4:5555", want: "1.2.3.4"},
		{name: "remote without port", remote: "1.2.3.4", want: "1.2.3.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tc.want {
				t.Fatalf("ClientIP()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLogLevel(raw); got != want {
			t.Fatalf("ParseLogLevel(%q)=%v want %v", raw, got, want)
		}
	}
}

func TestNewLoggerWritesJSONWhenOTLPDisabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Defaults()
	logger, lp, err := NewLogger(context.Background(), cfg, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if lp != nil {
		t.Fatal("expected no logger provider when OTLP logs are disabled")
	}
	logger.Info("hello", "module", "test")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["msg"] != "hello" || line["module"] != "test" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestFanoutHandlerDeliversToAll(t *testing.T) {
	var a, b bytes.Buffer
	h := fanoutHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h).With("module", "fanout")
	logger.Info("info only")
	logger.Error("both")

	if bytes.Count(a.Bytes(), []byte("\n")) != 2 {
		t.Fatalf("expected two records in first handler, got %q", a.String())
	}
	if bytes.Count(b.Bytes(), []byte("\n")) != 1 {
		t.Fatalf("expected one record in second handler, got %q", b.String())
	}
	if !bytes.Contains(b.Bytes(), []byte(`"module":"fanout"`)) {
		t.Fatalf("expected attrs to propagate, got %q", b.String())
	}
}

func TestRecordFunctionsAreSafeWithoutInit(t *testing.T) {
	metricsMu.Lock()
	prev := appMetrics
	appMetrics = nil
	metricsMu.Unlock()
	t.Cleanup(func() {
		metricsMu.Lock()
		appMetrics = prev
		metricsMu.Unlock()
	})

	ctx := context.Background()
	RecordRepositoryOperation(ctx, "session", "create", "success")
	RecordAuthLogin(ctx, "success")
	RecordSessionOperation(ctx, "evict", 1)
	RecordAnomalyDetected(ctx, "suspicious_login", "medium")
	RecordSecurityResponse(ctx, "BLOCK_IP", "success")
	RecordSecurityEvent(ctx, "anomaly", "critical")
	RecordNotificationDelivery(ctx, "log", "success")
}

func TestAuditClassifiesEvents(t *testing.T) {
	cases := []struct {
		event    string
		category string
		level    string
	}{
		{event: "auth.login.failed", category: "auth", level: "WARN"},
		{event: "admin.denied", category: "admin", level: "WARN"},
		{event: "security.lockdown.activate", category: "security", level: "INFO"},
		{event: "heartbeat", category: "heartbeat", level: "INFO"},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
			req.Header.Set("X-Request-Id", "req-1")
			req.Header.Set("User-Agent", "drill/1.0")
			auditTo(context.Background(), logger, req, tc.event, "user_id", 7)

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode audit line: %v", err)
			}
			if line["category"] != tc.category || line["level"] != tc.level {
				t.Fatalf("category=%v level=%v, want %s %s", line["category"], line["level"], tc.category, tc.level)
			}
			if line["request_id"] != "req-1" || line["user_agent"] != "drill/1.0" || line["user_id"] != float64(7) {
				t.Fatalf("missing request attributes: %v", line)
			}
		})
	}
}

func TestRuntimeShutdownNilAndEmpty(t *testing.T) {
	var nilRuntime *Runtime
	if err := nilRuntime.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
	if err := (&Runtime{}).Shutdown(context.Background()); err != nil {
		t.Fatalf("empty runtime shutdown: %v", err)
	}
}

func TestInitRuntimeWithExportersDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.OTELMetricsEnabled = false
	cfg.OTELTracingEnabled = false
	rt, err := InitRuntime(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if rt.MeterProvider == nil || rt.TracerProvider == nil {
		t.Fatalf("expected local providers, got %+v", rt)
	}
	if got := len(rt.steps()); got != 2 {
		t.Fatalf("expected tracer and meter shutdown steps, got %d", got)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
