package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/security-monitoring-service/internal/config"
	"github.com/sandeepkv93/security-monitoring-service/internal/di"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServerOptions struct {
	redis       bool
	cfgOverride func(*config.Config)
}

type testServer struct {
	baseURL string
	client  *http.Client
	stack   *di.Stack
}

// newSecurityTestServer builds the production dependency graph on an in-memory sqlite
// database and, optionally, miniredis.
func newSecurityTestServer(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.AppEnv = "test"
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseURL = "file:" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	cfg.JWTAccessSecret = strings.Repeat("a", 32)
	cfg.JWTRefreshSecret = strings.Repeat("r", 32)
	cfg.BcryptCost = 4
	cfg.LockoutMaxFailures = 3
	cfg.BruteForceThreshold = 5
	cfg.LoginRateLimitPerMinute = 1000
	cfg.OTELMetricsEnabled = false
	cfg.OTELTracingEnabled = false
	cfg.OTELLogsEnabled = false
	cfg.TrustForwardedHeaders = true
	if opts.redis {
		mr := miniredis.RunT(t)
		cfg.RedisAddr = mr.Addr()
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx := context.Background()
	stack, cleanup, err := di.InitializeStack(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("initialize stack: %v", err)
	}
	t.Cleanup(cleanup)
	if err := repository.Migrate(stack.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	application, err := di.InitializeApp(cfg, logger, nil, stack)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(application.Server.Handler)
	t.Cleanup(srv.Close)
	return &testServer{baseURL: srv.URL, client: srv.Client(), stack: stack}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	resp, raw := s.raw(t, method, path, body, headers)
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v body=%s", err, raw)
		}
	}
	return resp, env
}

func (s *testServer) raw(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func (s *testServer) register(t *testing.T, username, password string) uint {
	t.Helper()
	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d error=%+v", username, resp.StatusCode, env.Error)
	}
	var user struct {
		ID uint `json:"id"`
	}
	decodeData(t, env, &user)
	return user.ID
}

func (s *testServer) createAdmin(t *testing.T, username, password string) {
	t.Helper()
	if _, err := s.stack.Auth.RegisterUser(context.Background(), username, username+"@example.com", password, "admin"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
}

// login returns the bearer headers for a successful login from ip. An empty ip uses the
// connection address.
func (s *testServer) login(t *testing.T, username, password, ip string) map[string]string {
	t.Helper()
	resp, env := s.loginAttempt(t, username, password, ip)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status=%d error=%+v", username, resp.StatusCode, env.Error)
	}
	var res struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	decodeData(t, env, &res)
	if res.Tokens.AccessToken == "" {
		t.Fatal("expected access token in login response")
	}
	return map[string]string{"Authorization": "Bearer " + res.Tokens.AccessToken}
}

func (s *testServer) loginAttempt(t *testing.T, username, password, ip string) (*http.Response, envelope) {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username, "password": password}, forwardedFor(ip))
}

func forwardedFor(ip string) map[string]string {
	if ip == "" {
		return nil
	}
	return map[string]string{"X-Forwarded-For": ip}
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v data=%s", err, env.Data)
	}
}

func expectError(t *testing.T, resp *http.Response, env envelope, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d error=%+v", status, resp.StatusCode, env.Error)
	}
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %+v", code, env.Error)
	}
}
