package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config drives a security traffic drill against a running service.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         float64
	Concurrency int
	Seed        uint64
	Username    string
	Password    string
	// SourceIPs is the number of distinct X-Forwarded-For addresses used for failed logins.
	// The target only honors them with TRUST_FORWARDED_HEADERS enabled.
	SourceIPs int
	Client    *http.Client
}

type Result struct {
	Profile       string
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
	Endpoints     map[string]int
	Elapsed       time.Duration
}

// Summary renders the result as stable "key=value" lines.
func (r Result) Summary() []string {
	lines := []string{
		fmt.Sprintf("profile=%s total=%d failures=%d elapsed=%s", r.Profile, r.TotalRequests, r.Failures, r.Elapsed.Round(time.Millisecond)),
	}
	for _, k := range sortedKeys(r.StatusClasses) {
		lines = append(lines, fmt.Sprintf("status.%s=%d", k, r.StatusClasses[k]))
	}
	for _, k := range sortedKeys(r.Endpoints) {
		lines = append(lines, fmt.Sprintf("endpoint.%s=%d", k, r.Endpoints[k]))
	}
	return lines
}

type step func(ctx context.Context, d *drill) (string, int, error)

type drill struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	rng    *rand.Rand
	token  string
	result Result
}

// Run issues paced requests until cfg.Duration elapses or ctx is cancelled. Transport
// errors and 5xx responses count as failures; 4xx responses are expected security
// outcomes and are only tallied.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.Profile = normalizeProfile(cfg.Profile)
	steps, err := profileSteps(cfg.Profile)
	if err != nil {
		return Result{}, err
	}
	if cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.SourceIPs <= 0 {
		cfg.SourceIPs = 8
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	d := &drill{
		cfg:    cfg,
		client: client,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		result: Result{
			Profile:       cfg.Profile,
			StatusClasses: map[string]int{},
			Endpoints:     map[string]int{},
		},
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	started := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				s := d.pick(steps)
				endpoint, status, err := s(gctx, d)
				if gctx.Err() != nil {
					return nil
				}
				d.record(endpoint, status, err)
			}
		})
	}
	_ = g.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.result.Elapsed = time.Since(started)
	if d.result.TotalRequests == 0 {
		return d.result, fmt.Errorf("no requests completed against %s", cfg.BaseURL)
	}
	return d.result, nil
}

func (d *drill) pick(steps []step) step {
	d.mu.Lock()
	defer d.mu.Unlock()
	return steps[d.rng.IntN(len(steps))]
}

func (d *drill) intn(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.IntN(n)
}

func (d *drill) record(endpoint string, status int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result.TotalRequests++
	d.result.Endpoints[endpoint]++
	if err != nil {
		d.result.Failures++
		d.result.StatusClasses["error"]++
		return
	}
	class := classifyStatusClass(status)
	d.result.StatusClasses[class]++
	if class == "5xx" {
		d.result.Failures++
	}
}

func (d *drill) currentToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

func (d *drill) do(ctx context.Context, method, path string, body any, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func healthStep(ctx context.Context, d *drill) (string, int, error) {
	status, _, err := d.do(ctx, http.MethodGet, "/health/live", nil, nil)
	return "health", status, err
}

// failedLoginStep sends a wrong password from one of a small pool of source addresses,
// which drives the lockout and brute-force responses.
func failedLoginStep(ctx context.Context, d *drill) (string, int, error) {
	ip := fmt.Sprintf("198.51.100.%d", 1+d.intn(d.cfg.SourceIPs))
	body := map[string]string{"username": d.cfg.Username, "password": fmt.Sprintf("wrong-%06d", d.intn(1_000_000))}
	status, _, err := d.do(ctx, http.MethodPost, "/api/v1/auth/login", body, map[string]string{"X-Forwarded-For": ip})
	return "login_failed", status, err
}

func loginStep(ctx context.Context, d *drill) (string, int, error) {
	body := map[string]string{"username": d.cfg.Username, "password": d.cfg.Password}
	status, payload, err := d.do(ctx, http.MethodPost, "/api/v1/auth/login", body, nil)
	if err != nil || status != http.StatusOK {
		return "login", status, err
	}
	var env struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"access_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	if json.Unmarshal(payload, &env) == nil && env.Data.Tokens.AccessToken != "" {
		d.mu.Lock()
		d.token = env.Data.Tokens.AccessToken
		d.mu.Unlock()
	}
	return "login", status, nil
}

func listSessionsStep(ctx context.Context, d *drill) (string, int, error) {
	token := d.currentToken()
	if token == "" {
		return loginStep(ctx, d)
	}
	status, _, err := d.do(ctx, http.MethodGet, "/api/v1/me/sessions", nil, map[string]string{"Authorization": "Bearer " + token})
	if status == http.StatusUnauthorized {
		d.mu.Lock()
		d.token = ""
		d.mu.Unlock()
	}
	return "sessions", status, err
}

func profileSteps(profile string) ([]step, error) {
	switch profile {
	case "mixed":
		return []step{healthStep, loginStep, listSessionsStep, listSessionsStep, failedLoginStep}, nil
	case "auth":
		return []step{failedLoginStep, failedLoginStep, failedLoginStep, loginStep}, nil
	case "sessions":
		return []step{loginStep, listSessionsStep, listSessionsStep, listSessionsStep}, nil
	default:
		return nil, fmt.Errorf("unknown profile %q (want mixed, auth or sessions)", profile)
	}
}

func normalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return "mixed"
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
