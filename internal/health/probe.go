package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Result struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// ProbeRunner runs readiness probes concurrently and caches the outcome for cacheTTL.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	probes   []Probe

	mu       sync.Mutex
	cachedAt time.Time
	cached   []Result
	cachedOK bool
	now      func() time.Time
}

func NewProbeRunner(timeout, cacheTTL time.Duration, probes ...Probe) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, probes: probes, now: time.Now}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	p.mu.Lock()
	if p.cacheTTL > 0 && !p.cachedAt.IsZero() && p.now().Sub(p.cachedAt) < p.cacheTTL {
		ok, res := p.cachedOK, append([]Result(nil), p.cached...)
		p.mu.Unlock()
		return ok, res
	}
	p.mu.Unlock()

	results := make([]Result, len(p.probes))
	var wg sync.WaitGroup
	for i, probe := range p.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			start := p.now()
			err := probe.Check(pctx)
			r := Result{Name: probe.Name, Healthy: err == nil, LatencyMS: p.now().Sub(start).Milliseconds()}
			if err != nil {
				r.Error = err.Error()
			}
			results[i] = r
		}(i, probe)
	}
	wg.Wait()
	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	p.mu.Lock()
	p.cachedAt, p.cached, p.cachedOK = p.now(), results, ready
	p.mu.Unlock()
	return ready, append([]Result(nil), results...)
}
