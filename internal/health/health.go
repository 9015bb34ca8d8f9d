package health

import (
	"context"
	"sync"
	"time"
)

type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

type CheckFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (c CheckFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.Fn(ctx)
	res := CheckResult{Name: c.Name, Healthy: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ProbeRunner runs readiness checks concurrently with an overall deadline and
// a per-check deadline.
type ProbeRunner struct {
	timeout  time.Duration
	perCheck time.Duration
	checkers []Checker
}

func NewProbeRunner(timeout, perCheck time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if perCheck <= 0 || perCheck > timeout {
		perCheck = timeout
	}
	return &ProbeRunner{timeout: timeout, perCheck: perCheck, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	var wg sync.WaitGroup
	for i, c := range p.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			cctx, ccancel := context.WithTimeout(ctx, p.perCheck)
			defer ccancel()
			results[i] = c.Check(cctx)
		}(i, c)
	}
	wg.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	return ready, results
}
