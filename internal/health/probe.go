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

// Pinger is satisfied by the session store backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

type pingChecker struct {
	name string
	p    Pinger
}

func NewPingChecker(name string, p Pinger) Checker {
	return pingChecker{name: name, p: p}
}

func (c pingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{Name: c.name, Healthy: true}
	if err := c.p.Ping(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// ProbeRunner runs all checks concurrently, each bounded by checkTimeout and
// the whole run by totalTimeout.
type ProbeRunner struct {
	totalTimeout time.Duration
	checkTimeout time.Duration
	checkers     []Checker
}

func NewProbeRunner(totalTimeout, checkTimeout time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{totalTimeout: totalTimeout, checkTimeout: checkTimeout, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	results := make([]CheckResult, len(p.checkers))
	if len(p.checkers) == 0 {
		return true, results
	}
	ctx, cancel := context.WithTimeout(ctx, p.totalTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, c := range p.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, ccancel := context.WithTimeout(ctx, p.checkTimeout)
			defer ccancel()
			results[i] = c.Check(cctx)
		}()
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
