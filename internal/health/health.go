// Package health runs readiness probes against the gateway's local
// dependencies. Liveness needs no probes; readiness asks each checker
// whether the backend behind it still answers.
package health

import (
	"context"
	"sync"
	"time"
)

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheck wraps a plain function as a named Checker.
func NewCheck(name string, fn func(ctx context.Context) error) Checker {
	return checkFunc{name: name, fn: fn}
}

// Result is one checker's verdict, serialized into the ready payload.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner runs the registered checkers with a per-check timeout and
// caches the outcome for cacheTTL so probe storms don't hammer backends.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu       sync.Mutex
	cachedAt time.Time
	cachedOK bool
	cached   []Result
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.cacheTTL > 0 && time.Since(p.cachedAt) < p.cacheTTL {
		return p.cachedOK, append([]Result(nil), p.cached...)
	}

	ok := true
	results := make([]Result, 0, len(p.checkers))
	for _, checker := range p.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := checker.Check(checkCtx)
		cancel()
		res := Result{Name: checker.Name(), Healthy: err == nil}
		if err != nil {
			ok = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	p.cachedAt = time.Now()
	p.cachedOK = ok
	p.cached = results
	return ok, append([]Result(nil), results...)
}
