package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config drives synthetic traffic against a running gateway instance.
type Config struct {
	BaseURL     string
	Profile     string // auth | session | mixed
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusCounts  map[string]int
}

type target struct {
	method string
	path   string
	body   string
}

var authTargets = []target{
	{http.MethodPost, "/session/login", `{"email":"load@example.com","password":"wrong-password"}`},
	{http.MethodPost, "/session/password/forgot", `{"email":"load@example.com"}`},
}

var sessionTargets = []target{
	{http.MethodGet, "/session", ""},
	{http.MethodPost, "/session/activity", ""},
	{http.MethodGet, "/app", ""},
	{http.MethodGet, "/health/ready", ""},
}

// Run fires requests at cfg.BaseURL until the duration elapses and reports
// aggregate status-class counts. Requests are spread across workers at an
// approximate global RPS.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("loadgen: base URL is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	profile := normalizeProfile(cfg.Profile)
	targets := targetsForProfile(profile)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Duration(int64(time.Second) * int64(cfg.Concurrency) / int64(cfg.RPS))
	if interval <= 0 {
		interval = time.Millisecond
	}

	var (
		mu     sync.Mutex
		result = &Result{StatusCounts: map[string]int{}}
		wg     sync.WaitGroup
	)
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		rng := rand.New(rand.NewSource(cfg.Seed + int64(w)))
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				tgt := targets[rng.Intn(len(targets))]
				status, err := fire(ctx, client, cfg.BaseURL, tgt)
				mu.Lock()
				result.TotalRequests++
				if err != nil {
					result.Failures++
					result.StatusCounts["error"]++
				} else {
					result.StatusCounts[classifyStatusClass(status)]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return result, nil
}

func fire(ctx context.Context, client *http.Client, baseURL string, tgt target) (int, error) {
	var body *bytes.Reader
	if tgt.body != "" {
		body = bytes.NewReader([]byte(tgt.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, tgt.method, strings.TrimRight(baseURL, "/")+tgt.path, body)
	if err != nil {
		return 0, err
	}
	if tgt.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func targetsForProfile(profile string) []target {
	switch profile {
	case "auth":
		return authTargets
	case "session":
		return sessionTargets
	default:
		return append(append([]target{}, authTargets...), sessionTargets...)
	}
}

func normalizeProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "mixed"
	}
	return v
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
