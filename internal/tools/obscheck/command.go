package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haulstack/console-gateway/internal/tools/common"
	"github.com/haulstack/console-gateway/internal/tools/loadgen"
	"github.com/haulstack/console-gateway/internal/tools/ui"
)

type options struct {
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	window          time.Duration
	ci              bool
	baseURL         string
}

// gatewaySeries are the counters the gateway itself emits. Login attempts and
// guarded-page hits from the traffic run must show up in all of them except
// refresh attempts, which only move once an access token ages out.
var gatewaySeries = []struct {
	name     string
	required bool
}{
	{"session_transitions_total", true},
	{"guard_decisions_total", true},
	{"upstream_requests_total", true},
	{"session_refresh_attempts_total", false},
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify session metrics, traces and logs correlation"}
	cmd.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	cmd.PersistentFlags().StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	cmd.PersistentFlags().StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	cmd.PersistentFlags().StringVar(&opts.serviceName, "service-name", "console-gateway", "OTel service name")
	cmd.PersistentFlags().DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:4600", "gateway base URL for traffic")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive session traffic, then validate gateway counters and the exemplar->trace->log path",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				return checkPipeline(ctx, opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

// checkPipeline exercises the login and guarded-route endpoints, then walks the
// telemetry backends: gateway counters in Mimir, a span in Tempo and the
// correlated log line in Loki.
func checkPipeline(ctx context.Context, opts *options) ([]string, error) {
	lgRes, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     opts.baseURL,
		Profile:     "mixed",
		Duration:    6 * time.Second,
		RPS:         20,
		Concurrency: 6,
		Seed:        42,
	})
	if err != nil {
		return nil, err
	}
	details := []string{fmt.Sprintf("session traffic total=%d failures=%d", lgRes.TotalRequests, lgRes.Failures)}
	recentCutoff := time.Now().Add(-2 * time.Minute)
	time.Sleep(8 * time.Second)

	gc := newGrafanaClient(opts)

	for _, series := range gatewaySeries {
		count, err := gc.seriesTotal(ctx, series.name)
		if err != nil {
			return details, err
		}
		if count == 0 {
			if series.required {
				return details, fmt.Errorf("gateway counter %s has no samples in mimir", series.name)
			}
			details = append(details, "counter "+series.name+": no samples yet (ok, refresh-driven)")
			continue
		}
		details = append(details, fmt.Sprintf("counter %s: %g", series.name, count))
	}

	traceID, err := gc.latestExemplarTraceID(ctx, opts.window, recentCutoff)
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)

	if err := gc.waitForTempoTrace(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")

	if err := gc.findTraceLogs(ctx, opts.serviceName, traceID); err != nil {
		return details, err
	}
	details = append(details, "loki trace correlation: ok")
	return details, nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

type grafanaClient struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

func newGrafanaClient(opts *options) *grafanaClient {
	return &grafanaClient{
		baseURL:  opts.grafanaURL,
		user:     opts.grafanaUser,
		password: opts.grafanaPassword,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

func (gc *grafanaClient) get(ctx context.Context, path string, out any) error {
	base, err := url.Parse(gc.baseURL)
	if err != nil {
		return err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.ResolveReference(rel).String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(gc.user, gc.password)
	resp, err := gc.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("grafana request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// seriesTotal sums a counter across all label sets with an instant query.
func (gc *grafanaClient) seriesTotal(ctx context.Context, series string) (float64, error) {
	q := url.QueryEscape(fmt.Sprintf("sum(%s)", series))
	var payload struct {
		Data struct {
			Result []struct {
				Value []any `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := gc.get(ctx, "/api/datasources/proxy/uid/mimir/api/v1/query?query="+q, &payload); err != nil {
		return 0, err
	}
	if len(payload.Data.Result) == 0 || len(payload.Data.Result[0].Value) < 2 {
		return 0, nil
	}
	raw, _ := payload.Data.Result[0].Value[1].(string)
	var total float64
	if _, err := fmt.Sscanf(raw, "%g", &total); err != nil {
		return 0, fmt.Errorf("parse counter sample %q: %w", raw, err)
	}
	return total, nil
}

func (gc *grafanaClient) latestExemplarTraceID(ctx context.Context, window time.Duration, notBefore time.Time) (string, error) {
	start := time.Now().Add(-window).Unix()
	end := time.Now().Unix()
	path := fmt.Sprintf("/api/datasources/proxy/uid/mimir/api/v1/query_exemplars?query=http_server_request_duration_seconds_bucket&start=%d&end=%d", start, end)
	var payload struct {
		Data []struct {
			Exemplars []struct {
				Labels    map[string]string `json:"labels"`
				Timestamp float64           `json:"timestamp"`
			} `json:"exemplars"`
		} `json:"data"`
	}
	if err := gc.get(ctx, path, &payload); err != nil {
		return "", err
	}
	var bestTraceID string
	var bestTS float64
	for _, series := range payload.Data {
		for _, e := range series.Exemplars {
			if e.Timestamp <= 0 || int64(e.Timestamp) < notBefore.Unix() {
				continue
			}
			if tid := e.Labels["trace_id"]; len(tid) == 32 && e.Timestamp > bestTS {
				bestTS = e.Timestamp
				bestTraceID = tid
			}
		}
	}
	if bestTraceID == "" {
		return "", fmt.Errorf("no recent trace_id exemplar found")
	}
	return bestTraceID, nil
}

func (gc *grafanaClient) waitForTempoTrace(ctx context.Context, traceID string) error {
	path := "/api/datasources/proxy/uid/tempo/api/traces/" + traceID
	var lastErr error
	for i := 0; i < 5; i++ {
		var payload struct {
			Batches []json.RawMessage `json:"batches"`
		}
		if err := gc.get(ctx, path, &payload); err != nil {
			lastErr = err
		} else if len(payload.Batches) > 0 {
			return nil
		} else {
			lastErr = fmt.Errorf("tempo trace has no batches yet")
		}
		time.Sleep(2 * time.Second)
	}
	return lastErr
}

func (gc *grafanaClient) findTraceLogs(ctx context.Context, serviceName, traceID string) error {
	nowNS := time.Now().UnixNano()
	startNS := nowNS - int64(30*time.Minute)
	queries := []string{
		fmt.Sprintf("{service_name=%q} | json | trace_id=%q", serviceName, traceID),
		fmt.Sprintf("{service_name=~\".+\"} | json | trace_id=%q", traceID),
	}
	for _, raw := range queries {
		path := fmt.Sprintf("/api/datasources/proxy/uid/loki/loki/api/v1/query_range?query=%s&start=%d&end=%d&limit=1&direction=backward", url.QueryEscape(raw), startNS, nowNS)
		var payload struct {
			Data struct {
				Result []json.RawMessage `json:"result"`
			} `json:"data"`
		}
		if err := gc.get(ctx, path, &payload); err != nil {
			return err
		}
		if len(payload.Data.Result) > 0 {
			return nil
		}
	}
	return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
}
