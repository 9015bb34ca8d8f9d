package obscheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/device-auth-service/internal/tools/common"
	"github.com/sandeepkv93/device-auth-service/internal/tools/loadgen"
	"github.com/sandeepkv93/device-auth-service/internal/tools/ui"
)

type options struct {
	baseURL  string
	duration time.Duration
	rps      int
	ci       bool
}

// NewCommand returns the "obscheck" command, which drives traffic at a
// running server and verifies readiness and the Prometheus request series.
func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "obscheck",
		Short: "Generate traffic and verify readiness and request metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "obscheck", func(ctx context.Context) ([]string, error) {
				return Check(ctx, *opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().DurationVar(&opts.duration, "duration", 5*time.Second, "traffic duration")
	cmd.Flags().IntVar(&opts.rps, "rps", 20, "requests per second")
	cmd.Flags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func Check(ctx context.Context, opts options) ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(opts.baseURL, "/")

	if err := verifyReady(ctx, client, base); err != nil {
		return nil, err
	}
	details := []string{"readiness: ok"}

	res, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     base,
		Profile:     "refresh",
		Duration:    opts.duration,
		RPS:         opts.rps,
		Concurrency: 4,
		Seed:        time.Now().UnixNano(),
	})
	if err != nil {
		return details, err
	}
	details = append(details, fmt.Sprintf("traffic generated total=%d failures=%d", res.TotalRequests, res.Failures))
	if res.Failures > 0 {
		return details, fmt.Errorf("loadgen saw %d failed requests", res.Failures)
	}

	counts, err := scrapeRequestCounts(ctx, client, base)
	if err != nil {
		return details, err
	}
	for _, route := range []string{"/api/v1/auth/login", "/api/v1/auth/refresh"} {
		if counts[route] == 0 {
			return details, fmt.Errorf("no http_requests_total samples for %s", route)
		}
		details = append(details, fmt.Sprintf("metrics %s=%.0f", route, counts[route]))
	}
	return details, nil
}

func verifyReady(ctx context.Context, client *http.Client, base string) error {
	body, status, err := get(ctx, client, base+"/health/ready")
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	var env struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(body, &env)
	if status != http.StatusOK || !env.Success {
		return fmt.Errorf("service not ready: status=%d", status)
	}
	return nil
}

// scrapeRequestCounts sums http_requests_total per route label.
func scrapeRequestCounts(ctx context.Context, client *http.Client, base string) (map[string]float64, error) {
	body, status, err := get(ctx, client, base+"/metrics")
	if err != nil {
		return nil, fmt.Errorf("scrape metrics: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("scrape metrics: status=%d", status)
	}
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	counts := map[string]float64{}
	family, ok := families["http_requests_total"]
	if !ok {
		return counts, nil
	}
	for _, m := range family.GetMetric() {
		route, ok := labelValue(m.GetLabel(), "route")
		if !ok || m.GetCounter() == nil {
			continue
		}
		counts[route] += m.GetCounter().GetValue()
	}
	return counts, nil
}

func labelValue(labels []*dto.LabelPair, name string) (string, bool) {
	for _, lp := range labels {
		if lp.GetName() == name {
			return lp.GetValue(), true
		}
	}
	return "", false
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}
