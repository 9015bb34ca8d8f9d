package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
	Operations    map[string]int
}

// Run drives the auth API with the selected profile until cfg.Duration
// elapses or ctx is cancelled. Profiles:
//
//	auth     register once per worker, then repeated logins
//	refresh  login once per worker, then walk the rotation chain
//	mixed    weighted mix of login, refresh, me and logout
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.Profile = normalizeProfile(cfg.Profile)
	if err := validate(cfg); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	tickets := make(chan struct{})
	go func() {
		defer close(tickets)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case tickets <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	rec := &recorder{status: map[string]int{}, ops: map[string]int{}}
	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(cfg.BaseURL, "/")

	var g errgroup.Group
	for i := 0; i < cfg.Concurrency; i++ {
		w := &worker{
			id:      i,
			profile: cfg.Profile,
			base:    base,
			client:  client,
			rng:     rand.New(rand.NewSource(cfg.Seed + int64(i))),
			rec:     rec,
			runID:   cfg.Seed,
		}
		g.Go(func() error {
			for range tickets {
				w.step(ctx)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec.result(), nil
}

func validate(cfg Config) error {
	var errs []error
	if cfg.BaseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if cfg.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if cfg.RPS <= 0 {
		errs = append(errs, errors.New("rps must be positive"))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	switch cfg.Profile {
	case "auth", "refresh", "mixed":
	default:
		errs = append(errs, fmt.Errorf("unknown profile %q", cfg.Profile))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid loadgen config: %w", errors.Join(errs...))
	}
	return nil
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
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

type recorder struct {
	mu       sync.Mutex
	total    int
	failures int
	status   map[string]int
	ops      map[string]int
}

func (r *recorder) record(op string, status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.ops[op]++
	if err != nil {
		r.failures++
		r.status["transport_error"]++
		return
	}
	class := classifyStatusClass(status)
	r.status[class]++
	if class != "2xx" {
		r.failures++
	}
}

func (r *recorder) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		TotalRequests: r.total,
		Failures:      r.failures,
		StatusClasses: make(map[string]int, len(r.status)),
		Operations:    make(map[string]int, len(r.ops)),
	}
	for k, v := range r.status {
		res.StatusClasses[k] = v
	}
	for k, v := range r.ops {
		res.Operations[k] = v
	}
	return res
}

type worker struct {
	id      int
	profile string
	base    string
	client  *http.Client
	rng     *rand.Rand
	rec     *recorder
	runID   int64

	registered bool
	access     string
	refresh    string
}

// record drops requests cut off by the end of the run.
func (w *worker) record(ctx context.Context, op string, status int, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}
	w.rec.record(op, status, err)
}

func (w *worker) username() string {
	return fmt.Sprintf("lg_%d_%d", w.runID, w.id)
}

func (w *worker) password() string { return "loadgen-password-1" }

func (w *worker) step(ctx context.Context) {
	if !w.registered {
		w.register(ctx)
		return
	}
	switch w.profile {
	case "auth":
		w.login(ctx)
	case "refresh":
		if w.refresh == "" {
			w.login(ctx)
			return
		}
		w.rotate(ctx)
	default:
		if w.refresh == "" {
			w.login(ctx)
			return
		}
		switch n := w.rng.Intn(10); {
		case n < 5:
			w.rotate(ctx)
		case n < 7:
			w.login(ctx)
		case n < 9:
			w.me(ctx)
		default:
			w.logout(ctx)
		}
	}
}

func (w *worker) register(ctx context.Context) {
	status, _, err := w.post(ctx, "/api/v1/auth/register", map[string]string{
		"username": w.username(),
		"email":    w.username() + "@loadgen.local",
		"password": w.password(),
	})
	// A conflict means an earlier run with the same seed already created the user.
	if err == nil && status == http.StatusConflict {
		status = http.StatusOK
	}
	w.record(ctx, "register", status, err)
	if err == nil && status < 300 {
		w.registered = true
	}
}

func (w *worker) login(ctx context.Context) {
	status, body, err := w.post(ctx, "/api/v1/auth/login", map[string]string{
		"login":    w.username(),
		"password": w.password(),
	})
	w.record(ctx, "login", status, err)
	w.storeTokens(status, body, err)
}

func (w *worker) rotate(ctx context.Context) {
	status, body, err := w.post(ctx, "/api/v1/auth/refresh", map[string]string{"refresh_token": w.refresh})
	w.record(ctx, "refresh", status, err)
	if err == nil && status != http.StatusOK {
		w.refresh = ""
		w.access = ""
		return
	}
	w.storeTokens(status, body, err)
}

func (w *worker) me(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+"/api/v1/me", nil)
	if err != nil {
		w.record(ctx, "me", 0, err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+w.access)
	status, _, err := w.do(req)
	w.record(ctx, "me", status, err)
}

func (w *worker) logout(ctx context.Context) {
	status, _, err := w.post(ctx, "/api/v1/auth/logout", map[string]string{"refresh_token": w.refresh})
	w.record(ctx, "logout", status, err)
	w.refresh = ""
	w.access = ""
}

func (w *worker) storeTokens(status int, body []byte, err error) {
	if err != nil || status != http.StatusOK {
		return
	}
	var env struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &env) == nil && env.Data.RefreshToken != "" {
		w.access = env.Data.AccessToken
		w.refresh = env.Data.RefreshToken
	}
}

func (w *worker) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.base+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return w.do(req)
}

func (w *worker) do(req *http.Request) (int, []byte, error) {
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
