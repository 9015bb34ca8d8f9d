package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClassifyStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		302: "3xx",
		404: "4xx",
		500: "5xx",
		100: "other",
	}
	for status, want := range cases {
		if got := classifyStatusClass(status); got != want {
			t.Fatalf("classifyStatusClass(%d)=%q want %q", status, got, want)
		}
	}
}

func TestNormalizeProfile(t *testing.T) {
	if got := normalizeProfile(""); got != "mixed" {
		t.Fatalf("normalizeProfile empty=%q want mixed", got)
	}
	if got := normalizeProfile("  AUTH  "); got != "auth" {
		t.Fatalf("normalizeProfile auth=%q want auth", got)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing base url", Config{Profile: "auth", Duration: time.Second, RPS: 1, Concurrency: 1}},
		{"zero duration", Config{BaseURL: "http://x", Profile: "auth", RPS: 1, Concurrency: 1}},
		{"zero rps", Config{BaseURL: "http://x", Profile: "auth", Duration: time.Second, Concurrency: 1}},
		{"zero concurrency", Config{BaseURL: "http://x", Profile: "auth", Duration: time.Second, RPS: 1}},
		{"unknown profile", Config{BaseURL: "http://x", Profile: "soak", Duration: time.Second, RPS: 1, Concurrency: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Run(context.Background(), tc.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

type fakeAuthAPI struct {
	mu       sync.Mutex
	counter  int
	refreshs int
}

func (f *fakeAuthAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/v1/auth/register":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":1}}`))
	case "/api/v1/auth/login", "/api/v1/auth/refresh":
		if r.URL.Path == "/api/v1/auth/refresh" {
			f.refreshs++
		}
		f.counter++
		_, _ = fmt.Fprintf(w, `{"success":true,"data":{"access_token":"a%d","refresh_token":"r%d"}}`, f.counter, f.counter)
	case "/api/v1/me", "/api/v1/auth/logout":
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRunRefreshProfileAgainstServer(t *testing.T) {
	api := &fakeAuthAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "refresh",
		Duration:    600 * time.Millisecond,
		RPS:         50,
		Concurrency: 2,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 {
		t.Fatal("expected requests to be sent")
	}
	if res.Failures != 0 {
		t.Fatalf("expected no failures, got %+v", res)
	}
	if res.Operations["register"] == 0 || res.Operations["refresh"] == 0 {
		t.Fatalf("expected register and refresh operations, got %+v", res.Operations)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.refreshs < res.Operations["refresh"] {
		t.Fatalf("server saw %d refreshes, loadgen recorded %d", api.refreshs, res.Operations["refresh"])
	}
}

func TestRunCountsServerErrorsAsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{BaseURL: srv.URL, Profile: "auth", Duration: 300 * time.Millisecond, RPS: 20, Concurrency: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 || res.Failures != res.TotalRequests || res.StatusClasses["5xx"] != res.TotalRequests {
		t.Fatalf("expected every request to fail with 5xx, got %+v", res)
	}
}
