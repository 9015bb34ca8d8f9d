package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandeepkv93/device-auth-service/internal/config"
	"github.com/sandeepkv93/device-auth-service/internal/database"
	"github.com/sandeepkv93/device-auth-service/internal/health"
	"github.com/sandeepkv93/device-auth-service/internal/http/handler"
	"github.com/sandeepkv93/device-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/device-auth-service/internal/http/router"
	"github.com/sandeepkv93/device-auth-service/internal/repository"
	"github.com/sandeepkv93/device-auth-service/internal/security"
	"github.com/sandeepkv93/device-auth-service/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type serverOptions struct {
	reusePolicy string
	negCache    service.NegativeLookupCacheStore
	readiness   []health.Checker
}

type serverOption func(*serverOptions)

func withReusePolicy(policy string) serverOption {
	return func(o *serverOptions) { o.reusePolicy = policy }
}

func withNegativeCache(store service.NegativeLookupCacheStore) serverOption {
	return func(o *serverOptions) { o.negCache = store }
}

func withReadiness(checkers ...health.Checker) serverOption {
	return func(o *serverOptions) { o.readiness = checkers }
}

// newAuthTestServer wires the real repositories, services and router over a
// file-backed sqlite database.
func newAuthTestServer(t *testing.T, opts ...serverOption) (string, *http.Client, func()) {
	t.Helper()
	o := serverOptions{reusePolicy: config.ReusePolicyLog}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    filepath.Join(t.TempDir(), "integration.db"),
	}
	db, err := database.Open(cfg, nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtMgr := security.NewJWTManager("authd-it", "authd-it-clients", "integration-secret-0123456789abcdef", 15*time.Minute, nil)
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	tokens := service.NewTokenService(
		jwtMgr,
		security.NewRefreshTokenGenerator(nil, 32),
		sessions,
		users,
		service.NewReuseHandler(o.reusePolicy, sessions, logger),
		o.negCache,
		service.TokenServiceConfig{Pepper: "it-pepper", RefreshTTL: 24 * time.Hour, NegativeCacheTTL: time.Minute},
		nil,
		logger,
	)
	auth := service.NewAuthService(users, security.NewPasswordHasher(4), jwtMgr, tokens, logger)

	readiness := o.readiness
	if readiness == nil {
		readiness = []health.Checker{health.CheckFunc{Name: "db", Fn: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}}}
	}
	reg := prometheus.NewRegistry()
	h := router.NewRouter(router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(auth, logger),
		UserHandler:     handler.NewUserHandler(auth, service.NewSessionService(sessions, nil)),
		Authenticator:   auth,
		Readiness:       health.NewProbeRunner(2*time.Second, time.Second, readiness...),
		Logger:          logger,
		MetricsGatherer: reg,
		HTTPMetrics:     middleware.NewHTTPMetrics(reg, "authd-it"),
	})

	srv := httptest.NewServer(h)
	client := &http.Client{Timeout: 10 * time.Second}
	return srv.URL, client, func() {
		srv.Close()
		_ = database.Close(db)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope %q: %v", raw, err)
		}
	}
	return resp, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeTokens(t *testing.T, env envelope) tokenResponse {
	t.Helper()
	var tok tokenResponse
	if err := json.Unmarshal(env.Data, &tok); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		t.Fatalf("missing tokens in %s", env.Data)
	}
	return tok
}

func registerUser(t *testing.T, client *http.Client, baseURL, username, password string) tokenResponse {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register %s failed: status=%d env=%+v", username, resp.StatusCode, env)
	}
	return decodeTokens(t, env)
}

func loginUser(t *testing.T, client *http.Client, baseURL, login, password string) tokenResponse {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"login":    login,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s failed: status=%d env=%+v", login, resp.StatusCode, env)
	}
	return decodeTokens(t, env)
}

func refresh(t *testing.T, client *http.Client, baseURL, token string) (*http.Response, envelope) {
	t.Helper()
	return doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/refresh", map[string]string{"refresh_token": token}, nil)
}

type auditRecorder struct {
	mu     sync.Mutex
	events []map[string]any
}

func (a *auditRecorder) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		var rec map[string]any
		if json.Unmarshal(line, &rec) == nil && rec["msg"] == "audit" {
			a.events = append(a.events, rec)
		}
	}
	return len(p), nil
}

func (a *auditRecorder) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		if name, ok := e["event"].(string); ok {
			out = append(out, name)
		}
	}
	return out
}

// captureAuditEvents swaps the default logger for the duration of the test.
func captureAuditEvents(t *testing.T) *auditRecorder {
	t.Helper()
	rec := &auditRecorder{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(rec, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return rec
}
