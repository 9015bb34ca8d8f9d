package integration

import (
	"encoding/json"
	"net/http"
	"slices"
	"testing"
	"time"
)

type sessionView struct {
	ID        uint       `json:"id"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

func listSessions(t *testing.T, client *http.Client, baseURL, access string) []sessionView {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodGet, baseURL+"/api/v1/me/sessions", nil, bearer(access))
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("list sessions failed: status=%d env=%+v", resp.StatusCode, env)
	}
	var data struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	return data.Sessions
}

func TestSessionManagementListAndLogoutAll(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	first := registerUser(t, client, baseURL, "session_mgmt", "Valid#Pass1234")
	second := loginUser(t, client, baseURL, "session_mgmt", "Valid#Pass1234")
	third := loginUser(t, client, baseURL, "session_mgmt@example.com", "Valid#Pass1234")

	sessions := listSessions(t, client, baseURL, third.AccessToken)
	if len(sessions) != 3 {
		t.Fatalf("expected 3 active sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.State != "active" || s.RevokedAt != nil {
			t.Fatalf("expected active session, got %+v", s)
		}
		if !s.ExpiresAt.After(s.CreatedAt) {
			t.Fatalf("expected expiry after creation, got %+v", s)
		}
	}

	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/logout-all", nil, bearer(second.AccessToken))
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("logout-all failed: status=%d env=%+v", resp.StatusCode, env)
	}
	var out struct {
		OK      bool  `json:"ok"`
		Revoked int64 `json:"revoked"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode logout-all: %v", err)
	}
	if !out.OK || out.Revoked != 3 {
		t.Fatalf("expected 3 revoked sessions, got %+v", out)
	}

	for _, tok := range []tokenResponse{first, second, third} {
		resp, env := refresh(t, client, baseURL, tok.RefreshToken)
		if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_REFRESH_TOKEN" {
			t.Fatalf("expected revoked refresh to fail, got status=%d env=%+v", resp.StatusCode, env)
		}
	}

	// Access tokens stay valid until they expire.
	if got := listSessions(t, client, baseURL, first.AccessToken); len(got) != 0 {
		t.Fatalf("expected no active sessions after logout-all, got %d", len(got))
	}
}

func TestSessionManagementLogoutIsIdempotent(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()
	audit := captureAuditEvents(t)

	tok := registerUser(t, client, baseURL, "logout_twice", "Valid#Pass1234")
	for i := 0; i < 2; i++ {
		resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/logout", map[string]string{"refresh_token": tok.RefreshToken}, nil)
		if resp.StatusCode != http.StatusOK || !env.Success {
			t.Fatalf("logout #%d failed: status=%d env=%+v", i+1, resp.StatusCode, env)
		}
	}
	resp, _ := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/logout", map[string]string{"refresh_token": "never-issued"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout with unknown token should succeed, got %d", resp.StatusCode)
	}

	if resp, _ := refresh(t, client, baseURL, tok.RefreshToken); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected refresh after logout to fail, got %d", resp.StatusCode)
	}
	names := audit.names()
	if !slices.Contains(names, "register") || !slices.Contains(names, "logout") {
		t.Fatalf("expected register and logout audit events, got %v", names)
	}
}

func TestSessionManagementRotationChain(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	tok := registerUser(t, client, baseURL, "rotator", "Valid#Pass1234")
	seen := map[string]bool{tok.RefreshToken: true}
	for i := 0; i < 5; i++ {
		resp, env := refresh(t, client, baseURL, tok.RefreshToken)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("refresh #%d failed: status=%d env=%+v", i+1, resp.StatusCode, env)
		}
		next := decodeTokens(t, env)
		if seen[next.RefreshToken] {
			t.Fatalf("refresh token reused at step %d", i+1)
		}
		seen[next.RefreshToken] = true
		if next.TokenType != "Bearer" || next.ExpiresIn != int64((15*time.Minute).Seconds()) {
			t.Fatalf("unexpected token metadata: %+v", next)
		}
		tok = next
	}

	if got := listSessions(t, client, baseURL, tok.AccessToken); len(got) != 1 {
		t.Fatalf("expected exactly one active session at the end of the chain, got %d", len(got))
	}
}

func TestSessionManagementReusePolicies(t *testing.T) {
	cases := []struct {
		policy          string
		headSurvives    bool
		wantAuditEvents []string
	}{
		{policy: "log", headSurvives: true, wantAuditEvents: []string{"reuse_detected"}},
		{policy: "revoke_chain", headSurvives: false, wantAuditEvents: []string{"chain_revoked"}},
	}
	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			baseURL, client, closeFn := newAuthTestServer(t, withReusePolicy(tc.policy))
			defer closeFn()
			audit := captureAuditEvents(t)

			initial := registerUser(t, client, baseURL, "reuse_"+tc.policy, "Valid#Pass1234")
			resp, env := refresh(t, client, baseURL, initial.RefreshToken)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("first refresh failed: %d", resp.StatusCode)
			}
			head := decodeTokens(t, env)

			resp, env = refresh(t, client, baseURL, initial.RefreshToken)
			if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_REFRESH_TOKEN" {
				t.Fatalf("expected replay to be rejected, got status=%d env=%+v", resp.StatusCode, env)
			}

			resp, _ = refresh(t, client, baseURL, head.RefreshToken)
			if survived := resp.StatusCode == http.StatusOK; survived != tc.headSurvives {
				t.Fatalf("head survived=%v want %v", survived, tc.headSurvives)
			}
			names := audit.names()
			for _, want := range tc.wantAuditEvents {
				if !slices.Contains(names, want) {
					t.Fatalf("expected audit event %q, got %v", want, names)
				}
			}
		})
	}
}
