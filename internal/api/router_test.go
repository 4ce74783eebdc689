package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/api/auth"
	"github.com/99minutos/vault-agents/internal/core/service"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/memory"
	"github.com/99minutos/vault-agents/internal/infrastructure/vault"
)

func newTestRouter() http.Handler {
	gw := service.NewGateway(service.Deps{
		Accounts:   memory.NewAccountRepository(),
		Agents:     memory.NewAgentRepository(),
		Tokens:     memory.NewTokenStore(),
		Locker:     memory.NewLocker(),
		Vaults:     vault.NewMemory(),
		BcryptCost: 4,
		Logger:     zerolog.Nop(),
	})
	return NewRouter(RouterConfig{
		Gateway:  gw,
		Sessions: auth.NewRegistry(time.Hour, zerolog.Nop()),
		Tokens:   auth.DefaultTokenConfig("secret", time.Hour),
		Logger:   zerolog.Nop(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_EndToEnd(t *testing.T) {
	r := newTestRouter()
	creds := `{"username":"alice","passphrase":"correct horse"}`

	rec := do(t, r, http.MethodPost, "/auth/signup", `{"username":"alice","passphrase":"correct horse","agent_id":"laptop"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var laptop struct{ Token string }
	_ = json.Unmarshal(rec.Body.Bytes(), &laptop)

	rec = do(t, r, http.MethodPost, "/auth/signup", `{"username":"alice","passphrase":"other","agent_id":"tablet"}`, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/auth/signin", `{"username":"alice","passphrase":"correct horse","agent_id":"phone"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d", rec.Code)
	}
	var phone struct{ Token, Scope string }
	_ = json.Unmarshal(rec.Body.Bytes(), &phone)
	if phone.Scope != auth.ScopeAgent {
		t.Fatalf("expected agent scope, got %s", phone.Scope)
	}

	// An agent token does not open session routes.
	if rec := do(t, r, http.MethodGet, "/session/agents", "", phone.Token); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent scope, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/agent/authenticate", `{"token":"AAAA-AAAA-AAAA-AAAA"}`, phone.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: expected 401, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/session/tokens", creds, laptop.Token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue token: expected 201, got %d", rec.Code)
	}
	var tok struct{ Token string }
	_ = json.Unmarshal(rec.Body.Bytes(), &tok)

	rec = do(t, r, http.MethodPost, "/agent/authenticate", `{"token":"`+tok.Token+`"}`, phone.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/session/agents/laptop/revoke", creds, laptop.Token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("self revoke: expected 422, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/session/agents/phone/revoke", creds, laptop.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/auth/signin", `{"username":"alice","passphrase":"correct horse","agent_id":"phone"}`, "")
	var again struct{ Scope, State string }
	_ = json.Unmarshal(rec.Body.Bytes(), &again)
	if again.Scope != auth.ScopeAgent || again.State != "revoked" {
		t.Fatalf("expected revoked restricted signin, got %+v", again)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	r := newTestRouter()

	if rec := do(t, r, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/health/ready", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/session/agents", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}
