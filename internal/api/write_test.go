package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elabx-org/hashivault/internal/api"
	"github.com/elabx-org/hashivault/internal/audit"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/metrics"
	"github.com/elabx-org/hashivault/internal/task"
	"github.com/elabx-org/hashivault/internal/vaulttest"
)

type gateway struct {
	vault  *vaulttest.Server
	server *api.Server
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	v := vaulttest.New()
	t.Cleanup(v.Close)
	v.AddToken("t1")
	v.AddReadOnlyToken("ro")
	v.AddUser("userpass", "alice", "pw")

	cfg := &config.Config{}
	cfg.Vault.URL = v.URL
	srv := newTestServer(t, cfg)

	logger, err := audit.New(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("audit.New() error = %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	srv.SetAuditor(logger)
	srv.SetMetrics(metrics.New())
	return &gateway{vault: v, server: srv}
}

func (g *gateway) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	g.server.Router().ServeHTTP(w, req)
	return w
}

func TestWriteFile(t *testing.T) {
	g := newGateway(t)
	g.vault.Seed("secret/app", map[string]any{"bar.dat": "..."})

	w := g.do(t, http.MethodPost, "/v1/write-file", map[string]any{
		"secret": "secret/app", "key": "foo.dat", "token": "t1", "content": "aGVsbG8=",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var res task.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !res.Changed || res.BytesWritten != 5 || res.AuditID == "" {
		t.Errorf("result = %+v", res)
	}
	if got := g.vault.Data("secret/app"); got["foo.dat"] != "hello" || got["bar.dat"] != "..." {
		t.Errorf("stored document = %v", got)
	}

	inv := g.do(t, http.MethodGet, "/v1/inventory", nil)
	var body struct {
		Paths map[string]api.PathInfo `json:"paths"`
		Count int                     `json:"count"`
	}
	json.NewDecoder(inv.Body).Decode(&body)
	info, ok := body.Paths["secret/app"]
	if !ok || body.Count != 1 || info.Writes != 1 || len(info.Keys) != 1 || info.Keys[0] != "foo.dat" {
		t.Errorf("inventory = %+v", body)
	}

	aud := g.do(t, http.MethodGet, "/v1/audit?secret=secret/app", nil)
	if !strings.Contains(aud.Body.String(), `"key":"foo.dat"`) || !strings.Contains(aud.Body.String(), `"count":1`) {
		t.Errorf("audit = %s", aud.Body)
	}

	m := g.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(m.Body.String(), `hashivault_writes_total{outcome="changed"} 1`) {
		t.Errorf("metrics missing write counter")
	}
}

func TestWriteFileStatus(t *testing.T) {
	g := newGateway(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad base64", map[string]any{"secret": "secret/app", "key": "k", "token": "t1", "content": "%%%"}, http.StatusBadRequest},
		{"missing content", map[string]any{"secret": "secret/app", "key": "k", "token": "t1"}, http.StatusBadRequest},
		{"dest refused", map[string]any{"secret": "secret/app", "key": "k", "token": "t1", "content": "aGk=", "dest": "/etc/passwd"}, http.StatusBadRequest},
		{"path refused", map[string]any{"secret": "secret/app", "key": "k", "token": "t1", "content": "aGk=", "path": "/etc/passwd"}, http.StatusBadRequest},
		{"missing key", map[string]any{"secret": "secret/app", "token": "t1", "content": "aGk="}, http.StatusBadRequest},
		{"unsupported auth", map[string]any{"secret": "secret/app", "key": "k", "authtype": "kerberos", "content": "aGk="}, http.StatusBadRequest},
		{"wrong password", map[string]any{"secret": "secret/app", "key": "k", "authtype": "userpass", "username": "alice", "password": "nope", "content": "aGk="}, http.StatusUnauthorized},
		{"no token", map[string]any{"secret": "secret/app", "key": "k", "content": "aGk="}, http.StatusUnauthorized},
		{"read-only token", map[string]any{"secret": "secret/app", "key": "k", "token": "ro", "content": "aGk="}, http.StatusForbidden},
		{"userpass", map[string]any{"secret": "secret/app", "key": "k", "authtype": "userpass", "username": "alice", "password": "pw", "content": "aGk="}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := g.do(t, http.MethodPost, "/v1/write-file", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestWriteFileCheckModeNotIndexed(t *testing.T) {
	g := newGateway(t)

	w := g.do(t, http.MethodPost, "/v1/write-file", map[string]any{
		"secret": "secret/app", "key": "foo.dat", "token": "t1", "content": "aGVsbG8=", "check": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if g.vault.Writes() != 0 {
		t.Errorf("Writes() = %d in check mode", g.vault.Writes())
	}
	if n := len(g.server.Index().All()); n != 0 {
		t.Errorf("index has %d paths after a check-mode call", n)
	}
}

func TestInventoryDelete(t *testing.T) {
	g := newGateway(t)
	g.server.Index().Record("secret/app", "foo.dat", 0)

	if w := g.do(t, http.MethodDelete, "/v1/inventory?secret=secret/app", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w := g.do(t, http.MethodDelete, "/v1/inventory?secret=secret/app", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if w := g.do(t, http.MethodDelete, "/v1/inventory", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing secret status = %d, want 400", w.Code)
	}
}

func TestHealthReportsVault(t *testing.T) {
	g := newGateway(t)

	w := g.do(t, http.MethodGet, "/v1/health", nil)
	var resp api.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Vault == nil || resp.Vault.Status != "ok" || resp.Vault.Version != "1.16.0" {
		t.Errorf("health = %+v vault = %+v", resp, resp.Vault)
	}
}
