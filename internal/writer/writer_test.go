package writer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elabx-org/hashivault/internal/kvpath"
	"github.com/elabx-org/hashivault/internal/vault"
	"github.com/elabx-org/hashivault/internal/vaulttest"
	"github.com/elabx-org/hashivault/internal/writer"
)

var session = vault.Session{Token: "t1"}

func setup(t *testing.T) (*vaulttest.Server, vault.ConnectionConfig) {
	t.Helper()
	srv := vaulttest.New()
	t.Cleanup(srv.Close)
	srv.AddToken("t1")
	return srv, vault.ConnectionConfig{Address: srv.URL, VerifyTLS: true, AuthType: vault.AuthToken, Timeout: 5 * time.Second}
}

func newWriter(t *testing.T, conn vault.ConnectionConfig, opts writer.Options) *writer.Writer {
	t.Helper()
	w, err := writer.New(conn, opts)
	if err != nil {
		t.Fatalf("writer.New() error = %v", err)
	}
	return w
}

func request(t *testing.T, path, key, content string, update bool) writer.WriteRequest {
	t.Helper()
	req, err := writer.NewWriteRequest(path, key, content, update, writer.EncodingRaw)
	if err != nil {
		t.Fatalf("NewWriteRequest() error = %v", err)
	}
	return req
}

func wantReason(t *testing.T, err error, want writer.Reason) {
	t.Helper()
	var werr *writer.Error
	if !errors.As(err, &werr) {
		t.Fatalf("error = %v, want *writer.Error", err)
	}
	if werr.Reason != want {
		t.Errorf("Reason = %s, want %s (err: %v)", werr.Reason, want, err)
	}
}

func TestWriteMergesIntoExistingSecret(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("secret/app", map[string]any{"bar.dat": "..."})

	res, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Path != "secret/app" || res.Key != "foo.dat" || res.BytesWritten != 5 || !res.Changed {
		t.Errorf("Write() = %+v, want {secret/app foo.dat 5 changed}", res)
	}

	got := srv.Data("secret/app")
	if len(got) != 2 || got["bar.dat"] != "..." || got["foo.dat"] != "hello" {
		t.Errorf("stored document = %v, want {bar.dat: ..., foo.dat: hello}", got)
	}
}

func TestWriteUpdatePreservesOtherKeys(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("secret/app", map[string]any{"A": "alpha", "B": 42.0, "K": "old"})

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "K", "bmV3", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := srv.Data("secret/app")
	if got["A"] != "alpha" || got["B"] != 42.0 || got["K"] != "new" || len(got) != 3 {
		t.Errorf("stored document = %v", got)
	}
}

func TestWriteOverwriteKeepsOnlyKey(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("secret/app", map[string]any{"A": "alpha", "B": "beta"})

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "K", "aGVsbG8=", false))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := srv.Data("secret/app")
	if len(got) != 1 || got["K"] != "hello" {
		t.Errorf("stored document = %v, want {K: hello}", got)
	}
	for _, r := range srv.Requests() {
		if r == "GET /v1/secret/app" {
			t.Error("overwrite mode fetched the secret")
		}
	}
}

func TestWriteCreatesMissingSecret(t *testing.T) {
	srv, conn := setup(t)

	res, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/new", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !res.Changed {
		t.Error("Changed = false for a new secret")
	}
	if got := srv.Data("secret/new"); got["foo.dat"] != "hello" {
		t.Errorf("stored document = %v", got)
	}
}

func TestWriteUnchangedValueSkipsWrite(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("secret/app", map[string]any{"foo.dat": "hello", "bar.dat": "x"})

	res, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Changed || res.BytesWritten != 0 {
		t.Errorf("Write() = %+v, want unchanged", res)
	}
	if srv.Writes() != 0 {
		t.Errorf("Writes() = %d, want 0", srv.Writes())
	}
}

func TestWriteCheckMode(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("secret/app", map[string]any{"bar.dat": "x"})

	res, err := newWriter(t, conn, writer.Options{CheckMode: true}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !res.Changed {
		t.Error("Changed = false, want true in check mode")
	}
	if srv.Writes() != 0 {
		t.Errorf("Writes() = %d, want 0", srv.Writes())
	}
	if _, ok := srv.Data("secret/app")["foo.dat"]; ok {
		t.Error("check mode wrote the key")
	}
}

func TestWriteBase64Encoding(t *testing.T) {
	srv, conn := setup(t)
	req, err := writer.NewWriteRequest("secret/app", "bin", "AAEC/w==", true, writer.EncodingBase64)
	if err != nil {
		t.Fatalf("NewWriteRequest() error = %v", err)
	}
	res, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session, req)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.BytesWritten != 4 {
		t.Errorf("BytesWritten = %d, want 4", res.BytesWritten)
	}
	if got := srv.Data("secret/app")["bin"]; got != "AAEC/w==" {
		t.Errorf("stored value = %v, want AAEC/w==", got)
	}
}

func TestWriteKVv2(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("kv/app", map[string]any{"bar.dat": "x"})

	res, err := newWriter(t, conn, writer.Options{KVVersion: 2}).Write(context.Background(), session,
		request(t, "kv/app", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Version)
	}
	got := srv.Data("kv/app")
	if got["bar.dat"] != "x" || got["foo.dat"] != "hello" {
		t.Errorf("stored document = %v", got)
	}
	want := []string{"GET /v1/kv/data/app", "PUT /v1/kv/data/app"}
	reqs := srv.Requests()
	if len(reqs) != 2 || reqs[0] != want[0] || reqs[1] != want[1] {
		t.Errorf("requests = %v, want %v", reqs, want)
	}
}

func TestWriteKVv2CustomMount(t *testing.T) {
	srv, conn := setup(t)
	srv.Mount("apps", 2)

	_, err := newWriter(t, conn, writer.Options{KVVersion: 2, Mount: "apps"}).Write(context.Background(), session,
		request(t, "team/web", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := srv.Data("apps/team/web"); got["foo.dat"] != "hello" {
		t.Errorf("stored document = %v", got)
	}
}

func TestWriteKVv2SoftDeleted(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("kv/app", map[string]any{"stale": "x"})
	srv.SoftDelete("kv/app")

	res, err := newWriter(t, conn, writer.Options{KVVersion: 2, CheckAndSet: true}).Write(context.Background(), session,
		request(t, "kv/app", "foo.dat", "aGVsbG8=", true))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Version)
	}
	got := srv.Data("kv/app")
	if len(got) != 1 || got["foo.dat"] != "hello" {
		t.Errorf("stored document = %v, want only foo.dat", got)
	}
}

// racingStore lets another writer bump the secret between fetch and write.
type racingStore struct {
	writer.Store
	race func()
}

func (s racingStore) Write(ctx context.Context, ref kvpath.Ref, doc writer.Document, cas *int) (int, error) {
	s.race()
	return s.Store.Write(ctx, ref, doc, cas)
}

func TestWriteCheckAndSetConflict(t *testing.T) {
	srv, conn := setup(t)
	srv.Seed("kv/app", map[string]any{"bar.dat": "x"})

	client, err := vault.NewSessionClient(conn, session)
	if err != nil {
		t.Fatalf("NewSessionClient() error = %v", err)
	}
	store := racingStore{
		Store: writer.NewKVStore(client, 2),
		race:  func() { srv.Seed("kv/app", map[string]any{"bar.dat": "y"}) },
	}
	w, err := writer.NewWithStore(store, writer.Options{KVVersion: 2, CheckAndSet: true})
	if err != nil {
		t.Fatalf("NewWithStore() error = %v", err)
	}

	_, err = w.Write(context.Background(), session, request(t, "kv/app", "foo.dat", "aGVsbG8=", true))
	wantReason(t, err, writer.ReasonConflict)
	if got := srv.Data("kv/app"); got["bar.dat"] != "y" || got["foo.dat"] != nil {
		t.Errorf("stored document = %v, want the racing writer's version", got)
	}
}

func TestWriteForbidden(t *testing.T) {
	srv, conn := setup(t)
	srv.AddReadOnlyToken("ro")
	srv.Seed("secret/app", map[string]any{"bar.dat": "x"})

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), vault.Session{Token: "ro"},
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	wantReason(t, err, writer.ReasonForbidden)
	if got := srv.Data("secret/app"); len(got) != 1 {
		t.Errorf("stored document = %v, want unchanged", got)
	}
}

func TestWriteFetchFailed(t *testing.T) {
	srv, conn := setup(t)
	srv.FailNext(http.MethodGet, http.StatusInternalServerError, "internal error")

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	wantReason(t, err, writer.ReasonFetchFailed)
	if srv.Writes() != 0 {
		t.Errorf("Writes() = %d after a failed fetch", srv.Writes())
	}
}

func TestWriteFailed(t *testing.T) {
	srv, conn := setup(t)
	srv.FailNext(http.MethodPut, http.StatusInternalServerError, "storage unavailable")

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	wantReason(t, err, writer.ReasonWriteFailed)
}

func TestWriteTimeout(t *testing.T) {
	srv, conn := setup(t)
	srv.SetLatency(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newWriter(t, conn, writer.Options{}).Write(ctx, session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", true))
	wantReason(t, err, writer.ReasonTimeout)
}

func TestWriteUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	conn := vault.ConnectionConfig{Address: dead.URL, VerifyTLS: true, AuthType: vault.AuthToken}
	dead.Close()

	_, err := newWriter(t, conn, writer.Options{}).Write(context.Background(), session,
		request(t, "secret/app", "foo.dat", "aGVsbG8=", false))
	wantReason(t, err, writer.ReasonUnreachable)
}

func TestTrackerStates(t *testing.T) {
	srv, conn := setup(t)
	w := newWriter(t, conn, writer.Options{})

	tr := writer.NewTracker("secret/app")
	if tr.State() != writer.StateIdle {
		t.Errorf("initial State() = %s", tr.State())
	}
	if _, err := w.WriteTracked(context.Background(), tr, session, request(t, "secret/app", "k", "aGVsbG8=", true)); err != nil {
		t.Fatalf("WriteTracked() error = %v", err)
	}
	if tr.State() != writer.StateDone {
		t.Errorf("State() = %s, want Done", tr.State())
	}

	srv.FailNext(http.MethodGet, http.StatusInternalServerError, "boom")
	tr = writer.NewTracker("secret/app")
	if _, err := w.WriteTracked(context.Background(), tr, session, request(t, "secret/app", "k", "aGVsbG8=", true)); err == nil {
		t.Fatal("expected error")
	}
	if tr.State() != writer.StateFailed {
		t.Errorf("State() = %s, want Failed", tr.State())
	}
	tr.To(writer.StateWriting)
	if tr.State() != writer.StateFailed {
		t.Error("terminal state was left")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    writer.Options
		wantErr bool
	}{
		{"defaults", writer.Options{}, false},
		{"v2 cas", writer.Options{KVVersion: 2, CheckAndSet: true}, false},
		{"v1 cas", writer.Options{KVVersion: 1, CheckAndSet: true}, true},
		{"v3", writer.Options{KVVersion: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
