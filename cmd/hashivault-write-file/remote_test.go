package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elabx-org/hashivault/internal/task"
)

func TestDoRemoteWrite(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantErr   bool
		permanent bool
	}{
		{"ok", http.StatusOK, task.Result{Changed: true, Msg: "wrote foo.dat (5 B) to secret/app"}, false, false},
		{"conflict", http.StatusConflict, task.Result{Failed: true, Reason: "Conflict", Msg: "cas mismatch"}, true, true},
		{"unauthorized", http.StatusUnauthorized, task.Result{Failed: true, Reason: "InvalidCredentials"}, true, true},
		{"bad gateway", http.StatusBadGateway, task.Result{Failed: true, Reason: "Unreachable"}, true, false},
		{"timeout", http.StatusGatewayTimeout, task.Result{Failed: true, Reason: "Timeout"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/write-file" || r.Header.Get("Authorization") != "Bearer api" {
					http.Error(w, "unexpected request", http.StatusTeapot)
					return
				}
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()
			flagServer, flagAPIToken = srv.URL, "api"

			res, err := doRemoteWrite(map[string]any{"secret": "secret/app", "key": "foo.dat", "content": "aGVsbG8="})
			if got["content"] != "aGVsbG8=" {
				t.Errorf("server received %v", got)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("doRemoteWrite() error = %v, wantErr %v", err, tt.wantErr)
			}
			var permErr *permanentError
			if errors.As(err, &permErr) != tt.permanent {
				t.Errorf("permanent = %v, want %v (err: %v)", !tt.permanent, tt.permanent, err)
			}
			if !tt.wantErr && !res.Changed {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestDoRemoteWriteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	flagServer = srv.URL
	srv.Close()

	_, err := doRemoteWrite(map[string]any{})
	var permErr *permanentError
	if err == nil || errors.As(err, &permErr) {
		t.Errorf("error = %v, want a retryable error", err)
	}
}
