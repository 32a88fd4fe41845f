// Package vaulttest provides an in-memory Vault HTTP server covering the
// login backends and KV v1/v2 endpoints this module talks to.
package vaulttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

type kvEntry struct {
	data    map[string]any
	version int
	deleted bool
}

type failure struct {
	status int
	msg    string
}

// Server is a fake Vault. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	mounts    map[string]int      // mount -> KV version
	kv        map[string]*kvEntry // "mount/path" -> entry
	tokens    map[string]bool     // accepted session tokens
	users     map[string]string   // "mount/user" -> password
	github    map[string]bool     // "mount/token"
	approles  map[string]string   // "mount/role_id" -> secret_id
	readOnly  map[string]bool     // tokens without write policy
	failNext  map[string]failure  // method -> injected failure
	requests  []string
	latency   time.Duration
	issued    int
	leaseSecs int
}

// New starts a fake Vault with a KV v1 mount "secret" and a KV v2 mount "kv".
func New() *Server {
	s := &Server{
		mounts:    map[string]int{"secret": 1, "kv": 2},
		kv:        make(map[string]*kvEntry),
		tokens:    make(map[string]bool),
		users:     make(map[string]string),
		github:    make(map[string]bool),
		approles:  make(map[string]string),
		readOnly:  make(map[string]bool),
		failNext:  make(map[string]failure),
		leaseSecs: 3600,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Mount registers a KV mount of the given version.
func (s *Server) Mount(name string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[name] = version
}

// AddToken accepts token for KV requests.
func (s *Server) AddToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

// AddReadOnlyToken accepts token for reads only; writes get 403.
func (s *Server) AddReadOnlyToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
	s.readOnly[token] = true
}

// AddUser registers a userpass or ldap login under mount.
func (s *Server) AddUser(mount, username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[mount+"/"+username] = password
}

// AddGitHubToken registers a GitHub token accepted by the github backend at mount.
func (s *Server) AddGitHubToken(mount, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.github[mount+"/"+token] = true
}

// AddAppRole registers an AppRole credential pair under mount.
func (s *Server) AddAppRole(mount, roleID, secretID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approles[mount+"/"+roleID] = secretID
}

// Seed stores data at a logical path such as "secret/app" or "kv/app".
func (s *Server) Seed(path string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.kv[path]
	if e == nil {
		e = &kvEntry{}
		s.kv[path] = e
	}
	e.data = copyMap(data)
	e.version++
	e.deleted = false
}

// SoftDelete marks a KV v2 secret deleted while keeping its version.
func (s *Server) SoftDelete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.kv[path]; e != nil {
		e.deleted = true
	}
}

// Data returns a copy of the document stored at path, or nil.
func (s *Server) Data(path string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.kv[path]
	if e == nil || e.deleted {
		return nil
	}
	return copyMap(e.data)
}

// Version returns the KV version counter of path.
func (s *Server) Version(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.kv[path]; e != nil {
		return e.version
	}
	return 0
}

// FailNext makes the next request with the given method answer status.
func (s *Server) FailNext(method string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = failure{status: status, msg: msg}
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Requests returns "METHOD /v1/path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Calls returns the number of requests received.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Writes returns the number of PUT/POST requests against KV paths.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if (strings.HasPrefix(r, "PUT ") || strings.HasPrefix(r, "POST ")) && !strings.Contains(r, "/v1/auth/") {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	latency := s.latency
	f, injected := s.failNext[r.Method]
	if injected {
		delete(s.failNext, r.Method)
	}
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return
		}
	}
	if injected {
		writeErrors(w, f.status, f.msg)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/")
	if rest == "sys/health" {
		writeJSON(w, http.StatusOK, map[string]any{
			"initialized":  true,
			"sealed":       false,
			"standby":      false,
			"version":      "1.16.0",
			"cluster_name": "vaulttest",
		})
		return
	}
	if strings.HasPrefix(rest, "auth/") {
		s.handleLogin(w, r, strings.TrimPrefix(rest, "auth/"))
		return
	}
	s.handleKV(w, r, rest)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, rest string) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[1] != "login" {
		writeErrors(w, http.StatusNotFound, "no handler for route")
		return
	}
	mount := parts[0]

	s.mu.Lock()
	ok := false
	switch {
	case len(parts) == 3:
		pw, found := s.users[mount+"/"+parts[2]]
		ok = found && pw == body["password"]
	case body["role_id"] != "":
		sid, found := s.approles[mount+"/"+body["role_id"]]
		ok = found && sid == body["secret_id"]
	case body["token"] != "":
		ok = s.github[mount+"/"+body["token"]]
	}
	var token string
	if ok {
		s.issued++
		token = fmt.Sprintf("s.session-%d", s.issued)
		s.tokens[token] = true
	}
	lease := s.leaseSecs
	s.mu.Unlock()

	if !ok {
		writeErrors(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"client_token":   token,
			"lease_duration": lease,
			"renewable":      true,
			"policies":       []string{"default", "writer"},
		},
	})
}

func (s *Server) handleKV(w http.ResponseWriter, r *http.Request, rest string) {
	token := r.Header.Get("X-Vault-Token")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tokens[token] {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	mount, sub, _ := strings.Cut(rest, "/")
	version, known := s.mounts[mount]
	if !known {
		writeErrors(w, http.StatusNotFound, "no handler for route \""+rest+"\"")
		return
	}
	if version == 2 {
		var ok bool
		sub, ok = strings.CutPrefix(sub, "data/")
		if !ok {
			writeErrors(w, http.StatusNotFound, "unsupported kv v2 path")
			return
		}
	}
	key := mount + "/" + sub

	switch r.Method {
	case http.MethodGet:
		s.readKV(w, key, version)
	case http.MethodPut, http.MethodPost:
		if s.readOnly[token] {
			writeErrors(w, http.StatusForbidden, "permission denied")
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErrors(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.writeKV(w, key, version, body)
	default:
		writeErrors(w, http.StatusMethodNotAllowed, "unsupported operation")
	}
}

func (s *Server) readKV(w http.ResponseWriter, key string, version int) {
	e := s.kv[key]
	if e == nil {
		writeErrors(w, http.StatusNotFound)
		return
	}
	if version == 1 {
		writeJSON(w, http.StatusOK, map[string]any{"data": e.data})
		return
	}
	meta := map[string]any{"version": e.version, "deletion_time": "", "destroyed": false}
	if e.deleted {
		meta["deletion_time"] = time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, http.StatusNotFound, map[string]any{"data": map[string]any{"data": nil, "metadata": meta}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"data": e.data, "metadata": meta}})
}

func (s *Server) writeKV(w http.ResponseWriter, key string, version int, body map[string]any) {
	e := s.kv[key]
	if version == 1 {
		if e == nil {
			e = &kvEntry{}
			s.kv[key] = e
		}
		e.data = body
		e.version++
		w.WriteHeader(http.StatusNoContent)
		return
	}

	current := 0
	if e != nil {
		current = e.version
	}
	if opts, ok := body["options"].(map[string]any); ok {
		if cas, ok := opts["cas"].(float64); ok && int(cas) != current {
			writeErrors(w, http.StatusBadRequest, "check-and-set parameter did not match the current version")
			return
		}
	}
	data, _ := body["data"].(map[string]any)
	if e == nil {
		e = &kvEntry{}
		s.kv[key] = e
	}
	e.data = data
	e.version++
	e.deleted = false
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"version": e.version}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(w, status, map[string]any{"errors": msgs})
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
