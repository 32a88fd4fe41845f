// Package writer performs the read-merge-write of one key into a Vault KV
// secret.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/elabx-org/hashivault/internal/kvpath"
	"github.com/elabx-org/hashivault/internal/vault"
	"github.com/rs/zerolog/log"
)

// Options configure how a Writer addresses and updates secrets.
type Options struct {
	KVVersion   int    // 1 (default) or 2
	Mount       string // KV mount; empty means the first segment of the secret path
	CheckAndSet bool   // KV v2 only: reject the write if the secret changed since the fetch
	CheckMode   bool   // compute the result without writing
}

// Validate checks opts and fills in defaults.
func (o *Options) Validate() error {
	if o.KVVersion == 0 {
		o.KVVersion = 1
	}
	if o.KVVersion != 1 && o.KVVersion != 2 {
		return fmt.Errorf("unsupported KV version %d (want 1 or 2)", o.KVVersion)
	}
	if o.CheckAndSet && o.KVVersion != 2 {
		return fmt.Errorf("check-and-set requires KV version 2")
	}
	return nil
}

// WriteResult describes a completed write.
type WriteResult struct {
	Path         string
	Key          string
	BytesWritten int
	Changed      bool
	Version      int
}

// Writer writes keys into secrets on behalf of a session.
type Writer struct {
	opts     Options
	newStore func(vault.Session) (Store, error)
}

// New returns a Writer that reaches Vault through conn.
func New(conn vault.ConnectionConfig, opts Options) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		opts: opts,
		newStore: func(s vault.Session) (Store, error) {
			client, err := vault.NewSessionClient(conn, s)
			if err != nil {
				return nil, err
			}
			return NewKVStore(client, opts.KVVersion), nil
		},
	}, nil
}

// NewWithStore returns a Writer using a fixed Store, ignoring sessions.
func NewWithStore(store Store, opts Options) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		opts:     opts,
		newStore: func(vault.Session) (Store, error) { return store, nil },
	}, nil
}

// Write stores req under its key. See WriteTracked.
func (w *Writer) Write(ctx context.Context, s vault.Session, req WriteRequest) (WriteResult, error) {
	return w.WriteTracked(ctx, NewTracker(req.SecretPath), s, req)
}

// WriteTracked fetches the current document when updating (or when
// check-and-set needs its version), builds the new document in memory, and
// writes it back in one request. The fetched document is never modified.
// In update mode a key that already holds the value is left alone.
func (w *Writer) WriteTracked(ctx context.Context, tr *Tracker, s vault.Session, req WriteRequest) (WriteResult, error) {
	res, err := w.write(ctx, tr, s, req)
	if err != nil {
		tr.Fail(err)
		return WriteResult{}, err
	}
	tr.To(StateDone)
	return res, nil
}

func (w *Writer) write(ctx context.Context, tr *Tracker, s vault.Session, req WriteRequest) (WriteResult, error) {
	ref, err := kvpath.Parse(req.SecretPath, w.opts.Mount)
	if err != nil {
		return WriteResult{}, fail(ReasonWriteFailed, err, "resolve secret path")
	}
	store, err := w.newStore(s)
	if err != nil {
		return WriteResult{}, fail(ReasonUnreachable, err, "build vault client")
	}

	value := req.StoredValue()
	res := WriteResult{Path: req.SecretPath, Key: req.Key}

	base := Document{}
	var snap Snapshot
	fetched := req.UpdateMode || w.opts.CheckAndSet
	if fetched {
		tr.To(StateFetching)
		snap, err = store.Read(ctx, ref)
		if err != nil {
			return WriteResult{}, classifyFetch(err, ref)
		}
		if !snap.Exists {
			log.Debug().Str("path", ref.String()).Int("version", snap.Version).Msg("writer: secret absent, creating")
		}
		if req.UpdateMode {
			base = snap.Data
		}
	}

	tr.To(StateMerging)
	next := base.With(req.Key, value)
	res.Version = snap.Version

	if fetched && snap.Exists && len(next) == len(snap.Data) && snap.Data[req.Key] == any(value) {
		log.Info().Str("path", ref.String()).Str("key", req.Key).Msg("writer: value already present, nothing to write")
		return res, nil
	}
	res.Changed = true

	if w.opts.CheckMode {
		log.Info().Str("path", ref.String()).Str("key", req.Key).Msg("writer: check mode, write skipped")
		return res, nil
	}

	tr.To(StateWriting)
	var cas *int
	if w.opts.CheckAndSet {
		v := snap.Version
		cas = &v
	}
	version, err := store.Write(ctx, ref, next, cas)
	if err != nil {
		return WriteResult{}, classifyWrite(err, ref)
	}
	res.BytesWritten = len(req.Payload)
	res.Version = version

	log.Info().
		Str("path", ref.String()).
		Str("key", req.Key).
		Int("bytes", res.BytesWritten).
		Int("keys", len(next)).
		Int("version", version).
		Msg("writer: secret written")
	return res, nil
}

func classifyFetch(err error, ref kvpath.Ref) *Error {
	code := vault.StatusCode(err)
	switch {
	case vault.IsTimeout(err):
		return fail(ReasonTimeout, err, "fetch %s timed out", ref)
	case vault.IsUnreachable(err):
		return fail(ReasonUnreachable, err, "fetch %s", ref)
	case code != 0:
		return fail(ReasonFetchFailed, err, "fetch %s (HTTP %d)", ref, code)
	default:
		return fail(ReasonFetchFailed, err, "fetch %s", ref)
	}
}

func classifyWrite(err error, ref kvpath.Ref) *Error {
	code := vault.StatusCode(err)
	switch {
	case vault.IsTimeout(err):
		return fail(ReasonTimeout, err, "write %s timed out", ref)
	case vault.IsUnreachable(err):
		return fail(ReasonUnreachable, err, "write %s", ref)
	case code == 403:
		return fail(ReasonForbidden, err, "session may not write %s", ref)
	case code == 400 && vault.HasMessage(err, "check-and-set parameter did not match"):
		return fail(ReasonConflict, err, "%s changed since it was read", ref)
	case code != 0:
		return fail(ReasonWriteFailed, err, "write %s (HTTP %d)", ref, code)
	default:
		return fail(ReasonWriteFailed, err, "write %s", ref)
	}
}

// State is a step of a write operation.
type State string

const (
	StateIdle           State = "Idle"
	StateAuthenticating State = "Authenticating"
	StateFetching       State = "Fetching"
	StateMerging        State = "Merging"
	StateWriting        State = "Writing"
	StateDone           State = "Done"
	StateFailed         State = "Failed"
)

// Tracker follows one operation through its states and logs each transition.
type Tracker struct {
	path  string
	state State
	start time.Time
}

// NewTracker starts a Tracker in StateIdle.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path, state: StateIdle, start: time.Now()}
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// To moves to s. Terminal states are final.
func (t *Tracker) To(s State) {
	if t.state == StateDone || t.state == StateFailed {
		return
	}
	log.Debug().
		Str("path", t.path).
		Str("from", string(t.state)).
		Str("to", string(s)).
		Dur("elapsed", time.Since(t.start)).
		Msg("writer: state")
	t.state = s
}

// Fail moves to StateFailed, recording err.
func (t *Tracker) Fail(err error) {
	if t.state == StateDone || t.state == StateFailed {
		return
	}
	log.Debug().Str("path", t.path).Str("from", string(t.state)).Err(err).Msg("writer: state Failed")
	t.state = StateFailed
}
