// Package audit keeps an append-only JSON-lines record of write operations.
// Entries never contain secret values or credentials.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"ts"`
	Action      string    `json:"action"`
	Path        string    `json:"path"`
	Key         string    `json:"key"`
	AuthType    string    `json:"authtype"`
	Mode        string    `json:"mode"` // update, overwrite or check
	Changed     bool      `json:"changed"`
	Bytes       int       `json:"bytes"`
	Version     int       `json:"version,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type QueryOptions struct {
	Path   string
	Key    string
	Hours  int
	Failed bool // only entries with an error
	Limit  int  // newest N; 0 returns all
}

func (o QueryOptions) match(e Entry, cutoff time.Time) bool {
	switch {
	case o.Path != "" && !strings.EqualFold(strings.Trim(e.Path, "/"), strings.Trim(o.Path, "/")):
		return false
	case o.Key != "" && e.Key != o.Key:
		return false
	case o.Failed && e.Error == "":
		return false
	case !cutoff.IsZero() && e.Timestamp.Before(cutoff):
		return false
	}
	return true
}

// Logger appends entries to a JSONL file. Safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func New(path string) (*Logger, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Logger{f: f, path: path}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
}

func (l *Logger) Close() error { return l.f.Close() }

// Log stamps e with an ID and the current time, appends it and returns the ID.
// A failed append is logged, never returned: auditing must not fail a write.
func (l *Logger) Log(e Entry) string {
	e.ID = uuid.NewString()
	e.Timestamp = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("id", e.ID).Msg("audit: marshal entry")
		return e.ID
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("audit: append entry")
	}
	return e.ID
}

// each calls fn for every line of the log. e is the zero Entry and ok false
// when the line does not parse.
func (l *Logger) each(fn func(line []byte, e Entry, ok bool) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var e Entry
		ok := json.Unmarshal(scanner.Bytes(), &e) == nil
		if err := fn(scanner.Bytes(), e, ok); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Prune drops entries older than retentionDays by streaming the survivors to
// a temporary file and renaming it over the log. Lines that do not parse are
// kept. No-op if retentionDays is 0.
func (l *Logger) Prune(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	tmp := l.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	dropped := 0
	err = l.each(func(line []byte, e Entry, ok bool) error {
		if ok && e.Timestamp.Before(cutoff) {
			dropped++
			return nil
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	if err == nil {
		err = w.Flush()
	}
	out.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return err
	}

	// The append handle still points at the replaced file.
	l.f.Close()
	l.f, err = openAppend(l.path)
	if dropped > 0 {
		log.Info().Int("dropped", dropped).Int("retention_days", retentionDays).Msg("audit: pruned")
	}
	return err
}

// Query returns matching entries oldest first. With Limit set, only the
// newest Limit matches are returned.
func (l *Logger) Query(opts QueryOptions) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cutoff time.Time
	if opts.Hours > 0 {
		cutoff = time.Now().Add(-time.Duration(opts.Hours) * time.Hour)
	}

	var results []Entry
	err := l.each(func(_ []byte, e Entry, ok bool) error {
		if ok && opts.match(e, cutoff) {
			results = append(results, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[len(results)-opts.Limit:]
	}
	return results, nil
}
