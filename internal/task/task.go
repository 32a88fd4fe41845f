// Package task runs one write-file operation end to end: resolve parameters,
// load and decode the payload, log in, write, then report and audit.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elabx-org/hashivault/internal/audit"
	"github.com/elabx-org/hashivault/internal/auth"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/metrics"
	"github.com/elabx-org/hashivault/internal/payload"
	"github.com/elabx-org/hashivault/internal/vault"
	"github.com/elabx-org/hashivault/internal/writer"
	"github.com/rs/zerolog/log"
)

// Failure reasons that come from neither auth nor writer.
const (
	ReasonInvalidParameter = "InvalidParameter"
	ReasonReadFailed       = "ReadFailed"
)

// Result is the task outcome in the shape Ansible expects from a module.
type Result struct {
	Changed      bool     `json:"changed"`
	Failed       bool     `json:"failed"`
	RC           int      `json:"rc"`
	Msg          string   `json:"msg"`
	Path         string   `json:"path,omitempty"`
	Key          string   `json:"key,omitempty"`
	BytesWritten int      `json:"bytes_written"`
	Version      int      `json:"version,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	AuditID      string   `json:"audit_id,omitempty"`
}

// Input is one invocation. Content, when set, is the base64 payload and
// Params.Dest is not read.
type Input struct {
	Params      config.Params
	Content     string
	TriggeredBy string
}

// Authenticator turns connection settings into a session.
type Authenticator interface {
	Authenticate(ctx context.Context, cfg vault.ConnectionConfig) (vault.Session, error)
}

// Runner executes write-file tasks. Audit and Metrics are optional.
type Runner struct {
	Env     config.Env
	Auth    Authenticator
	Audit   *audit.Logger
	Metrics *metrics.Metrics
}

// NewRunner returns a Runner reading the process environment.
func NewRunner() *Runner {
	return &Runner{Env: config.OSEnv(), Auth: auth.New()}
}

// Run performs the task. It never returns an error: failures are reported in
// the Result with Failed set, RC 1 and a Reason.
func (r *Runner) Run(ctx context.Context, in Input) Result {
	start := time.Now()

	s, err := config.Resolve(in.Params, r.Env)
	if err != nil {
		return r.finish(in, s, Result{Path: in.Params.Secret, Key: in.Params.Key}, err, start)
	}
	res := Result{Path: s.SecretPath, Key: s.Key}

	content := in.Content
	if content == "" {
		if s.Dest == "" {
			return r.finish(in, s, res, &config.Error{Field: "dest", Msg: "required"}, start)
		}
		content, err = payload.ReadFile(s.Dest)
		if err != nil {
			return r.finish(in, s, res, fmt.Errorf("read dest: %w", err), start)
		}
	}

	// Decoding happens before any request, including the login.
	req, err := writer.NewWriteRequest(s.SecretPath, s.Key, content, s.Update, s.Encoding)
	if err != nil {
		return r.finish(in, s, res, err, start)
	}

	if !s.Conn.VerifyTLS {
		res.Warnings = append(res.Warnings, "TLS certificate verification is disabled for "+s.Conn.Address)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	tr := writer.NewTracker(s.SecretPath)
	tr.To(writer.StateAuthenticating)
	session, err := r.Auth.Authenticate(ctx, s.Conn)
	if err != nil {
		tr.Fail(err)
		r.Metrics.RecordAuth(string(s.Conn.AuthType), reasonOf(err))
		return r.finish(in, s, res, err, start)
	}
	r.Metrics.RecordAuth(string(s.Conn.AuthType), "ok")

	w, err := writer.New(s.Conn, s.Writer)
	if err != nil {
		tr.Fail(err)
		return r.finish(in, s, res, &config.Error{Field: "version", Msg: err.Error()}, start)
	}
	wr, err := w.WriteTracked(ctx, tr, session, req)
	if err != nil {
		return r.finish(in, s, res, err, start)
	}

	res.Changed = wr.Changed
	res.BytesWritten = wr.BytesWritten
	res.Version = wr.Version
	size := humanize.Bytes(uint64(len(req.Payload)))
	switch {
	case !wr.Changed:
		res.Msg = fmt.Sprintf("%s in %s is already up to date", s.Key, s.SecretPath)
	case s.CheckMode:
		res.Msg = fmt.Sprintf("would write %s (%s) to %s", s.Key, size, s.SecretPath)
	default:
		res.Msg = fmt.Sprintf("wrote %s (%s) to %s", s.Key, size, s.SecretPath)
	}
	return r.finish(in, s, res, nil, start)
}

func (r *Runner) finish(in Input, s config.Settings, res Result, err error, start time.Time) Result {
	elapsed := time.Since(start)
	outcome := "changed"
	switch {
	case err != nil:
		res.Failed = true
		res.RC = 1
		res.Changed = false
		res.Reason = reasonOf(err)
		res.Msg = err.Error()
		outcome = res.Reason
	case !res.Changed:
		outcome = "unchanged"
	case s.CheckMode:
		outcome = "check"
	}
	r.Metrics.RecordWrite(outcome, res.BytesWritten, elapsed)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Str("reason", res.Reason)
	}
	ev.Str("path", res.Path).
		Str("key", res.Key).
		Bool("changed", res.Changed).
		Int("bytes", res.BytesWritten).
		Dur("elapsed", elapsed).
		Msg("write-file " + outcome)

	if r.Audit != nil {
		e := audit.Entry{
			Action:      "write-file",
			Path:        res.Path,
			Key:         res.Key,
			AuthType:    string(s.Conn.AuthType),
			Mode:        mode(s),
			Changed:     res.Changed,
			Bytes:       res.BytesWritten,
			Version:     res.Version,
			Reason:      res.Reason,
			DurationMs:  elapsed.Milliseconds(),
			TriggeredBy: in.TriggeredBy,
		}
		if err != nil {
			e.Error = res.Msg
		}
		res.AuditID = r.Audit.Log(e)
	}
	return res
}

func mode(s config.Settings) string {
	switch {
	case s.CheckMode:
		return "check"
	case s.Update:
		return "update"
	default:
		return "overwrite"
	}
}

func reasonOf(err error) string {
	var authErr *auth.Error
	var writeErr *writer.Error
	var cfgErr *config.Error
	switch {
	case errors.As(err, &authErr):
		return string(authErr.Reason)
	case errors.As(err, &writeErr):
		return string(writeErr.Reason)
	case errors.As(err, &cfgErr):
		return ReasonInvalidParameter
	case errors.Is(err, context.DeadlineExceeded):
		return string(writer.ReasonTimeout)
	default:
		return ReasonReadFailed
	}
}
