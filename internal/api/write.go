package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/elabx-org/hashivault/internal/auth"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/task"
	"github.com/elabx-org/hashivault/internal/writer"
	"github.com/rs/zerolog/log"
)

// writeFileRequest carries the module parameters with the payload inline in
// content. dest is refused: the gateway never reads files from its own disk.
type writeFileRequest struct {
	config.Params
	Check bool `json:"check"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.DestPath() != "" {
		http.Error(w, "dest is not accepted by the gateway; send the file as base64 content", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	params := s.cfg.Vault.Override(req.Params)
	params.CheckMode = params.CheckMode || req.Check

	res := s.runner.Run(r.Context(), task.Input{
		Params:      params,
		Content:     req.Content,
		TriggeredBy: triggeredBy(r),
	})
	if !res.Failed && res.Changed && !params.CheckMode {
		s.index.Record(strings.Trim(res.Path, "/"), res.Key, res.Version)
	}
	if res.Failed {
		log.Warn().Str("path", res.Path).Str("reason", res.Reason).Msg("write-file: request failed")
	}
	writeJSON(w, statusFor(res), res)
}

// statusFor maps a task result to the HTTP status of the gateway response.
func statusFor(res task.Result) int {
	if !res.Failed {
		return http.StatusOK
	}
	switch res.Reason {
	case task.ReasonInvalidParameter, string(writer.ReasonBadEncoding), string(auth.ReasonUnsupportedAuthType):
		return http.StatusBadRequest
	case string(auth.ReasonInvalidCredentials):
		return http.StatusUnauthorized
	case string(writer.ReasonForbidden):
		return http.StatusForbidden
	case string(writer.ReasonConflict):
		return http.StatusConflict
	case string(writer.ReasonTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func triggeredBy(r *http.Request) string {
	if v := r.Header.Get("X-Triggered-By"); v != "" {
		return v
	}
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return "hashivaultd"
}
