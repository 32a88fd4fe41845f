package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/elabx-org/hashivault/internal/payload"
	"github.com/elabx-org/hashivault/internal/task"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagAPIToken string
	flagRetries  int
	remote       struct {
		secret, key, dest, encoding, mount string
		authtype, token, username, password string
		roleID, secretID                    string
		version                             int
		update, cas, check                  bool
	}
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Send the file to a hashivaultd gateway instead of talking to Vault directly",
	RunE:  runRemote,
}

func init() {
	f := remoteCmd.Flags()
	f.StringVar(&flagServer, "server", envOrDefault("HASHIVAULTD_URL", "http://hashivaultd:8766"), "hashivaultd URL")
	f.StringVar(&flagAPIToken, "api-token", os.Getenv("HASHIVAULTD_API_TOKEN"), "hashivaultd API bearer token")
	f.IntVar(&flagRetries, "retries", 3, "Number of retries on failure")
	f.StringVar(&remote.secret, "secret", "", "Secret path (required)")
	f.StringVar(&remote.key, "key", "", "Key inside the secret (required)")
	f.StringVar(&remote.dest, "dest", "", "Local file to send (required)")
	f.BoolVar(&remote.update, "update", true, "Merge into the existing secret")
	f.IntVar(&remote.version, "kv-version", 0, "KV engine version, 1 or 2")
	f.StringVar(&remote.mount, "mount-point", "", "KV mount")
	f.BoolVar(&remote.cas, "cas", false, "Use check-and-set on KV v2")
	f.StringVar(&remote.encoding, "value-encoding", "", "raw or base64")
	f.BoolVar(&remote.check, "check", false, "Report what would change without writing")
	f.StringVar(&remote.authtype, "authtype", "", "Vault auth method; empty uses the gateway default")
	f.StringVar(&remote.token, "token", "", "Vault token")
	f.StringVar(&remote.username, "username", "", "Vault username")
	f.StringVar(&remote.password, "password", "", "Vault password")
	f.StringVar(&remote.roleID, "role-id", "", "AppRole role_id")
	f.StringVar(&remote.secretID, "secret-id", "", "AppRole secret_id")
	remoteCmd.MarkFlagRequired("secret")
	remoteCmd.MarkFlagRequired("key")
	remoteCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(remoteCmd)
}

func runRemote(cmd *cobra.Command, args []string) error {
	content, err := payload.ReadFile(remote.dest)
	if err != nil {
		return fmt.Errorf("read dest: %w", err)
	}

	body := map[string]any{
		"secret":  remote.secret,
		"key":     remote.key,
		"content": content,
		"update":  remote.update,
		"check":   remote.check,
	}
	optional := map[string]string{
		"value_encoding": remote.encoding,
		"mount_point":    remote.mount,
		"authtype":       remote.authtype,
		"token":          remote.token,
		"username":       remote.username,
		"password":       remote.password,
		"role_id":        remote.roleID,
		"secret_id":      remote.secretID,
	}
	for k, v := range optional {
		if v != "" {
			body[k] = v
		}
	}
	if remote.version != 0 {
		body["version"] = remote.version
	}
	if cmd.Flags().Changed("cas") {
		body["cas"] = remote.cas
	}

	var res task.Result
	var lastErr error
	for attempt := 0; attempt <= flagRetries; attempt++ {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "hashivault-write-file: retry %d/%d after error: %v\n", attempt, flagRetries, lastErr)
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}

		res, lastErr = doRemoteWrite(body)
		if lastErr == nil {
			break
		}
		var permErr *permanentError
		if errors.As(lastErr, &permErr) {
			fmt.Fprintf(os.Stderr, "hashivault-write-file: permanent error (no retry): %v\n", lastErr)
			break
		}
	}
	if lastErr != nil {
		return lastErr
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "hashivault-write-file: WARNING: %s\n", w)
	}
	fmt.Fprintln(os.Stdout, res.Msg)
	return nil
}

// permanentError wraps failures that a retry cannot fix: rejected input,
// bad credentials, a forbidden path or a CAS conflict.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func doRemoteWrite(body map[string]any) (task.Result, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return task.Result{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, flagServer+"/v1/write-file", bytes.NewReader(data))
	if err != nil {
		return task.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Triggered-By", "hashivault-write-file")
	if flagAPIToken != "" {
		req.Header.Set("Authorization", "Bearer "+flagAPIToken)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return task.Result{}, fmt.Errorf("connect to hashivaultd: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return task.Result{}, fmt.Errorf("read response: %w", err)
	}
	var res task.Result
	decodeErr := json.Unmarshal(raw, &res)

	if resp.StatusCode != http.StatusOK {
		msg := string(bytes.TrimSpace(raw))
		if decodeErr == nil && res.Msg != "" {
			msg = res.Reason + ": " + res.Msg
		}
		err := fmt.Errorf("hashivaultd returned HTTP %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return task.Result{}, &permanentError{err: err}
		}
		return task.Result{}, err
	}
	if decodeErr != nil {
		return task.Result{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	return res, nil
}
