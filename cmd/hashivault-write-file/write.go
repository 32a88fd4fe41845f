package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/elabx-org/hashivault/internal/audit"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/task"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagEnvFile  string
	flagAuditLog string
	params       config.Params
	flagVerify   bool
	flagUpdate   bool
	flagCAS      bool
)

func init() {
	addWriteFlags(rootCmd)
}

// addWriteFlags registers the direct-write flags on cmd, resetting their
// variables to the flag defaults.
func addWriteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&params.URL, "url", "", "Vault address (env VAULT_ADDR)")
	f.BoolVar(&flagVerify, "verify", true, "Verify the Vault TLS certificate (env VAULT_SKIP_VERIFY inverts)")
	f.StringVar(&params.AuthType, "authtype", "", "token, userpass, ldap, github or approle (env VAULT_AUTHTYPE, default token)")
	f.StringVar(&params.Token, "token", "", "Vault token, or GitHub token for authtype github (env VAULT_TOKEN, then ~/.vault-token)")
	f.StringVar(&params.Username, "username", "", "Login username (env VAULT_USER)")
	f.StringVar(&params.Password, "password", "", "Login password (env VAULT_PASSWORD)")
	f.StringVar(&params.RoleID, "role-id", "", "AppRole role_id (env VAULT_ROLE_ID)")
	f.StringVar(&params.SecretID, "secret-id", "", "AppRole secret_id (env VAULT_SECRET_ID)")
	f.StringVar(&params.Namespace, "namespace", "", "Vault Enterprise namespace (env VAULT_NAMESPACE)")
	f.StringVar(&params.LoginMountPoint, "login-mount-point", "", "Auth method mount (default: the authtype)")
	f.StringVar(&params.CACert, "ca-cert", "", "CA certificate file (env VAULT_CACERT)")
	f.StringVar(&params.CAPath, "ca-path", "", "Directory of CA certificates (env VAULT_CAPATH)")
	f.StringVar(&params.ClientCert, "client-cert", "", "Client certificate file (env VAULT_CLIENT_CERT)")
	f.StringVar(&params.ClientKey, "client-key", "", "Client key file (env VAULT_CLIENT_KEY)")

	f.StringVar(&params.Secret, "secret", "", "Secret path, e.g. secret/app")
	f.StringVar(&params.Key, "key", "", "Key inside the secret")
	f.StringVar(&params.Dest, "dest", "", "File to store")
	f.BoolVar(&flagUpdate, "update", true, "Merge into the existing secret instead of replacing it")
	f.IntVar((*int)(&params.Version), "kv-version", 0, "KV engine version, 1 or 2 (default 1)")
	f.StringVar(&params.MountPoint, "mount-point", "", "KV mount (default: first segment of --secret)")
	f.BoolVar(&flagCAS, "cas", false, "Use check-and-set on KV v2")
	f.StringVar(&params.ValueEncoding, "value-encoding", "", "Stored form of the file: raw or base64 (default raw)")
	f.StringVar(&params.Timeout, "timeout", "", "Overall timeout, seconds or a duration (default 30s)")
	f.BoolVar(&params.CheckMode, "check", false, "Report what would change without writing")

	f.StringVar(&flagConfig, "config", envOrDefault("HASHIVAULT_CONFIG", ""), "YAML file of parameters; flags take precedence")
	f.StringVar(&flagEnvFile, "env-file", "", ".env file layered over the process environment")
	f.StringVar(&flagAuditLog, "audit-log", envOrDefault("HASHIVAULT_AUDIT_LOG", ""), "Append a JSONL audit entry to this file")
}

func runWrite(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return runModule(contextOf(cmd), args[0], cmd.OutOrStdout())
	}

	p, err := explicitParams(cmd)
	if err != nil {
		return err
	}
	runner, closeFn, err := newRunner()
	if err != nil {
		return err
	}
	defer closeFn()

	res := runner.Run(contextOf(cmd), task.Input{Params: p, TriggeredBy: "cli"})
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "hashivault-write-file: WARNING: %s\n", w)
	}
	if res.Failed {
		return fmt.Errorf("%s: %s", res.Reason, res.Msg)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Msg)
	return nil
}

// runModule is the Ansible binary-module entry point. The result always goes
// to w as JSON and the process exits 0; failure is reported in the JSON. An
// action plugin may pass the file inline as base64 content instead of dest.
func runModule(ctx context.Context, argsFile string, w io.Writer) error {
	out := json.NewEncoder(w)

	p, err := config.LoadArgsFile(argsFile)
	if err != nil {
		return out.Encode(task.Result{Failed: true, RC: 1, Reason: task.ReasonInvalidParameter, Msg: err.Error()})
	}
	runner, closeFn, err := newRunner()
	if err != nil {
		return out.Encode(task.Result{Failed: true, RC: 1, Reason: task.ReasonInvalidParameter, Msg: err.Error()})
	}
	defer closeFn()

	return out.Encode(runner.Run(ctx, task.Input{Params: p, Content: p.Content, TriggeredBy: "ansible"}))
}

// explicitParams merges the --config file under the flags the user actually set.
func explicitParams(cmd *cobra.Command) (config.Params, error) {
	fs := cmd.Flags()
	p := params
	if fs.Changed("verify") {
		p.Verify = config.NewBool(flagVerify)
	}
	if fs.Changed("update") {
		p.Update = config.NewBool(flagUpdate)
	}
	if fs.Changed("cas") {
		p.CAS = config.NewBool(flagCAS)
	}
	if flagConfig == "" {
		return p, nil
	}
	base, err := config.LoadParams(flagConfig)
	if err != nil {
		return config.Params{}, err
	}
	return base.Override(p), nil
}

func newRunner() (*task.Runner, func(), error) {
	runner := task.NewRunner()
	if flagEnvFile != "" {
		env, err := config.EnvFromFile(flagEnvFile, runner.Env)
		if err != nil {
			return nil, nil, fmt.Errorf("env file: %w", err)
		}
		runner.Env = env
	}
	if flagAuditLog == "" {
		return runner, func() {}, nil
	}
	logger, err := audit.New(flagAuditLog)
	if err != nil {
		return nil, nil, fmt.Errorf("audit log: %w", err)
	}
	runner.Audit = logger
	return runner, func() { _ = logger.Close() }, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
