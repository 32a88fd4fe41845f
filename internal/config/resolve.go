package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elabx-org/hashivault/internal/kvpath"
	"github.com/elabx-org/hashivault/internal/vault"
	"github.com/elabx-org/hashivault/internal/writer"
)

// DefaultTimeout bounds a whole write operation when no timeout is given.
const DefaultTimeout = 30 * time.Second

// Settings are fully resolved parameters for one write operation.
type Settings struct {
	Conn       vault.ConnectionConfig
	SecretPath string
	Key        string
	Dest       string
	Update     bool
	Encoding   writer.Encoding
	Writer     writer.Options
	Timeout    time.Duration
	CheckMode  bool
}

// Pick returns explicit when set, else the first non-empty environment
// variable among keys, else def.
func Pick(explicit string, env Env, def string, keys ...string) string {
	if explicit != "" {
		return explicit
	}
	if v := env.get(keys...); v != "" {
		return v
	}
	return def
}

// PickBool is Pick for booleans. An unparsable environment value is ignored.
func PickBool(explicit Bool, env Env, def bool, keys ...string) bool {
	if explicit.Set {
		return explicit.Value
	}
	if v := env.get(keys...); v != "" {
		if b, err := ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// ResolveConnection applies environment fallbacks and defaults to the
// connection and credential parameters of p.
func ResolveConnection(p Params, env Env) vault.ConnectionConfig {
	authType := vault.AuthType(strings.ToLower(Pick(p.AuthType, env, string(vault.AuthToken), "VAULT_AUTHTYPE")))

	// VAULT_SKIP_VERIFY inverts: set and true means do not verify.
	verify := true
	if p.Verify.Set {
		verify = p.Verify.Value
	} else if v := env.get("VAULT_SKIP_VERIFY"); v != "" {
		if skip, err := ParseBool(v); err == nil {
			verify = !skip
		}
	}

	creds := vault.Credentials{
		Username: Pick(p.Username, env, "", "VAULT_USER"),
		Password: Pick(p.Password, env, "", "VAULT_PASSWORD"),
		RoleID:   Pick(p.RoleID, env, "", "VAULT_ROLE_ID"),
		SecretID: Pick(p.SecretID, env, "", "VAULT_SECRET_ID"),
	}
	switch authType {
	case vault.AuthToken:
		creds.Token = Pick(p.Token, env, "", "VAULT_TOKEN")
		if creds.Token == "" {
			creds.Token = tokenFile(env)
		}
	case vault.AuthGitHub:
		creds.Token = Pick(p.Token, env, "", "VAULT_GITHUB_TOKEN", "VAULT_TOKEN")
	}

	return vault.ConnectionConfig{
		Address:     Pick(p.URL, env, "", "VAULT_ADDR"),
		VerifyTLS:   verify,
		AuthType:    authType,
		Credentials: creds,
		Namespace:   Pick(p.Namespace, env, "", "VAULT_NAMESPACE"),
		AuthMount:   strings.Trim(p.LoginMountPoint, "/"),
		CACert:      Pick(p.CACert, env, "", "VAULT_CACERT"),
		CAPath:      Pick(p.CAPath, env, "", "VAULT_CAPATH"),
		ClientCert:  Pick(p.ClientCert, env, "", "VAULT_CLIENT_CERT"),
		ClientKey:   Pick(p.ClientKey, env, "", "VAULT_CLIENT_KEY"),
	}
}

// Resolve applies environment fallbacks and defaults to p. Precedence is
// explicit parameter, then environment, then default; callers fold a config
// file into p beforehand with Params.Override.
func Resolve(p Params, env Env) (Settings, error) {
	s := Settings{
		Conn:       ResolveConnection(p, env),
		SecretPath: strings.TrimSpace(p.Secret),
		Key:        p.Key,
		Dest:       p.DestPath(),
		Update:     p.Update.Or(true),
		CheckMode:  p.CheckMode,
		Writer: writer.Options{
			KVVersion:   int(p.Version),
			Mount:       strings.Trim(p.MountPoint, "/"),
			CheckAndSet: p.CAS.Or(false),
			CheckMode:   p.CheckMode,
		},
	}

	if s.Conn.Address == "" {
		return Settings{}, invalid("url", "required (or set VAULT_ADDR)")
	}
	if s.SecretPath == "" {
		return Settings{}, invalid("secret", "required")
	}
	if s.Key == "" {
		return Settings{}, invalid("key", "required")
	}
	if _, err := kvpath.Parse(s.SecretPath, s.Writer.Mount); err != nil {
		return Settings{}, invalid("secret", "%v", err)
	}
	if err := s.Writer.Validate(); err != nil {
		return Settings{}, invalid("version", "%v", err)
	}

	enc, err := writer.ParseEncoding(p.ValueEncoding)
	if err != nil {
		return Settings{}, invalid("value_encoding", "%v", err)
	}
	s.Encoding = enc

	s.Timeout, err = parseTimeout(p.Timeout)
	if err != nil {
		return Settings{}, invalid("timeout", "%v", err)
	}
	s.Conn.Timeout = s.Timeout
	return s, nil
}

// parseTimeout accepts a Go duration ("45s") or a number of seconds ("45").
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeout, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// tokenFile reads ~/.vault-token, where the vault CLI stores its token.
func tokenFile(env Env) string {
	home := env.get("HOME")
	if home == "" {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(home, ".vault-token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
