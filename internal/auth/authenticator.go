// Package auth turns a vault.ConnectionConfig into a short-lived Session.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/elabx-org/hashivault/internal/vault"
	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Authenticator logs in to Vault with the backend named by the config.
type Authenticator struct {
	newClient func(vault.ConnectionConfig) (*api.Client, error)
}

// New returns an Authenticator that builds clients with vault.NewClient.
func New() *Authenticator {
	return &Authenticator{newClient: vault.NewClient}
}

// Authenticate resolves cfg into a Session. The token backend makes no
// request: the supplied token is used as is and checked on first use.
func (a *Authenticator) Authenticate(ctx context.Context, cfg vault.ConnectionConfig) (vault.Session, error) {
	creds := cfg.Credentials
	mount := cfg.LoginMount()

	switch cfg.AuthType {
	case vault.AuthToken:
		if creds.Token == "" {
			return vault.Session{}, fail(ReasonInvalidCredentials, nil, "no token supplied")
		}
		return vault.Session{Token: creds.Token}, nil

	case vault.AuthUserpass, vault.AuthLDAP:
		if creds.Username == "" || creds.Password == "" {
			return vault.Session{}, fail(ReasonInvalidCredentials, nil, "%s login needs username and password", cfg.AuthType)
		}
		path := fmt.Sprintf("auth/%s/login/%s", mount, url.PathEscape(creds.Username))
		return a.login(ctx, cfg, path, map[string]any{"password": creds.Password})

	case vault.AuthGitHub:
		if creds.Token == "" {
			return vault.Session{}, fail(ReasonInvalidCredentials, nil, "github login needs a GitHub token")
		}
		return a.login(ctx, cfg, fmt.Sprintf("auth/%s/login", mount), map[string]any{"token": creds.Token})

	case vault.AuthAppRole:
		if creds.RoleID == "" {
			return vault.Session{}, fail(ReasonInvalidCredentials, nil, "approle login needs a role_id")
		}
		data := map[string]any{"role_id": creds.RoleID}
		if creds.SecretID != "" {
			data["secret_id"] = creds.SecretID
		}
		return a.login(ctx, cfg, fmt.Sprintf("auth/%s/login", mount), data)

	default:
		return vault.Session{}, fail(ReasonUnsupportedAuthType, nil, "unsupported auth type %q", cfg.AuthType)
	}
}

func (a *Authenticator) login(ctx context.Context, cfg vault.ConnectionConfig, path string, data map[string]any) (vault.Session, error) {
	client, err := a.newClient(cfg)
	if err != nil {
		return vault.Session{}, fail(ReasonUnreachable, err, "build vault client")
	}

	start := time.Now()
	log.Debug().Str("authtype", string(cfg.AuthType)).Str("mount", cfg.LoginMount()).Msg("auth: logging in")

	secret, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return vault.Session{}, classify(err, cfg.AuthType)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return vault.Session{}, fail(ReasonInvalidCredentials, nil, "%s login returned no client token", cfg.AuthType)
	}

	s := vault.Session{
		Token:         secret.Auth.ClientToken,
		LeaseDuration: time.Duration(secret.Auth.LeaseDuration) * time.Second,
		Renewable:     secret.Auth.Renewable,
		Policies:      secret.Auth.Policies,
	}
	log.Info().
		Str("authtype", string(cfg.AuthType)).
		Dur("lease", s.LeaseDuration).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("auth: session obtained")
	return s, nil
}

func classify(err error, t vault.AuthType) *Error {
	code := vault.StatusCode(err)
	switch {
	case vault.IsTimeout(err):
		return fail(ReasonTimeout, err, "%s login timed out", t)
	case code >= 400 && code < 500:
		return fail(ReasonInvalidCredentials, err, "%s login rejected (HTTP %d)", t, code)
	case code >= 500:
		return fail(ReasonUnreachable, err, "%s login failed (HTTP %d)", t, code)
	default:
		return fail(ReasonUnreachable, err, "%s login request failed", t)
	}
}
