package vault

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// NewClient builds a Vault API client for cfg with retries disabled and no
// token set. Callers attach a token from a Session before issuing requests.
func NewClient(cfg ConnectionConfig) (*api.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	// DefaultConfig also reads VAULT_* from the process environment. Every
	// setting that matters is overwritten below so config.Resolve stays the
	// only place where environment fallbacks are decided.
	c := api.DefaultConfig()
	if c.Error != nil {
		return nil, fmt.Errorf("vault client defaults: %w", c.Error)
	}
	c.Address = cfg.Address
	c.MaxRetries = 0
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}

	if err := c.ConfigureTLS(&api.TLSConfig{
		CACert:     cfg.CACert,
		CAPath:     cfg.CAPath,
		ClientCert: cfg.ClientCert,
		ClientKey:  cfg.ClientKey,
	}); err != nil {
		return nil, fmt.Errorf("configure tls: %w", err)
	}
	if transport, ok := c.HttpClient.Transport.(*http.Transport); ok && transport.TLSClientConfig != nil {
		transport.TLSClientConfig.InsecureSkipVerify = !cfg.VerifyTLS
	}
	if !cfg.VerifyTLS {
		log.Warn().
			Str("address", cfg.Address).
			Msg("TLS certificate verification is DISABLED for this vault connection; do not use outside test environments")
	}

	client, err := api.NewClient(c)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.ClearToken()
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	} else {
		client.ClearNamespace()
	}
	return client, nil
}

// NewSessionClient is NewClient with the session token attached.
func NewSessionClient(cfg ConnectionConfig, s Session) (*api.Client, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(s.Token)
	return client, nil
}

// Health queries sys/health, which needs no token. Sealed, standby and
// uninitialised servers are reported in the response, not as errors.
func Health(ctx context.Context, cfg ConnectionConfig) (*api.HealthResponse, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client.Sys().HealthWithContext(ctx)
}
