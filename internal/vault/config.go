// Package vault holds the connection settings, session type and client
// construction shared by the auth and writer packages.
package vault

import "time"

// AuthType names a Vault authentication backend.
type AuthType string

const (
	AuthToken    AuthType = "token"
	AuthUserpass AuthType = "userpass"
	AuthGitHub   AuthType = "github"
	AuthLDAP     AuthType = "ldap"
	AuthAppRole  AuthType = "approle"
)

// AuthTypes lists the supported backends in documentation order.
var AuthTypes = []AuthType{AuthToken, AuthUserpass, AuthGitHub, AuthLDAP, AuthAppRole}

// Supported reports whether t is one of AuthTypes.
func (t AuthType) Supported() bool {
	for _, s := range AuthTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Credentials carries the secret material for one auth type. Only the fields
// the chosen backend needs are read; for github, Token is the GitHub token.
type Credentials struct {
	Token    string
	Username string
	Password string
	RoleID   string
	SecretID string
}

// ConnectionConfig describes how to reach and log in to a Vault server.
// It is built once by config.Resolve and never mutated afterwards.
type ConnectionConfig struct {
	Address     string
	VerifyTLS   bool
	AuthType    AuthType
	Credentials Credentials
	Namespace   string

	// AuthMount overrides the mount the login backend is enabled at.
	// Empty means the backend's default path (the auth type name).
	AuthMount string

	CACert     string
	CAPath     string
	ClientCert string
	ClientKey  string

	// Timeout bounds each request; the caller's context still wins if earlier.
	Timeout time.Duration
}

// LoginMount returns the auth mount to log in against.
func (c ConnectionConfig) LoginMount() string {
	if c.AuthMount != "" {
		return c.AuthMount
	}
	return string(c.AuthType)
}

// Session is a token obtained for a single write operation. It is never
// persisted and is discarded when the operation ends.
type Session struct {
	Token         string
	LeaseDuration time.Duration // zero for non-expiring or unknown leases
	Renewable     bool
	Policies      []string
}
