package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Env looks up an environment variable.
type Env func(key string) (string, bool)

// OSEnv reads the process environment.
func OSEnv() Env { return os.LookupEnv }

// MapEnv serves lookups from m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// EnvFromFile layers the variables of a dotenv file over base. The process
// environment is never modified.
func EnvFromFile(path string, base Env) (Env, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := vars[key]; ok {
			return v, true
		}
		return base(key)
	}, nil
}

func (e Env) get(keys ...string) string {
	if e == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := e(k); ok && v != "" {
			return v
		}
	}
	return ""
}

// credentialVars are hidden by WithoutCredentials.
var credentialVars = map[string]bool{
	"VAULT_TOKEN":        true,
	"VAULT_GITHUB_TOKEN": true,
	"VAULT_USER":         true,
	"VAULT_PASSWORD":     true,
	"VAULT_ROLE_ID":      true,
	"VAULT_SECRET_ID":    true,
	"HOME":               true, // ~/.vault-token
}

// WithoutCredentials hides the credential variables of base, so callers of
// a shared service must bring their own credentials.
func WithoutCredentials(base Env) Env {
	return func(key string) (string, bool) {
		if credentialVars[key] {
			return "", false
		}
		return base(key)
	}
}
