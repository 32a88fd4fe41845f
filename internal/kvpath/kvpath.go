// Package kvpath splits a secret path into its KV mount and the path inside it.
package kvpath

import (
	"fmt"
	"strings"
)

// DefaultMount is used when a secret is named without a mount, as in
// "secret: giant".
const DefaultMount = "secret"

// Ref is a parsed secret location.
type Ref struct {
	Mount string
	Path  string
	Raw   string
}

// Parse resolves secret against mount. With an explicit mount the secret is
// relative to it, and a leading "<mount>/" is stripped once. Without one the first
// path segment is the mount, or DefaultMount for a bare name.
// Format: mount/path/to/secret
func Parse(secret, mount string) (Ref, error) {
	raw := secret
	secret = strings.Trim(strings.TrimSpace(secret), "/")
	mount = strings.Trim(strings.TrimSpace(mount), "/")
	if secret == "" {
		return Ref{}, fmt.Errorf("empty secret path")
	}
	if err := checkSegments(secret); err != nil {
		return Ref{}, fmt.Errorf("invalid secret path %q: %w", raw, err)
	}

	var ref Ref
	switch {
	case mount != "":
		if strings.Contains(mount, "/") {
			if err := checkSegments(mount); err != nil {
				return Ref{}, fmt.Errorf("invalid mount point %q: %w", mount, err)
			}
		}
		// A secret equal to the mount is a path inside it: apps under apps is apps/apps.
		ref = Ref{Mount: mount, Path: strings.TrimPrefix(secret, mount+"/")}
	case strings.Contains(secret, "/"):
		m, p, _ := strings.Cut(secret, "/")
		ref = Ref{Mount: m, Path: p}
	default:
		ref = Ref{Mount: DefaultMount, Path: secret}
	}
	ref.Raw = raw
	return ref, nil
}

func checkSegments(p string) error {
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return fmt.Errorf("empty path segment")
		case ".", "..":
			return fmt.Errorf("relative segment %q", seg)
		}
	}
	return nil
}

// String returns mount/path.
func (r Ref) String() string { return r.Mount + "/" + r.Path }

// V1 is the logical path of a KV v1 secret.
func (r Ref) V1() string { return r.String() }

// V2Data is the logical path of a KV v2 secret's data endpoint.
func (r Ref) V2Data() string { return r.Mount + "/data/" + r.Path }

// Logical returns the request path for the given KV engine version.
func (r Ref) Logical(version int) string {
	if version == 2 {
		return r.V2Data()
	}
	return r.V1()
}
