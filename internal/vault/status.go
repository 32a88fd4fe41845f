package vault

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/hashicorp/vault/api"
)

// StatusCode returns the HTTP status carried by a Vault response error,
// or 0 when err did not come from a Vault response.
func StatusCode(err error) int {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// Messages returns the error strings Vault put in its response body.
func Messages(err error) []string {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.Errors
	}
	return nil
}

// HasMessage reports whether any Vault error message contains substr.
func HasMessage(err error, substr string) bool {
	for _, m := range Messages(err) {
		if strings.Contains(strings.ToLower(m), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry, from either the
// caller's context or the client's own request timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUnreachable reports whether err is a transport failure (DNS, connect,
// TLS handshake or certificate validation) rather than a Vault response.
func IsUnreachable(err error) bool {
	if StatusCode(err) != 0 {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
