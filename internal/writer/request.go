package writer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/elabx-org/hashivault/internal/payload"
)

// Encoding selects how the decoded payload is stored under the key.
type Encoding string

const (
	// EncodingRaw stores the decoded bytes as a string. They must be UTF-8.
	EncodingRaw Encoding = "raw"
	// EncodingBase64 stores the base64 text, which is safe for binary files.
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding maps a parameter value to an Encoding. Empty means raw.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingRaw:
		return EncodingRaw, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("unknown value encoding %q (want raw or base64)", s)
	}
}

// WriteRequest is one key to write. Payload holds the decoded bytes.
type WriteRequest struct {
	SecretPath string
	Key        string
	Payload    []byte
	UpdateMode bool
	Encoding   Encoding
}

// NewWriteRequest decodes content and checks it can be stored with enc.
// It makes no network calls, so a BadEncoding failure always happens before
// authentication.
func NewWriteRequest(secretPath, key, content string, update bool, enc Encoding) (WriteRequest, error) {
	if strings.TrimSpace(secretPath) == "" {
		return WriteRequest{}, fmt.Errorf("secret path is required")
	}
	if key == "" {
		return WriteRequest{}, fmt.Errorf("key is required")
	}
	if enc == "" {
		enc = EncodingRaw
	}

	b, err := payload.Decode(content)
	if err != nil {
		return WriteRequest{}, fail(ReasonBadEncoding, err, "payload for key %q is not valid base64", key)
	}
	if enc == EncodingRaw && !utf8.Valid(b) {
		return WriteRequest{}, fail(ReasonBadEncoding, nil,
			"payload for key %q is not UTF-8 text; use value_encoding=base64 for binary files", key)
	}

	return WriteRequest{
		SecretPath: secretPath,
		Key:        key,
		Payload:    b,
		UpdateMode: update,
		Encoding:   enc,
	}, nil
}

// StoredValue is the string written under Key.
func (r WriteRequest) StoredValue() string {
	if r.Encoding == EncodingBase64 {
		return payload.Encode(r.Payload)
	}
	return string(r.Payload)
}
