// Package payload reads local files and converts them to and from the base64
// form used to carry file content between the caller and the writer.
package payload

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// MaxFileSize bounds files read by ReadFile. Vault's default request size
// limit is 32 MiB; a base64 body larger than that is rejected anyway.
const MaxFileSize = 24 << 20

// Encode returns the standard, padded base64 form of b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode parses standard base64. Whitespace and line breaks, as produced by
// `base64` and most PEM tooling, are ignored.
func Decode(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}

// ReadFile reads path and returns its content base64 encoded.
func ReadFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), MaxFileSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Encode(b), nil
}
