package writer_test

import (
	"errors"
	"testing"

	"github.com/elabx-org/hashivault/internal/writer"
)

func TestNewWriteRequest(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		enc        writer.Encoding
		wantReason writer.Reason
		wantValue  string
	}{
		{"raw text", "aGVsbG8=", writer.EncodingRaw, "", "hello"},
		{"default encoding", "aGVsbG8=", "", "", "hello"},
		{"base64 binary", "AAEC/w==", writer.EncodingBase64, "", "AAEC/w=="},
		{"malformed", "aGVsbG8", writer.EncodingRaw, writer.ReasonBadEncoding, ""},
		{"binary as raw", "AAEC/w==", writer.EncodingRaw, writer.ReasonBadEncoding, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := writer.NewWriteRequest("secret/app", "foo.dat", tt.content, true, tt.enc)
			if tt.wantReason != "" {
				var werr *writer.Error
				if !errors.As(err, &werr) || werr.Reason != tt.wantReason {
					t.Fatalf("error = %v, want reason %s", err, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWriteRequest() error = %v", err)
			}
			if got := req.StoredValue(); got != tt.wantValue {
				t.Errorf("StoredValue() = %q, want %q", got, tt.wantValue)
			}
		})
	}
}

func TestNewWriteRequestRequiresPathAndKey(t *testing.T) {
	if _, err := writer.NewWriteRequest("", "k", "aGVsbG8=", true, ""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := writer.NewWriteRequest("secret/app", "", "aGVsbG8=", true, ""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]writer.Encoding{"": writer.EncodingRaw, "RAW": writer.EncodingRaw, "base64": writer.EncodingBase64} {
		got, err := writer.ParseEncoding(in)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := writer.ParseEncoding("hex"); err == nil {
		t.Error("expected error for hex")
	}
}

func TestDocumentWithDoesNotMutate(t *testing.T) {
	orig := writer.Document{"A": "a", "B": "b"}
	next := orig.With("K", "k")
	if len(orig) != 2 {
		t.Errorf("source document modified: %v", orig)
	}
	if len(next) != 3 || next["K"] != "k" || next["A"] != "a" {
		t.Errorf("With() = %v", next)
	}
	keys := next.Keys()
	if len(keys) != 3 || keys[0] != "A" || keys[2] != "K" {
		t.Errorf("Keys() = %v", keys)
	}
}
