package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elabx-org/hashivault/internal/kvpath"
	"github.com/hashicorp/vault/api"
)

// Snapshot is a secret as read before a write.
type Snapshot struct {
	Data    Document
	Version int  // KV v2 version, 0 on KV v1 or when the secret never existed
	Exists  bool // false on 404 and for soft-deleted KV v2 secrets
}

// Store reads and writes whole secret documents.
type Store interface {
	Read(ctx context.Context, ref kvpath.Ref) (Snapshot, error)
	// Write replaces the document at ref. A non-nil cas makes the write
	// conditional on the current version. It returns the new version.
	Write(ctx context.Context, ref kvpath.Ref, doc Document, cas *int) (int, error)
}

// KVStore talks to a KV v1 or v2 secrets engine.
type KVStore struct {
	logical *api.Logical
	version int
}

// NewKVStore returns a Store for the KV engine version (1 or 2) using client.
func NewKVStore(client *api.Client, version int) *KVStore {
	return &KVStore{logical: client.Logical(), version: version}
}

func (s *KVStore) Read(ctx context.Context, ref kvpath.Ref) (Snapshot, error) {
	secret, err := s.logical.ReadWithContext(ctx, ref.Logical(s.version))
	if err != nil {
		return Snapshot{}, err
	}
	if secret == nil || secret.Data == nil {
		return Snapshot{Data: Document{}}, nil
	}
	if s.version != 2 {
		return Snapshot{Data: Document(secret.Data), Exists: true}, nil
	}

	snap := Snapshot{Data: Document{}}
	if meta, ok := secret.Data["metadata"].(map[string]any); ok {
		snap.Version = toInt(meta["version"])
	}
	// A soft-deleted or destroyed version comes back with metadata and null data.
	if data, ok := secret.Data["data"].(map[string]any); ok {
		snap.Data = Document(data)
		snap.Exists = true
	}
	return snap, nil
}

func (s *KVStore) Write(ctx context.Context, ref kvpath.Ref, doc Document, cas *int) (int, error) {
	body := map[string]any(doc)
	if s.version == 2 {
		body = map[string]any{"data": map[string]any(doc)}
		if cas != nil {
			body["options"] = map[string]any{"cas": *cas}
		}
	} else if cas != nil {
		return 0, fmt.Errorf("check-and-set requires a KV v2 mount")
	}

	secret, err := s.logical.WriteWithContext(ctx, ref.Logical(s.version), body)
	if err != nil {
		return 0, err
	}
	if s.version != 2 || secret == nil {
		return 0, nil
	}
	return toInt(secret.Data["version"]), nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
