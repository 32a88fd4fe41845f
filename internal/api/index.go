package api

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var indexBucket = []byte("inventory")

// PathInfo records what this gateway has written to one secret path.
// Values are never stored.
type PathInfo struct {
	Keys        []string  `json:"keys"`
	Writes      int       `json:"writes"`
	Version     int       `json:"version,omitempty"`
	LastKey     string    `json:"last_key"`
	LastWritten time.Time `json:"last_written"`
}

// Index maps secret paths to the keys written through the gateway.
// When a bbolt DB is provided via SetDB, entries survive restarts.
type Index struct {
	mu    sync.RWMutex
	paths map[string]*PathInfo
	db    *bolt.DB
}

func NewIndex() *Index {
	return &Index{paths: make(map[string]*PathInfo)}
}

// SetDB wires a bbolt database for persistence. It creates the bucket if
// needed and loads previously persisted entries into memory. Call once at startup.
func (idx *Index) SetDB(db *bolt.DB) {
	if db == nil {
		return
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		log.Error().Err(err).Msg("index: failed to create bucket")
		return
	}

	var loaded int
	if err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var info PathInfo
			if err := json.Unmarshal(v, &info); err != nil {
				log.Warn().Str("path", string(k)).Err(err).Msg("index: skipping corrupt entry")
				return nil
			}
			idx.mu.Lock()
			idx.paths[string(k)] = &info
			idx.mu.Unlock()
			loaded++
			return nil
		})
	}); err != nil {
		log.Error().Err(err).Msg("index: failed to load persisted entries")
		return
	}

	idx.mu.Lock()
	idx.db = db
	idx.mu.Unlock()
	log.Info().Int("paths", loaded).Msg("index: loaded from persistent store")
}

// All returns a copy of the index.
func (idx *Index) All() map[string]PathInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	result := make(map[string]PathInfo, len(idx.paths))
	for k, v := range idx.paths {
		info := *v
		info.Keys = append([]string(nil), v.Keys...)
		result[k] = info
	}
	return result
}

// Record notes a write of key to path. The bbolt write happens under the
// index lock so concurrent records of one path persist in order.
func (idx *Index) Record(path, key string, version int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	info, ok := idx.paths[path]
	if !ok {
		info = &PathInfo{}
		idx.paths[path] = info
	}
	if i := sort.SearchStrings(info.Keys, key); i == len(info.Keys) || info.Keys[i] != key {
		info.Keys = append(info.Keys, key)
		sort.Strings(info.Keys)
	}
	info.Writes++
	info.LastKey = key
	info.LastWritten = time.Now().UTC()
	if version > 0 {
		info.Version = version
	}

	idx.persist(path, info)
}

// Delete removes a path from the index, persisting the removal to bbolt if available.
func (idx *Index) Delete(path string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.paths[path]; !ok {
		return false
	}
	delete(idx.paths, path)

	if idx.db == nil {
		return true
	}
	if err := idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(path))
	}); err != nil {
		log.Error().Err(err).Str("path", path).Msg("index: failed to delete")
	}
	return true
}

// persist writes info to bbolt. Callers hold idx.mu.
func (idx *Index) persist(path string, info *PathInfo) {
	db := idx.db
	if db == nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("index: failed to marshal for persistence")
		return
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		if b == nil {
			return nil
		}
		return b.Put([]byte(path), data)
	}); err != nil {
		log.Error().Err(err).Str("path", path).Msg("index: failed to persist")
	}
}
