// Package cache memoizes notebook conversions in a pebble key-value store.
//
// An entry holds the produced files' contents, not just their paths, so a
// hit can restore artifacts that were deleted from the output tree since
// the entry was written. Only successful conversions are stored.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// Sentinel errors for cache operations.
var (
	ErrOpen    = errors.New("cannot open cache")
	ErrClosed  = errors.New("cache is closed")
	ErrCorrupt = errors.New("corrupt cache entry")
)

// entryPrefix namespaces conversion entries; entryEnd is its exclusive bound.
var (
	entryPrefix = []byte("nb/")
	entryEnd    = []byte("nb0")
)

// Entry is a cached conversion result.
type Entry struct {
	Artifact          string    `json:"artifact"`
	Intermediate      string    `json:"intermediate,omitempty"`
	ArtifactBytes     []byte    `json:"artifact_bytes"`
	IntermediateBytes []byte    `json:"intermediate_bytes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ToolVersion       string    `json:"tool_version,omitempty"`
}

// Restore writes the entry's files back to disk where they are missing or
// differ from the cached content. Returns the number of files written.
func (e *Entry) Restore() (int, error) {
	files := []struct {
		path string
		data []byte
	}{
		{e.Artifact, e.ArtifactBytes},
		{e.Intermediate, e.IntermediateBytes},
	}

	written := 0
	for _, f := range files {
		if f.path == "" {
			continue
		}
		current, err := os.ReadFile(f.path) // #nosec G304 -- path recorded by this process
		if err == nil && bytes.Equal(current, f.data) {
			continue
		}
		if err := fileutil.WriteFileAtomic(f.path, f.data, fileutil.FilePermissions); err != nil {
			return written, fmt.Errorf("restoring %s: %w", f.path, err)
		}
		written++
	}
	return written, nil
}

// NewKey hashes parts into a hex key. Parts are length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func NewKey(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- notebook path produced by the pipeline
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stats describes the store content.
type Stats struct {
	Dir     string
	Entries int
	Bytes   int64
}

// Store is a pebble-backed conversion cache. A pebble DB is safe for
// concurrent use, so one Store serves every worker of a build.
type Store struct {
	dir string
	db  *pebble.DB
}

// Open opens or creates the store in dir. A second process opening the same
// directory fails because pebble holds a lock file.
func Open(dir string) (*Store, error) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, dir, err)
	}
	return &Store{dir: dir, db: db}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

func entryKey(key string) []byte {
	return append(append([]byte{}, entryPrefix...), key...)
}

// Get returns the entry stored under key. ok is false on a miss.
func (s *Store) Get(key string) (entry *Entry, ok bool, err error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}
	val, closer, err := s.db.Get(entryKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &e, true, nil
}

// Put stores entry under key, synced to disk.
func (s *Store) Put(key string, entry *Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := s.db.Set(entryKey(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Delete removes the entry under key, if any.
func (s *Store) Delete(key string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Delete(entryKey(key), pebble.Sync)
}

// Stats counts entries and their encoded size.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Dir: s.dir}
	if s.db == nil {
		return st, ErrClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: entryPrefix, UpperBound: entryEnd})
	if err != nil {
		return st, fmt.Errorf("iterating cache: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		st.Entries++
		st.Bytes += int64(len(iter.Key()) + len(iter.Value()))
	}
	if err := iter.Close(); err != nil {
		return st, fmt.Errorf("iterating cache: %w", err)
	}
	return st, nil
}

// Clear removes every entry and compacts the freed range.
func (s *Store) Clear() error {
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.DeleteRange(entryPrefix, entryEnd, pebble.Sync); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	if err := s.db.Compact(entryPrefix, entryEnd, true); err != nil {
		return fmt.Errorf("compacting cache: %w", err)
	}
	return nil
}

// Close releases the store. Further calls return ErrClosed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
