package locale

import (
	"errors"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ErrStaleBuild is returned when a snapshot is older than the published one.
var ErrStaleBuild = errors.New("stale locale snapshot")

// Entry is the translated value of one key and where it is defined.
type Entry struct {
	Key   string
	Value string
	// File is the absolute path of the dictionary file.
	File string
	// Offset is where the scanner match started in File.
	Offset int
	// Range spans the key token in File.
	Range protocol.Range
}

// Snapshot is the result of one build. It is never mutated after publication.
type Snapshot struct {
	Entries    map[string]Entry
	Files      map[string]struct{}
	Generation uint64
	BuiltAt    time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Entries: make(map[string]Entry),
		Files:   make(map[string]struct{}),
	}
}

func (s *Snapshot) Lookup(key string) (Entry, bool) {
	e, ok := s.Entries[key]
	return e, ok
}

func (s *Snapshot) Has(key string) bool {
	_, ok := s.Entries[key]
	return ok
}

// IsDictionaryFile reports whether path was scanned by this build.
func (s *Snapshot) IsDictionaryFile(path string) bool {
	if path == "" {
		return false
	}
	_, ok := s.Files[filepath.Clean(path)]
	return ok
}

// Keys returns all keys in lexical order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Index holds the current snapshot. Readers grab a snapshot once per query
// and keep using it; the builder swaps in a complete replacement.
type Index struct {
	current atomic.Pointer[Snapshot]
}

func NewIndex() *Index {
	idx := &Index{}
	idx.current.Store(emptySnapshot())
	return idx
}

// Snapshot returns the published snapshot.
func (i *Index) Snapshot() *Snapshot {
	return i.current.Load()
}

func (i *Index) Lookup(key string) (Entry, bool) {
	return i.Snapshot().Lookup(key)
}

func (i *Index) Has(key string) bool {
	return i.Snapshot().Has(key)
}

func (i *Index) IsDictionaryFile(path string) bool {
	return i.Snapshot().IsDictionaryFile(path)
}

// Replace publishes next unless a snapshot with the same or a newer
// generation is already visible.
func (i *Index) Replace(next *Snapshot) error {
	for {
		cur := i.current.Load()
		if next.Generation <= cur.Generation {
			return ErrStaleBuild
		}
		if i.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}
