package locale

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shinyvision/i18nlens/internal/scanner"
	"github.com/shinyvision/i18nlens/internal/textpos"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// Builder scans the dictionary files matched by a list of workspace-relative
// globs and publishes the result into an Index.
type Builder struct {
	root    string
	globs   []string
	index   *Index
	cache   *ScanCache
	workers int

	mu         sync.Mutex
	generation atomic.Uint64
}

func NewBuilder(root string, globs []string, index *Index) *Builder {
	return &Builder{
		root:    root,
		globs:   append([]string(nil), globs...),
		index:   index,
		workers: defaultWorkers,
	}
}

// SetCache enables reuse of unchanged file scans across builds.
func (b *Builder) SetCache(c *ScanCache) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = c
}

// Index returns the index the builder publishes into.
func (b *Builder) Index() *Index {
	return b.index
}

// Build runs one scan pass and publishes it. Builds are serialized. When a
// build requested later has already been published, the result is dropped
// and ErrStaleBuild is returned. If the files cannot be enumerated, the
// previous snapshot stays in place.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	logger := commonlog.GetLoggerf("i18nlens.locale")
	gen := b.generation.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	started := time.Now()
	files, err := b.resolve()
	if err != nil {
		logger.Warningf("could not resolve locale files: %v", err)
		return nil, err
	}

	scans := make([][]Entry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scans[i] = b.scanFile(file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("locale build %d: %w", gen, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("locale build %d: %w", gen, err)
	}

	snap := &Snapshot{
		Entries:    make(map[string]Entry),
		Files:      make(map[string]struct{}, len(files)),
		Generation: gen,
		BuiltAt:    time.Now(),
	}
	for i, file := range files {
		snap.Files[file] = struct{}{}
		for _, e := range scans[i] {
			snap.Entries[e.Key] = e
		}
	}

	if err := b.index.Replace(snap); err != nil {
		if errors.Is(err, ErrStaleBuild) {
			logger.Debugf("dropping build %d, a newer one is already published", gen)
		}
		return nil, err
	}

	logger.Infof("indexed %d locale keys from %d files in %s", len(snap.Entries), len(snap.Files), time.Since(started))
	return snap, nil
}

// Files resolves the globs to absolute, de-duplicated paths. Files keep the
// order of the glob that matched them first; each glob's matches are sorted.
func (b *Builder) Files() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolve()
}

func (b *Builder) resolve() ([]string, error) {
	info, err := os.Stat(b.root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", b.root)
	}

	fsys := os.DirFS(b.root)
	seen := make(map[string]struct{})
	var files []string
	for _, glob := range b.globs {
		pattern := strings.TrimPrefix(filepath.ToSlash(glob), "./")
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", glob, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			abs := filepath.Join(b.root, filepath.FromSlash(m))
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			files = append(files, abs)
		}
	}
	return files, nil
}

// Matches reports whether the absolute path is covered by one of the globs.
func (b *Builder) Matches(path string) bool {
	rel, err := filepath.Rel(b.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, glob := range b.globs {
		if ok, _ := doublestar.Match(strings.TrimPrefix(filepath.ToSlash(glob), "./"), rel); ok {
			return true
		}
	}
	return false
}

func (b *Builder) scanFile(path string) []Entry {
	logger := commonlog.GetLoggerf("i18nlens.locale")

	scannedAt := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		logger.Debugf("skipping locale file '%s': %v", path, err)
		return nil
	}
	if entries, ok := b.cache.Get(path, info); ok {
		return entries
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debugf("skipping locale file '%s': %v", path, err)
		return nil
	}

	entries := ScanText(path, string(data))
	logger.Debugf("scanned %d locale keys from %s", len(entries), path)
	b.cache.Set(path, info, scannedAt, entries)
	return entries
}

// ScanText turns the raw scanner output of one file into index entries.
func ScanText(path, text string) []Entry {
	raw := scanner.ScanEntries(text)
	if len(raw) == 0 {
		return nil
	}
	lines := textpos.NewLines(text)
	entries := make([]Entry, len(raw))
	for i, r := range raw {
		entries[i] = Entry{
			Key:    r.Key,
			Value:  r.Value,
			File:   path,
			Offset: r.Offset,
			Range:  lines.Range(r.KeyOffset, r.KeyOffset+len(r.Key)),
		}
	}
	return entries
}
