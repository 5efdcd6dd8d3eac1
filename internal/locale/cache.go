package locale

import (
	"io/fs"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// racyWindow is how close to the scan a modification time may be before the
// scan stops vouching for the content. Filesystems with coarse timestamps can
// hide a same-size rewrite inside one tick.
const racyWindow = 2 * time.Second

type cachedScan struct {
	size      int64
	modTime   time.Time
	scannedAt time.Time
	entries   []Entry
}

// ScanCache remembers the entries of dictionary files that did not change
// between builds. A nil *ScanCache is a valid, disabled cache.
type ScanCache struct {
	c *ristretto.Cache[string, cachedScan]
}

// NewScanCache creates a cache bounded by the total size, in bytes, of the
// files it remembers.
func NewScanCache(maxCostBytes int64) (*ScanCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, cachedScan]{
		NumCounters: max(maxCostBytes/1024*10, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ScanCache{c: c}, nil
}

// Get returns the cached entries for path if info still matches the scanned
// file and the file was already settled when it was scanned.
func (c *ScanCache) Get(path string, info fs.FileInfo) ([]Entry, bool) {
	if c == nil || info == nil {
		return nil, false
	}
	v, ok := c.c.Get(path)
	if !ok || v.size != info.Size() || !v.modTime.Equal(info.ModTime()) {
		return nil, false
	}
	if !v.modTime.Before(v.scannedAt.Add(-racyWindow)) {
		return nil, false
	}
	return v.entries, true
}

// Set remembers the entries of path. scannedAt is when reading started.
func (c *ScanCache) Set(path string, info fs.FileInfo, scannedAt time.Time, entries []Entry) {
	if c == nil || info == nil {
		return
	}
	c.c.Set(path, cachedScan{
		size:      info.Size(),
		modTime:   info.ModTime(),
		scannedAt: scannedAt,
		entries:   entries,
	}, max(info.Size(), 1))
}

// Wait blocks until pending writes are visible to Get.
func (c *ScanCache) Wait() {
	if c != nil {
		c.c.Wait()
	}
}

func (c *ScanCache) Close() {
	if c != nil {
		c.c.Close()
	}
}
