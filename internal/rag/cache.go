package rag

import (
	"strings"
	"sync"
	"time"

	"github.com/mwiater/csvchat/internal/dataset"
	"github.com/mwiater/csvchat/internal/logging"
)

// Key identifies the configuration a cached index was built for.
type Key struct {
	DatasetID    string
	Columns      string
	MaxRows      int
	StemLanguage string
}

// NewKey derives the cache key for ds under sel.
func NewKey(ds *dataset.Dataset, sel Selection) Key {
	key := Key{
		Columns:      strings.Join(sel.Columns, "\x1f"),
		MaxRows:      sel.MaxRows,
		StemLanguage: sel.StemLanguage,
	}
	if ds != nil {
		key.DatasetID = ds.ID
	}
	return key
}

// Snapshot is one built configuration: the corpus and its index.
type Snapshot struct {
	Key       Key
	Corpus    []string
	Index     *Index
	BuildTime time.Duration
}

// Cache holds the index for the current configuration. Searches share a read
// lock; a rebuild takes the write lock, so it never overlaps a search.
type Cache struct {
	mu       sync.RWMutex
	snapshot *Snapshot
	builds   int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Search retrieves the top k records for query, rebuilding first when the key
// for (ds, sel) differs from the cached one.
func (c *Cache) Search(ds *dataset.Dataset, sel Selection, query string, k int) (RankedResult, error) {
	key := NewKey(ds, sel)

	c.mu.RLock()
	if c.snapshot != nil && c.snapshot.Key == key {
		defer c.mu.RUnlock()
		return Retrieve(c.snapshot.Index, query, k)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	snap, err := c.ensureLocked(ds, sel, key)
	if err != nil {
		return nil, err
	}
	return Retrieve(snap.Index, query, k)
}

// Ensure builds the index for (ds, sel) if it is not cached yet.
func (c *Cache) Ensure(ds *dataset.Dataset, sel Selection) (*Snapshot, error) {
	key := NewKey(ds, sel)

	c.mu.RLock()
	if c.snapshot != nil && c.snapshot.Key == key {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ds, sel, key)
}

func (c *Cache) ensureLocked(ds *dataset.Dataset, sel Selection, key Key) (*Snapshot, error) {
	if c.snapshot != nil && c.snapshot.Key == key {
		return c.snapshot, nil
	}

	start := time.Now()
	corpus, err := BuildCorpus(ds, sel.Columns, sel.MaxRows)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(sel.StemLanguage)
	if err != nil {
		return nil, err
	}
	index, err := BuildIndex(corpus, analyzer)
	if err != nil {
		return nil, err
	}

	c.snapshot = &Snapshot{Key: key, Corpus: corpus, Index: index, BuildTime: time.Since(start)}
	c.builds++
	logging.LogEvent("[RAG] Built index for %s: %d rows, %d terms in %s", key.DatasetID, index.Len(), index.Dim(), c.snapshot.BuildTime.Truncate(time.Microsecond))
	return c.snapshot, nil
}

// Invalidate drops the cached index so the next search rebuilds it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}

// Builds reports how many times an index has been built.
func (c *Cache) Builds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builds
}
