// Package priceindex implements the bounded-memory LRU cache mapping token
// mint to the latest validated price observation.
package priceindex

import (
	"container/list"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/sirupsen/logrus"
)

// Per-entry byte footprint estimate. An Observation carries four strings, a
// float64, two int64s and bookkeeping; 160 bytes covers the struct plus its
// string headers, 48 bytes covers the Go map's bucket overhead per key, and
// 32 bytes covers the list.Element pointer/key reference kept alongside it.
// These are stable upper bounds for this struct's layout, not a runtime
// measurement, per the instruction never to rely on memory introspection.
const (
	bytesPerEntry    = 160
	mapOverhead      = 48
	keyRefOverhead   = 32
	defaultCleanup   = 0.85
	defaultEvictDown = 0.70
)

// Config controls the ceiling and eviction thresholds.
type Config struct {
	CeilingBytes     int64
	CleanupThreshold float64 // fraction of ceiling that triggers eviction
	EvictToFraction  float64 // fraction of ceiling eviction stops at
	Logger           *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = defaultCleanup
	}
	if c.EvictToFraction <= 0 {
		c.EvictToFraction = defaultEvictDown
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return c
}

type entry struct {
	obs models.Observation
}

// Index is a hash-map-plus-intrusive-doubly-linked-list LRU: put/get are
// O(1) and eviction sweeps from the tail (least recently used).
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	items  map[string]*list.Element // mint -> element, element.Value is *entry
	order  *list.List               // front = most recently used, back = least
	logger *logrus.Logger
}

// Stats reports the current usage of the index.
type Stats struct {
	Entries       int
	UsageBytes    int64
	CeilingBytes  int64
	UsagePercent  float64
	OldestStoredAt int64
	NewestStoredAt int64
}

// New creates an empty Index.
func New(cfg Config) *Index {
	cfg = cfg.withDefaults()
	return &Index{
		cfg:    cfg,
		items:  make(map[string]*list.Element),
		order:  list.New(),
		logger: cfg.Logger,
	}
}

func nowMillis() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// Put inserts or overwrites the observation for its mint, promoting it to
// most-recently-used, then evicts from the tail if the estimated footprint
// exceeds ceiling*cleanupThreshold, stopping once it reaches
// ceiling*evictToFraction.
func (idx *Index) Put(obs models.Observation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := nowMillis()
	obs.StoredAt = now
	obs.LastAccess = now

	if el, ok := idx.items[obs.Mint]; ok {
		el.Value = &entry{obs: obs}
		idx.order.MoveToFront(el)
	} else {
		el := idx.order.PushFront(&entry{obs: obs})
		idx.items[obs.Mint] = el
	}

	idx.evictIfNeeded()
}

func (idx *Index) footprintBytes() int64 {
	n := int64(idx.order.Len())
	return n*bytesPerEntry + n*mapOverhead + n*keyRefOverhead
}

// evictIfNeeded must be called with idx.mu held for writing.
func (idx *Index) evictIfNeeded() {
	if idx.cfg.CeilingBytes <= 0 {
		return
	}
	cleanupAt := int64(float64(idx.cfg.CeilingBytes) * idx.cfg.CleanupThreshold)
	if idx.footprintBytes() <= cleanupAt {
		return
	}
	evictTo := int64(float64(idx.cfg.CeilingBytes) * idx.cfg.EvictToFraction)
	evicted := 0
	for idx.footprintBytes() > evictTo {
		back := idx.order.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry)
		delete(idx.items, e.obs.Mint)
		idx.order.Remove(back)
		evicted++
	}
	if evicted > 0 {
		idx.logger.WithFields(logrus.Fields{
			"evicted":  evicted,
			"entries":  idx.order.Len(),
			"ceiling":  idx.cfg.CeilingBytes,
			"usage":    idx.footprintBytes(),
		}).Debug("priceindex: evicted least-recently-used entries")
	}
}

// Get returns the current observation and promotes the entry to
// most-recently-used. The second return value is false if the mint is
// absent.
func (idx *Index) Get(mint string) (models.Observation, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	el, ok := idx.items[mint]
	if !ok {
		return models.Observation{}, false
	}
	e := el.Value.(*entry)
	e.obs.LastAccess = nowMillis()
	idx.order.MoveToFront(el)
	return e.obs, true
}

// GetAll returns a snapshot of every entry without changing access order.
func (idx *Index) GetAll() []models.Observation {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]models.Observation, 0, idx.order.Len())
	for el := idx.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).obs)
	}
	return out
}

// Remove deletes the entry for mint, if present.
func (idx *Index) Remove(mint string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if el, ok := idx.items[mint]; ok {
		idx.order.Remove(el)
		delete(idx.items, mint)
	}
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.items = make(map[string]*list.Element)
	idx.order.Init()
}

// Stats reports current usage.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{
		Entries:      idx.order.Len(),
		UsageBytes:   idx.footprintBytes(),
		CeilingBytes: idx.cfg.CeilingBytes,
	}
	if idx.cfg.CeilingBytes > 0 {
		s.UsagePercent = float64(s.UsageBytes) / float64(idx.cfg.CeilingBytes) * 100
	}
	if s.Entries == 0 {
		return s
	}
	oldest, newest := int64(0), int64(0)
	for el := idx.order.Front(); el != nil; el = el.Next() {
		st := el.Value.(*entry).obs.StoredAt
		if oldest == 0 || st < oldest {
			oldest = st
		}
		if st > newest {
			newest = st
		}
	}
	s.OldestStoredAt = oldest
	s.NewestStoredAt = newest
	return s
}
