// Package cache holds encoded archive records in memory so repeated reads of
// the same run skip the object store.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/pointlab/pointlab/internal/metrics"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrTooLarge  = errors.New("entry larger than cache budget")
)

// DefaultMaxBytes is the budget used when MemoryCacheConfig.MaxBytes is zero.
const DefaultMaxBytes = 64 << 20

type MemoryCacheConfig struct {
	// MaxBytes bounds the total size of cached data.
	MaxBytes int64
}

type memoryEntry struct {
	key        string
	data       []byte
	accessTime time.Time
	element    *list.Element
}

// MemoryCache is a byte-budgeted LRU keyed by string. Get and Put copy data,
// so callers may reuse their buffers.
type MemoryCache struct {
	mu        sync.Mutex
	maxBytes  int64
	usedBytes int64
	entries   map[string]*memoryEntry
	lru       *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

// MemoryCacheStats is a point-in-time view of cache usage.
type MemoryCacheStats struct {
	MaxBytes   int64
	UsedBytes  int64
	EntryCount int
	Hits       int64
	Misses     int64
	Evictions  int64
}

func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &MemoryCache{
		maxBytes: cfg.MaxBytes,
		entries:  make(map[string]*memoryEntry),
		lru:      list.New(),
	}
}

// Get returns a copy of the data cached under key.
func (mc *MemoryCache) Get(key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	e, ok := mc.entries[key]
	if !ok {
		mc.misses++
		metrics.ObserveRunCache(false)
		return nil, ErrCacheMiss
	}
	mc.hits++
	metrics.ObserveRunCache(true)
	e.accessTime = time.Now()
	mc.lru.MoveToFront(e.element)

	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Put stores data under key, evicting least recently used entries until it
// fits. An existing entry for key is replaced.
func (mc *MemoryCache) Put(key string, data []byte) error {
	size := int64(len(data))
	if size > mc.maxBytes {
		return ErrTooLarge
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if old, ok := mc.entries[key]; ok {
		mc.removeLocked(old)
	}
	for mc.usedBytes+size > mc.maxBytes {
		oldest := mc.lru.Back()
		if oldest == nil {
			break
		}
		mc.removeLocked(oldest.Value.(*memoryEntry))
		mc.evictions++
	}

	e := &memoryEntry{
		key:        key,
		data:       append([]byte(nil), data...),
		accessTime: time.Now(),
	}
	e.element = mc.lru.PushFront(e)
	mc.entries[key] = e
	mc.usedBytes += size
	metrics.SetRunCacheBytes(mc.usedBytes)
	return nil
}

// Delete drops key if present.
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if e, ok := mc.entries[key]; ok {
		mc.removeLocked(e)
		metrics.SetRunCacheBytes(mc.usedBytes)
	}
}

// Contains reports whether key is cached without touching its recency.
func (mc *MemoryCache) Contains(key string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	_, ok := mc.entries[key]
	return ok
}

// Clear removes every entry.
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*memoryEntry)
	mc.lru.Init()
	mc.usedBytes = 0
	metrics.SetRunCacheBytes(0)
}

func (mc *MemoryCache) Stats() MemoryCacheStats {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return MemoryCacheStats{
		MaxBytes:   mc.maxBytes,
		UsedBytes:  mc.usedBytes,
		EntryCount: len(mc.entries),
		Hits:       mc.hits,
		Misses:     mc.misses,
		Evictions:  mc.evictions,
	}
}

func (mc *MemoryCache) removeLocked(e *memoryEntry) {
	mc.lru.Remove(e.element)
	delete(mc.entries, e.key)
	mc.usedBytes -= int64(len(e.data))
}
