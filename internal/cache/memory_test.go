package cache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewMemoryCache(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 1024 * 1024})

	stats := mc.Stats()
	if stats.MaxBytes != 1024*1024 {
		t.Errorf("expected MaxBytes=1048576, got %d", stats.MaxBytes)
	}
	if stats.UsedBytes != 0 {
		t.Errorf("expected UsedBytes=0, got %d", stats.UsedBytes)
	}

	if got := NewMemoryCache(MemoryCacheConfig{}).Stats().MaxBytes; got != DefaultMaxBytes {
		t.Errorf("expected default budget %d, got %d", DefaultMaxBytes, got)
	}
}

func TestMemoryCache_PutGet(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 1024})

	data := []byte("test data")
	if err := mc.Put("run-1", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := mc.Get("run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %q, got %q", data, got)
	}

	// Returned slices are copies.
	got[0] = 'X'
	again, _ := mc.Get("run-1")
	if again[0] != 't' {
		t.Error("cached data was mutated through a returned slice")
	}

	if _, err := mc.Get("run-2"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}

	stats := mc.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d and %d", stats.Hits, stats.Misses)
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 30})

	for _, k := range []string{"a", "b", "c"} {
		if err := mc.Put(k, make([]byte, 10)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}
	// Touch a so b becomes the oldest.
	if _, err := mc.Get("a"); err != nil {
		t.Fatal(err)
	}
	if err := mc.Put("d", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}

	if mc.Contains("b") {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !mc.Contains(k) {
			t.Errorf("expected %s to remain cached", k)
		}
	}
	stats := mc.Stats()
	if stats.UsedBytes != 30 || stats.Evictions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMemoryCache_ReplaceAndDelete(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 100})

	mc.Put("k", make([]byte, 40))
	mc.Put("k", make([]byte, 10))
	if used := mc.Stats().UsedBytes; used != 10 {
		t.Errorf("expected 10 bytes after replace, got %d", used)
	}

	mc.Delete("k")
	mc.Delete("missing")
	if mc.Contains("k") || mc.Stats().UsedBytes != 0 {
		t.Error("expected cache to be empty after delete")
	}

	mc.Put("x", []byte("1"))
	mc.Clear()
	if mc.Stats().EntryCount != 0 {
		t.Error("expected Clear to drop all entries")
	}
}

func TestMemoryCache_TooLarge(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 8})
	if err := mc.Put("big", make([]byte, 9)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	mc := NewMemoryCache(MemoryCacheConfig{MaxBytes: 1 << 10})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%50)
				mc.Put(key, make([]byte, 16))
				mc.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if used := mc.Stats().UsedBytes; used > 1<<10 {
		t.Errorf("cache exceeded budget: %d bytes", used)
	}
}
