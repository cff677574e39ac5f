package cache

import (
	"sync"
	"testing"
	"time"
)

func TestLRUCache_BasicSetGet(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	value, found := cache.Get("key1")
	if !found {
		t.Error("Expected to find key1")
	}
	if value != "value1" {
		t.Errorf("Expected 'value1', got '%v'", value)
	}
}

func TestLRUCache_GetNonExistent(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	value, found := cache.Get("nonexistent")
	if found {
		t.Error("Should not find nonexistent key")
	}
	if value != "" {
		t.Errorf("Expected zero value, got %q", value)
	}
}

func TestLRUCache_DefaultCapacity(t *testing.T) {
	cache := NewCache[int](0)
	defer cache.Stop()
	if cache.capacity <= 0 {
		t.Errorf("Expected default capacity, got %d", cache.capacity)
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key", "value", 100*time.Millisecond)
	_, found := cache.Get("key")
	if !found {
		t.Error("Key should be found immediately after set")
	}
	time.Sleep(150 * time.Millisecond)
	_, found = cache.Get("key")
	if found {
		t.Error("Key should be expired")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewCache[string](2)
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Set("key3", "value3", 1*time.Hour)
	if _, found := cache.Get("key1"); found {
		t.Error("key1 should be evicted")
	}
	if _, found := cache.Get("key2"); !found {
		t.Error("key2 should exist")
	}
	if _, found := cache.Get("key3"); !found {
		t.Error("key3 should exist")
	}
}

func TestLRUCache_LRUOrder(t *testing.T) {
	cache := NewCache[string](2)
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Get("key1")
	cache.Set("key3", "value3", 1*time.Hour)
	if _, found := cache.Get("key2"); found {
		t.Error("key2 should be evicted (least recently used)")
	}
	if _, found := cache.Get("key1"); !found {
		t.Error("key1 should exist")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key", "value", time.Hour)
	if !cache.Delete("key") {
		t.Error("Delete should report a present key")
	}
	if cache.Delete("key") {
		t.Error("second Delete should report absence")
	}
	if _, found := cache.Get("key"); found {
		t.Error("deleted key should not be found")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", cache.Len())
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[int](100)
	defer cache.Stop()
	const numGoroutines = 100
	const numOperations = 100
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := string(rune('a' + (id+j)%26))
				cache.Set(key, id*numOperations+j, 1*time.Hour)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := string(rune('a' + (id+j)%26))
				cache.Get(key)
				if j%10 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key", "value1", 1*time.Hour)
	v, _ := cache.Get("key")
	if v != "value1" {
		t.Errorf("Expected 'value1'")
	}
	cache.Set("key", "value2", 1*time.Hour)
	v, _ = cache.Get("key")
	if v != "value2" {
		t.Errorf("Expected 'value2'")
	}
}

func TestLRUCache_ExpiredItemCleanup(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("key1", "value1", time.Minute)
	cache.Set("key2", "value2", time.Hour)
	now = now.Add(2 * time.Minute)

	if _, found := cache.Get("key1"); found {
		t.Error("key1 should be expired")
	}
	if _, found := cache.Get("key2"); !found {
		t.Error("key2 should still exist")
	}
	cache.mu.Lock()
	exists := cache.items.Contains("key1")
	cache.mu.Unlock()
	if exists {
		t.Error("key1 should be removed")
	}
}

func TestLRUCache_ZeroTTL(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key", "value", 0)
	if _, found := cache.Get("key"); found {
		t.Error("Key with zero TTL should be immediately expired")
	}
}

func TestLRUCache_NegativeTTL(t *testing.T) {
	cache := NewCache[string](10)
	defer cache.Stop()
	cache.Set("key", "value", -1*time.Second)
	if _, found := cache.Get("key"); found {
		t.Error("Key with negative TTL should be immediately expired")
	}
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewCache[int](10)
	defer cache.Stop()
	cache.Set("a", 1, time.Hour)
	cache.Set("b", 2, time.Hour)
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected 0 items after Clear, got %d", cache.Len())
	}
	if _, found := cache.Get("a"); found {
		t.Error("a should be gone after Clear")
	}
	cache.Set("c", 3, time.Hour)
	if v, found := cache.Get("c"); !found || v != 3 {
		t.Error("cache should be usable after Clear")
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewCache[int](10)
	defer cache.Stop()
	cache.Set("old", 1, -time.Second)
	cache.Set("new", 2, time.Hour)
	cache.cleanupExpired()
	if cache.Len() != 1 {
		t.Errorf("Expected 1 item after cleanup, got %d", cache.Len())
	}
}

func TestLRUCache_CleanupKeepsRecency(t *testing.T) {
	cache := NewCache[int](2)
	defer cache.Stop()
	cache.Set("a", 1, time.Hour)
	cache.Set("b", 2, time.Hour)
	cache.cleanupExpired()
	cache.Get("a")
	cache.Set("c", 3, time.Hour)
	if _, found := cache.Get("b"); found {
		t.Error("b should be evicted; a sweep must not refresh recency")
	}
	if _, found := cache.Get("a"); !found {
		t.Error("a should exist")
	}
}

func TestModelCacheKey(t *testing.T) {
	if got := ModelCacheKey("llama3"); got != "model:v1:llama3" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateCacheKey(t *testing.T) {
	if got := TruncateCacheKey("model:v1:abcdef", 8); got != "model:v1" {
		t.Errorf("got %q", got)
	}
	if got := TruncateCacheKey("short", 8); got != "short" {
		t.Errorf("got %q", got)
	}
}
