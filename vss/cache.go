package vss

import (
	"strings"
	"sync"

	idxapi "github.com/cdorrat/llama-index/index"
)

// Global shared cache of indices keyed by db path/table for cross-connection reuse.
var sharedCache = struct {
	mu    sync.RWMutex
	byKey map[string]*cacheEntry
}{byKey: make(map[string]*cacheEntry)}

type cacheEntry struct {
	mu       sync.RWMutex
	idx      idxapi.Index
	building bool
	cond     *sync.Cond
}

func newCacheEntry() *cacheEntry {
	e := &cacheEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *cacheEntry) get() idxapi.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx
}

func (e *cacheEntry) set(idx idxapi.Index) {
	e.mu.Lock()
	e.idx = idx
	e.mu.Unlock()
}

func (e *cacheEntry) waitForBuild() idxapi.Index {
	e.mu.Lock()
	for e.building {
		e.cond.Wait()
	}
	idx := e.idx
	e.mu.Unlock()
	return idx
}

func (e *cacheEntry) startBuild() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx != nil || e.building {
		return false
	}
	e.building = true
	return true
}

func (e *cacheEntry) finishBuild() {
	e.mu.Lock()
	e.building = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

func cacheKey(dbPath, tableName string) string {
	return dbPath + "|" + tableName
}

func getCacheEntry(key string) *cacheEntry {
	sharedCache.mu.RLock()
	entry := sharedCache.byKey[key]
	sharedCache.mu.RUnlock()
	if entry != nil {
		return entry
	}
	sharedCache.mu.Lock()
	defer sharedCache.mu.Unlock()
	if entry = sharedCache.byKey[key]; entry == nil {
		entry = newCacheEntry()
		sharedCache.byKey[key] = entry
	}
	return entry
}

func setSharedIndex(entry *cacheEntry, idx idxapi.Index) {
	entry.set(idx)
}

func tableNameFromShadow(shadow string) string {
	if shadow == "" {
		return ""
	}
	if i := strings.Index(shadow, "._vss_"); i >= 0 {
		return shadow[i+len("._vss_"):]
	}
	if strings.HasPrefix(shadow, "_vss_") {
		return strings.TrimPrefix(shadow, "_vss_")
	}
	return ""
}

// InvalidateCache clears cached indices for a given shadow table across
// active connections and returns the number of entries cleared.
func InvalidateCache(shadow string) int {
	sharedCache.mu.Lock()
	defer sharedCache.mu.Unlock()
	count := 0
	tableName := tableNameFromShadow(shadow)
	if tableName == "" {
		tableName = shadow
	}
	suffix := "|" + tableName
	for k, entry := range sharedCache.byKey {
		if strings.HasSuffix(k, suffix) {
			entry.set(nil)
			count++
		}
	}
	return count
}
