package store

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// MemoryStore implements FastStore with TTL expiration and a bounded entry
// count. A min-heap by expiration time keeps cleanup cheap.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]*memoryEntry
	ttls map[string]int64 // key -> expiration timestamp (unix nano)

	expirationHeap expirationHeap

	maxSize       int
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

type memoryEntry struct {
	entry      types.CacheEntry
	expiration int64
}

// expirationEntry represents an entry in the expiration heap.
type expirationEntry struct {
	key        string
	expiration int64
	index      int
}

type expirationHeap []*expirationEntry

func (h expirationHeap) Len() int           { return len(h) }
func (h expirationHeap) Less(i, j int) bool { return h[i].expiration < h[j].expiration }
func (h expirationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expirationHeap) Push(x any) {
	n := len(*h)
	entry, ok := x.(*expirationEntry)
	if !ok {
		return
	}
	entry.index = n
	*h = append(*h, entry)
}

func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil // avoid memory leak
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

// MemoryConfig holds configuration for the fast tier.
type MemoryConfig struct {
	MaxSize         int           `yaml:"max_size"`         // Maximum number of entries (default: 1000)
	TTL             time.Duration `yaml:"ttl"`              // Entry lifetime (default: 10 minutes)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // Expired-entry sweep interval (default: 1 minute)
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxSize:         1000,
		TTL:             10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// NewMemoryStore creates the fast tier.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	s := &MemoryStore{
		data:           make(map[string]*memoryEntry),
		ttls:           make(map[string]int64),
		expirationHeap: make(expirationHeap, 0),
		maxSize:        cfg.MaxSize,
		ttl:            cfg.TTL,
		stopCleanup:    make(chan struct{}),
	}

	heap.Init(&s.expirationHeap)

	s.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()

	for s.expirationHeap.Len() > 0 {
		entry := s.expirationHeap[0]

		// Skip heap entries made stale by a newer Set for the same key.
		if storedExp, ok := s.ttls[entry.key]; !ok || storedExp != entry.expiration {
			heap.Pop(&s.expirationHeap)
			continue
		}

		if entry.expiration <= now {
			heap.Pop(&s.expirationHeap)
			delete(s.data, entry.key)
			delete(s.ttls, entry.key)
		} else {
			break // heap is sorted, nothing further is expired
		}
	}
}

// evictIfNeeded makes room when the store is at capacity, preferring
// soonest-to-expire entries. Callers must hold the write lock.
func (s *MemoryStore) evictIfNeeded() {
	now := time.Now().UnixNano()

	for s.expirationHeap.Len() > 0 && len(s.data) >= s.maxSize {
		entry := s.expirationHeap[0]

		if storedExp, ok := s.ttls[entry.key]; !ok || storedExp != entry.expiration {
			heap.Pop(&s.expirationHeap)
			continue
		}

		if entry.expiration <= now || len(s.data) >= s.maxSize {
			heap.Pop(&s.expirationHeap)
			delete(s.data, entry.key)
			delete(s.ttls, entry.key)
		} else {
			break
		}
	}
}

// Get returns a copy of the entry for key, or false on miss.
func (s *MemoryStore) Get(key string) (*types.CacheEntry, bool) {
	s.mu.RLock()
	me, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, false
	}

	if me.expiration > 0 && me.expiration <= time.Now().UnixNano() {
		s.misses.Add(1)
		// Lazy deletion. A Set can slip in between the read and write
		// locks; only remove the entry if it is still the expired one.
		s.mu.Lock()
		if cur, ok := s.data[key]; ok && cur == me {
			delete(s.data, key)
			delete(s.ttls, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	s.hits.Add(1)
	// Return a copy so callers cannot mutate the stored entry.
	out := me.entry
	return &out, true
}

// Set stores an entry under its key.
func (s *MemoryStore) Set(entry *types.CacheEntry) {
	expiration := time.Now().Add(s.ttl).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) >= s.maxSize {
		s.evictIfNeeded()
	}

	s.data[entry.Key] = &memoryEntry{
		entry:      *entry,
		expiration: expiration,
	}
	s.ttls[entry.Key] = expiration

	heap.Push(&s.expirationHeap, &expirationEntry{
		key:        entry.Key,
		expiration: expiration,
	})

	s.sets.Add(1)
}

// Delete removes a key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	delete(s.ttls, key)
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Flush removes all entries.
func (s *MemoryStore) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*memoryEntry)
	s.ttls = make(map[string]int64)
	s.expirationHeap = make(expirationHeap, 0)
	heap.Init(&s.expirationHeap)
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupTicker.Stop()
	close(s.stopCleanup)
	return nil
}

// Stats returns hit/miss/set counters for monitoring.
func (s *MemoryStore) Stats() (hits, misses, sets int64) {
	return s.hits.Load(), s.misses.Load(), s.sets.Load()
}
