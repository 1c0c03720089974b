package rate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryBackend is the in-process fallback used when no Redis client is
// configured. Counters live in a map guarded by a mutex; a background
// sweeper evicts expired windows so abandoned identifiers do not accumulate.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// NewMemoryBackend returns a Backend sweeping expired windows every
// sweepInterval. A non-positive interval disables the sweeper; expired
// entries are then only reclaimed when their key is touched again.
func NewMemoryBackend(sweepInterval time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go b.sweepLoop(sweepInterval)
	}
	return b
}

// Incr increments the counter for key, resetting it first if its window has
// elapsed.
func (b *MemoryBackend) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		b.entries[key] = memoryEntry{count: 1, resetAt: now.Add(window)}
		return 1, window, nil
	}

	entry.count++
	b.entries[key] = entry
	return entry.count, entry.resetAt.Sub(now), nil
}

// Close stops the sweeper. Safe to call more than once.
func (b *MemoryBackend) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func (b *MemoryBackend) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *MemoryBackend) sweep() {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, entry := range b.entries {
		if !now.Before(entry.resetAt) {
			delete(b.entries, key)
		}
	}
}
