// Package cache implements the single-use checkpoint cache used to resume
// paginated event scans. An entry maps a (container, query, row) key to a
// suspended iterator positioned exactly at that row. Entries are removed
// on first read: a checkpoint is a hand-off between two window requests,
// not a memo.
package cache

import (
	"sync"
	"time"

	"github.com/evidentia/timeline/store"
)

// DefaultTTL is how long a checkpoint survives without being consumed.
const DefaultTTL = 10 * time.Minute

// DefaultSweepInterval is how often expired checkpoints are reaped.
const DefaultSweepInterval = time.Minute

// Key identifies a checkpoint: an iterator for (Container, Query)
// suspended at row offset Row.
type Key struct {
	Container string
	Query     string
	Row       int
}

type entry struct {
	it      store.Iterator
	expires time.Time
}

// Checkpoints is a process-wide TTL cache of suspended iterators. It is
// safe for concurrent use; losing a Put/Take race costs at most a
// redundant fresh query. Construct one at service start and inject it
// into every reader that shares it.
type Checkpoints struct {
	mu      sync.Mutex
	entries map[Key]entry
	ttl     time.Duration

	done chan struct{}
	once sync.Once
}

// New creates a checkpoint cache and starts its sweep goroutine.
// Non-positive durations fall back to the defaults.
func New(ttl, sweepInterval time.Duration) *Checkpoints {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &Checkpoints{
		entries: make(map[Key]entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Put stores a suspended iterator under key, displacing and closing any
// iterator already checkpointed there.
func (c *Checkpoints) Put(key Key, it store.Iterator) {
	c.mu.Lock()
	old, ok := c.entries[key]
	c.entries[key] = entry{it: it, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if ok {
		old.it.Close()
	}
}

// Take retrieves and removes the iterator checkpointed under key. An
// expired entry is a miss; its iterator is closed.
func (c *Checkpoints) Take(key Key) (store.Iterator, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		e.it.Close()
		return nil, false
	}
	return e.it, true
}

// Len returns the number of live checkpoints.
func (c *Checkpoints) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweeper and closes every remaining iterator.
func (c *Checkpoints) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[Key]entry)
	c.mu.Unlock()

	for _, e := range entries {
		e.it.Close()
	}
	return nil
}

// sweep periodically reaps expired checkpoints so abandoned scans do not
// pin database cursors for longer than the TTL.
func (c *Checkpoints) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			var expired []store.Iterator
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expires) {
					expired = append(expired, e.it)
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()

			for _, it := range expired {
				it.Close()
			}
		}
	}
}
