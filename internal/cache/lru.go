package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LRUCache holds at most capacity entries, each valid for ttl after it was
// stored. A capacity of zero or less means unbounded.
type LRUCache[T any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	recency *list.List // front is most recently used

	loads singleflight.Group
}

type entry[T any] struct {
	key     string
	val     T
	expires time.Time
}

func (e *entry[T]) stale(now time.Time) bool { return now.After(e.expires) }

func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
	}
}

// Get returns the live value under key and marks it recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if e.stale(now) {
		c.drop(el)
		return zero, false
	}
	c.recency.MoveToFront(el)
	return e.val, true
}

// Set stores val under key, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache[T]) Set(key string, val T) {
	e := &entry[T]{key: key, val: val, expires: c.now().Add(c.ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.recency.MoveToFront(el)
		return
	}
	c.entries[key] = c.recency.PushFront(e)
	for c.capacity > 0 && c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.drop(el)
	}
}

// Purge drops every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
}

// GetOrLoad returns the cached value for key or calls load to fill it.
// Concurrent misses on the same key share one load. Errors are not cached.
func (c *LRUCache[T]) GetOrLoad(key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.loads.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// CleanExpired drops stale entries and reports how many went.
func (c *LRUCache[T]) CleanExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[T]).stale(now) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// drop must be called with mu held.
func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.entries, el.Value.(*entry[T]).key)
	c.recency.Remove(el)
}
