// Package cache implements the Request Cache & Metrics component (C5):
// a fingerprint-keyed LRU cache under a byte budget, single-flight
// de-duplication of concurrent misses, and process-wide metrics counters,
// per SPEC_FULL §4.5. The teacher carries no cache of its own; the
// intrusive-doubly-linked-list LRU and explicit single-flight map are
// written directly from the spec in the "explicit struct, no hidden
// container library" style the teacher uses elsewhere (e.g. its own
// hand-rolled debounce timer in config/watcher.go).
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is a cached response, per §3's CacheEntry.
type Entry struct {
	Fingerprint  [32]byte
	Response     []byte
	SizeBytes    int64
	CreatedAt    time.Time
	LastUsedAt   time.Time
	HitCount     int64
}

// Cache is a fingerprint -> Entry LRU map bounded by a byte budget, with
// at-most-one-concurrent-compute-per-fingerprint semantics.
type Cache struct {
	mu        sync.Mutex
	maxBytes  int64
	curBytes  int64
	entries   map[[32]byte]*list.Element // value is *Entry wrapped in list
	order     *list.List                 // front = most recently used

	inflight map[[32]byte]*call

	metrics *Metrics
}

type listItem struct {
	fp    [32]byte
	entry *Entry
}

// call represents an in-flight computation other lookups can wait on,
// the single-flight primitive named in §4.5/§9.
type call struct {
	done chan struct{}
	val  *Entry
	err  error
}

// New creates a Cache with the given byte budget. A budget of 0 disables
// storage (Store becomes a no-op, Lookup always misses), per §6's
// "cache_max_bytes: 0 disables".
func New(maxBytes int64, m *Metrics) *Cache {
	if m == nil {
		m = NewMetrics()
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[[32]byte]*list.Element),
		order:    list.New(),
		inflight: make(map[[32]byte]*call),
		metrics:  m,
	}
}

// Lookup returns the cached entry for fp, if present, bumping its
// recency and hit count.
func (c *Cache) Lookup(fp [32]byte) (*Entry, bool) {
	if c.maxBytes <= 0 {
		c.metrics.Misses.Add(1)
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fp]
	if !ok {
		c.metrics.Misses.Add(1)
		return nil, false
	}
	item := el.Value.(*listItem)
	item.entry.LastUsedAt = time.Now()
	item.entry.HitCount++
	c.order.MoveToFront(el)
	c.metrics.Hits.Add(1)
	return item.entry, true
}

// Store inserts or replaces the entry for fp, evicting least-recently-used
// entries until the cache is back under its byte budget.
func (c *Cache) Store(fp [32]byte, response []byte) {
	if c.maxBytes <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(response))
	now := time.Now()

	if el, ok := c.entries[fp]; ok {
		item := el.Value.(*listItem)
		c.curBytes -= item.entry.SizeBytes
		item.entry.Response = response
		item.entry.SizeBytes = size
		item.entry.LastUsedAt = now
		c.curBytes += size
		c.order.MoveToFront(el)
	} else {
		entry := &Entry{Fingerprint: fp, Response: response, SizeBytes: size, CreatedAt: now, LastUsedAt: now}
		el := c.order.PushFront(&listItem{fp: fp, entry: entry})
		c.entries[fp] = el
		c.curBytes += size
	}
	c.metrics.Stores.Add(1)
	c.metrics.Bytes.Store(c.curBytes)

	for c.curBytes > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		item := back.Value.(*listItem)
		c.order.Remove(back)
		delete(c.entries, item.fp)
		c.curBytes -= item.entry.SizeBytes
		c.metrics.Evictions.Add(1)
	}
	c.metrics.Bytes.Store(c.curBytes)
}

// Compute implements the §4.5 single-flight contract: at most one
// concurrent computation runs per fingerprint; concurrent callers for the
// same missing fingerprint block on it and share its result. On success,
// the result is stored before any waiter resumes (a happens-before edge
// satisfied by the done channel close).
//
// Exactly one metrics event is recorded per caller: a caller that finds a
// stored entry or joins an in-flight computation records a Hit; only the
// caller that actually starts the computation records a Miss. The entries
// map, inflight map, and that decision are all resolved under a single
// lock acquisition so two concurrent callers on a genuine miss can never
// both see "no entry, no inflight call" and both record a Miss.
func (c *Cache) Compute(fp [32]byte, compute func() ([]byte, error)) ([]byte, error, bool) {
	c.mu.Lock()
	if c.maxBytes > 0 {
		if el, ok := c.entries[fp]; ok {
			item := el.Value.(*listItem)
			item.entry.LastUsedAt = time.Now()
			item.entry.HitCount++
			c.order.MoveToFront(el)
			resp := item.entry.Response
			c.mu.Unlock()
			c.metrics.Hits.Add(1)
			return resp, nil, true
		}
	}
	if existing, ok := c.inflight[fp]; ok {
		c.mu.Unlock()
		c.metrics.Hits.Add(1)
		<-existing.done
		return existing.val.responseOrNil(), existing.err, existing.err == nil
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[fp] = cl
	c.mu.Unlock()
	c.metrics.Misses.Add(1)

	resp, err := compute()
	if err == nil {
		c.Store(fp, resp)
		cl.val = &Entry{Response: resp}
	}
	cl.err = err

	c.mu.Lock()
	delete(c.inflight, fp)
	c.mu.Unlock()
	close(cl.done)

	return resp, err, false
}

// MetricsSnapshot renders a point-in-time copy of the cache's metrics, for
// GET /metrics.
func (c *Cache) MetricsSnapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Metrics exposes the shared Metrics instance so C1 (internal/server) can
// record its own stream-lifecycle counters (keepalives, drain waits,
// watchdog fires, outcomes, latency) into the same process-wide snapshot.
func (c *Cache) Metrics() *Metrics {
	return c.metrics
}

func (e *Entry) responseOrNil() []byte {
	if e == nil {
		return nil
	}
	return e.Response
}
