package store

import "sync"

// knownKeys is a thread-safe LRU set of natural keys known to be committed.
// Rows are never deleted, so a hit lets a batch skip the existence query.
// A nil *knownKeys is a disabled cache.
type knownKeys struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key  string
	prev *entry
	next *entry
}

func newKnownKeys(maxEntries int) *knownKeys {
	if maxEntries <= 0 {
		return nil
	}
	return &knownKeys{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *knownKeys) contains(key string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.moveToFront(e)
	return true
}

func (c *knownKeys) add(keys ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			c.moveToFront(e)
			continue
		}

		e := &entry{key: key}
		c.entries[key] = e
		c.addToFront(e)

		if len(c.entries) > c.maxEntries {
			c.evictTail()
		}
	}
}

func (c *knownKeys) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *knownKeys) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *knownKeys) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *knownKeys) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *knownKeys) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

// pendingKeys collects keys touched by an open transaction. Only the newest
// limit keys are retained since older ones would be evicted on publish anyway.
type pendingKeys struct {
	limit int
	keys  []string
}

func (p *pendingKeys) add(key string) {
	if p.limit <= 0 {
		return
	}
	p.keys = append(p.keys, key)
	if len(p.keys) >= 2*p.limit {
		n := copy(p.keys, p.keys[len(p.keys)-p.limit:])
		p.keys = p.keys[:n]
	}
}

func (p *pendingKeys) newest() []string {
	if len(p.keys) > p.limit {
		return p.keys[len(p.keys)-p.limit:]
	}
	return p.keys
}
