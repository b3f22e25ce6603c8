package session

import (
	"container/list"
	"sync"
	"time"
)

// lru is a size-bounded map whose entries expire after ttl of inactivity.
type lru[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
	onEvict func(key string, value T)
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

func newLRU[T any](maxSize int, ttl time.Duration, now func() time.Time) *lru[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &lru[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     now,
	}
}

// get returns the value and slides its expiry forward.
func (c *lru[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[T])
	now := c.now()
	if now.After(e.expiresAt) {
		c.remove(elem)
		return zero, false
	}
	e.expiresAt = now.Add(c.ttl)
	c.order.MoveToFront(elem)
	return e.value, true
}

// getOrAdd returns the live value for key, storing create() when there is none.
func (c *lru[T]) getOrAdd(key string, create func() T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[T])
		if !now.After(e.expiresAt) {
			e.expiresAt = now.Add(c.ttl)
			c.order.MoveToFront(elem)
			return e.value, true
		}
		c.remove(elem)
	}

	value := create()
	c.items[key] = c.order.PushFront(&entry[T]{key: key, value: value, expiresAt: now.Add(c.ttl)})
	if c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	return value, false
}

func (c *lru[T]) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

func (c *lru[T]) remove(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(c.items, e.key)
	c.order.Remove(elem)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}

// cleanExpired drops every expired entry and returns how many went.
func (c *lru[T]) cleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.remove(elem)
	}
	return len(expired)
}

func (c *lru[T]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
