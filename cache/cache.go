package cache

import (
	"container/list"
	"context"
	"sync"

	"nport-service/domain"
)

type entry struct {
	key    string
	result *domain.FundResult
}

// Cache maps a normalized CIK to a previously computed complete FundResult.
// Capacity is bounded; inserts beyond it evict the least recently used
// entry, any hit refreshes recency.
type Cache struct {
	capacity int

	lock     *sync.Mutex
	elements map[string]*list.Element
	order    *list.List // front is the most recently used
	hits     uint64
	misses   uint64
}

func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		lock:     &sync.Mutex{},
		elements: map[string]*list.Element{},
		order:    list.New(),
	}
}

func (c *Cache) Get(ctx context.Context, cik string) (*domain.FundResult, bool) {
	key, err := domain.NormalizeCik(cik)
	if err != nil {
		return nil, false
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.elements[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(element)
	c.hits++
	return element.Value.(*entry).result, true
}

func (c *Cache) Put(ctx context.Context, cik string, result *domain.FundResult) {
	key, err := domain.NormalizeCik(cik)
	if err != nil {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.elements[key]; ok {
		element.Value.(*entry).result = result
		c.order.MoveToFront(element)
		return
	}

	c.elements[key] = c.order.PushFront(&entry{key: key, result: result})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.elements, oldest.Value.(*entry).key)
	}
}

func (c *Cache) Stats(ctx context.Context) domain.CacheStats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return domain.CacheStats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.order.Len(),
		Capacity: c.capacity,
	}
}

func (c *Cache) Clear(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.elements = map[string]*list.Element{}
	c.order = list.New()
	return nil
}
