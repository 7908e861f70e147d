package llmgateway

import (
	"container/list"
	"sync"
)

// embedCache is a bounded in-process LRU of embedding vectors keyed by
// sha256(model, dimensions, text). The vector store itself is external;
// this only avoids redundant embedding calls for repeated queries within
// a process lifetime.
type embedCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type embedCacheEntry struct {
	key    string
	vector []float32
}

func newEmbedCache(capacity int) *embedCache {
	return &embedCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *embedCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*embedCacheEntry).vector, true
}

func (c *embedCache) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*embedCacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&embedCacheEntry{key: key, vector: vector})
	c.items[key] = elem

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*embedCacheEntry).key)
	}
}
