package retrieval

import "sync"

// Cache keeps a document's decoded passage records in memory so repeated
// questions against the same document skip the database scan. It is owned by
// the Retriever and invalidated explicitly when a document is deleted or
// reindexed; there is no TTL, entries live until invalidation.
type Cache struct {
	mu   sync.RWMutex
	docs map[string][]Record
}

func NewCache() *Cache {
	return &Cache{docs: make(map[string][]Record)}
}

// Get returns the cached records for a document and whether they were present.
func (c *Cache) Get(documentID string) ([]Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, ok := c.docs[documentID]
	return records, ok
}

// Put stores the records for a document, replacing any previous entry.
func (c *Cache) Put(documentID string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[documentID] = records
}

// Invalidate drops the cached records for a document.
func (c *Cache) Invalidate(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, documentID)
}

// Len returns the number of documents currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
