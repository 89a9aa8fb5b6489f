package parser

import (
	"sync"

	"github.com/google/uuid"
)

// Cache holds parsed documents for the lifetime of one assessment run so
// retries never re-parse the same file.
type Cache struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*Document
}

// NewCache creates an empty parse cache.
func NewCache() *Cache {
	return &Cache{
		docs: make(map[uuid.UUID]*Document),
	}
}

// Get returns the cached parse for a document id, if present.
func (c *Cache) Get(documentID uuid.UUID) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[documentID]
	return doc, ok
}

// Put stores a parsed document.
func (c *Cache) Put(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.DocumentID] = doc
}

// Drop evicts the given document ids. Called once an assessment reaches a
// terminal status and no retry can reuse its parses.
func (c *Cache) Drop(ids ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.docs, id)
	}
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
