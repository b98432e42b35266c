package search

import (
	"sort"
	"strconv"
	"sync"
)

// Index is an in-memory document store queried with the same filter
// queries the policies emit. It backs the search endpoints and is rebuilt
// from the database by the reindex job.
type Index struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewIndex builds an empty index.
func NewIndex() *Index {
	return &Index{docs: make(map[string]map[string]any)}
}

// Put stores or replaces one document.
func (i *Index) Put(id string, doc map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[id] = doc
}

// Delete removes one document.
func (i *Index) Delete(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.docs, id)
}

// Replace swaps the full document set atomically.
func (i *Index) Replace(docs map[string]map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs = docs
}

// Search returns the ids of documents matching the query, sorted for
// deterministic pagination. Numeric ids sort by value so listings page
// through records in id order. A nil query matches everything.
func (i *Index) Search(q Query) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var ids []string
	for id, doc := range i.docs {
		if q == nil || Matches(q, doc) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool {
		na, errA := strconv.ParseInt(ids[a], 10, 64)
		nb, errB := strconv.ParseInt(ids[b], 10, 64)
		if errA == nil && errB == nil {
			return na < nb
		}
		return ids[a] < ids[b]
	})
	return ids
}

// Len reports the number of stored documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}
