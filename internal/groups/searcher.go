package groups

import (
	"context"
	"strconv"
	"sync"

	"github.com/castellan-platform/castellan/internal/search"
)

// GroupSource provides the records the search index is built from.
type GroupSource interface {
	AllGroups(ctx context.Context) ([]Group, error)
}

// IndexSearcher answers search queries from an in-memory index rebuilt
// out of band by the reindex job. Group documents are small, so hits are
// materialised straight from the index snapshot.
type IndexSearcher struct {
	index  *search.Index
	source GroupSource

	mu   sync.RWMutex
	byID map[string]Group
}

// NewIndexSearcher builds IndexSearcher instance.
func NewIndexSearcher(index *search.Index, source GroupSource) *IndexSearcher {
	return &IndexSearcher{index: index, source: source, byID: make(map[string]Group)}
}

// SearchGroups returns the groups whose indexed documents match the filter.
func (s *IndexSearcher) SearchGroups(ctx context.Context, q search.Query) ([]Group, error) {
	ids := s.index.Search(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := s.byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// ReindexAll rebuilds the whole index from the database.
func (s *IndexSearcher) ReindexAll(ctx context.Context) error {
	groups, err := s.source.AllGroups(ctx)
	if err != nil {
		return err
	}
	docs := make(map[string]map[string]any, len(groups))
	byID := make(map[string]Group, len(groups))
	for i := range groups {
		id := strconv.FormatInt(groups[i].ID, 10)
		docs[id] = groups[i].Document()
		byID[id] = groups[i]
	}
	s.index.Replace(docs)
	s.mu.Lock()
	s.byID = byID
	s.mu.Unlock()
	return nil
}
