package domains

import (
	"context"
	"strconv"
	"sync"

	"github.com/castellan-platform/castellan/internal/search"
)

// DomainSource provides the records the search index is built from.
type DomainSource interface {
	AllDomains(ctx context.Context) ([]Domain, error)
}

// IndexSearcher answers search queries from an in-memory index rebuilt
// out of band by the reindex job.
type IndexSearcher struct {
	index  *search.Index
	source DomainSource

	mu   sync.RWMutex
	byID map[string]Domain
}

// NewIndexSearcher builds IndexSearcher instance.
func NewIndexSearcher(index *search.Index, source DomainSource) *IndexSearcher {
	return &IndexSearcher{index: index, source: source, byID: make(map[string]Domain)}
}

// SearchDomains returns the domains whose indexed documents match the filter.
func (s *IndexSearcher) SearchDomains(ctx context.Context, q search.Query) ([]Domain, error) {
	ids := s.index.Search(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Domain, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// ReindexAll rebuilds the whole index from the database.
func (s *IndexSearcher) ReindexAll(ctx context.Context) error {
	domains, err := s.source.AllDomains(ctx)
	if err != nil {
		return err
	}
	docs := make(map[string]map[string]any, len(domains))
	byID := make(map[string]Domain, len(domains))
	for i := range domains {
		id := strconv.FormatInt(domains[i].ID, 10)
		docs[id] = domains[i].Document()
		byID[id] = domains[i]
	}
	s.index.Replace(docs)
	s.mu.Lock()
	s.byID = byID
	s.mu.Unlock()
	return nil
}
