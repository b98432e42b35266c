package users

import (
	"context"
	"errors"
	"strconv"

	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
)

// UserSource provides the records the search index is built from.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	AllUsers(ctx context.Context) ([]User, error)
}

// IndexSearcher answers search queries from an in-memory index rebuilt
// out of band by the reindex job.
type IndexSearcher struct {
	index  *search.Index
	source UserSource
}

// NewIndexSearcher builds IndexSearcher instance.
func NewIndexSearcher(index *search.Index, source UserSource) *IndexSearcher {
	return &IndexSearcher{index: index, source: source}
}

// SearchUsers returns the accounts whose indexed documents match the
// filter. Hits whose record vanished since the last reindex are skipped.
func (s *IndexSearcher) SearchUsers(ctx context.Context, q search.Query) ([]User, error) {
	ids := s.index.Search(q)
	out := make([]User, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		user, err := s.source.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *user)
	}
	return out, nil
}

// ReindexAll rebuilds the whole index from the database.
func (s *IndexSearcher) ReindexAll(ctx context.Context) error {
	users, err := s.source.AllUsers(ctx)
	if err != nil {
		return err
	}
	docs := make(map[string]map[string]any, len(users))
	for i := range users {
		docs[strconv.FormatInt(users[i].ID, 10)] = users[i].Document()
	}
	s.index.Replace(docs)
	return nil
}

// ReindexUser refreshes one account's document, removing it when the
// record no longer exists.
func (s *IndexSearcher) ReindexUser(ctx context.Context, id int64) error {
	user, err := s.source.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.index.Delete(strconv.FormatInt(id, 10))
			return nil
		}
		return err
	}
	s.index.Put(strconv.FormatInt(id, 10), user.Document())
	return nil
}
