// Package memory is an in-process Ledger used by the memory backend and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
)

type Store struct {
	mu   sync.Mutex
	docs map[string]ledger.Document
}

var _ ledger.Ledger = (*Store)(nil)

func New() *Store {
	return &Store{docs: make(map[string]ledger.Document)}
}

// Query visits matching documents in id order.
func (s *Store) Query(ctx context.Context, field string, value any, fn func(string, ledger.Document) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.docs))
	matches := make(map[string]ledger.Document)
	for id, doc := range s.docs {
		if doc[field] == value {
			ids = append(ids, id)
			matches[id] = clone(doc)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return core.NewRemoteError("query", err)
		}
		if err := fn(id, matches[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (ledger.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, core.NewRemoteError("get", &core.NotFoundError{Kind: "document", ID: id})
	}
	return clone(doc), nil
}

func (s *Store) Set(_ context.Context, id string, doc ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = clone(doc)
	return nil
}

func (s *Store) Update(_ context.Context, id string, doc ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		return core.NewRemoteError("update", &core.NotFoundError{Kind: "document", ID: id})
	}
	for k, v := range doc {
		cur[k] = v
	}
	return nil
}

// Delete removes the document; a missing id is not an error.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *Store) String() string {
	return fmt.Sprintf("memory ledger (%d docs)", s.Len())
}

func clone(doc ledger.Document) ledger.Document {
	out := make(ledger.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
