package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process. It backs local development and
// tests and honours the same atomicity guarantees as the network backends.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string][]byte
	order  map[string][]string
	claims map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string][]byte),
		order:  make(map[string][]string),
		claims: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("docstore: invalid json for %s/%s", collection, id)
	}
	o := applyInsertOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[collection][id]; exists {
		return ErrConflict
	}
	for _, claim := range o.unique {
		if _, taken := s.claims[uniqueKey(collection, claim)]; taken {
			return ErrConflict
		}
	}
	for _, claim := range o.unique {
		s.claims[uniqueKey(collection, claim)] = id
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string][]byte)
	}
	s.docs[collection][id] = append([]byte(nil), body...)
	s.order[collection] = append(s.order[collection], id)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	body, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	if !matches(doc, patch.Expect) {
		return ErrConditionFailed
	}
	for field, value := range patch.Set {
		doc[field] = value
	}
	updated, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	s.docs[collection][id] = updated
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [][]byte
	for _, id := range s.order[collection] {
		body := s.docs[collection][id]
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
		}
		if !matches(doc, q.Where) {
			continue
		}
		out = append(out, append([]byte(nil), body...))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
