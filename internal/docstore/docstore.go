// Package docstore is the document persistence boundary for the workflow
// ledgers. Every backend stores one JSON document per record, keyed by
// (collection, id), and offers atomic insert-if-absent, atomic
// compare-and-set updates and simple equality queries.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no document exists for (collection, id).
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned when an insert collides with an existing id or unique claim.
	ErrConflict = errors.New("docstore: document already exists")
	// ErrConditionFailed is returned when an update's expectations do not hold.
	ErrConditionFailed = errors.New("docstore: condition failed")
	// ErrTimeout is returned when a bounded call ran out of time.
	ErrTimeout = errors.New("docstore: call timed out")
)

// Eq is an equality predicate on a top-level document field. Value must be a
// string or a bool.
type Eq struct {
	Field string
	Value any
}

// Query selects documents in a collection. Limit <= 0 means no limit.
type Query struct {
	Where []Eq
	Limit int
}

// Patch sets top-level fields on a document, provided every Expect predicate
// holds at write time.
type Patch struct {
	Expect []Eq
	Set    map[string]any
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error
	Update(ctx context.Context, collection, id string, patch Patch) error
	Find(ctx context.Context, collection string, q Query) ([][]byte, error)
}

// InsertOption customises an insert.
type InsertOption func(*insertOptions)

type insertOptions struct {
	unique []Eq
}

// Unique makes the insert claim (collection, field, value) atomically with
// the document write: if another document already claimed it the insert
// fails with ErrConflict and nothing is written.
func Unique(field, value string) InsertOption {
	return func(o *insertOptions) {
		o.unique = append(o.unique, Eq{Field: field, Value: value})
	}
}

func applyInsertOptions(opts []InsertOption) insertOptions {
	var o insertOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func uniqueKey(collection string, claim Eq) string {
	return fmt.Sprintf("%s|%s|%v", collection, claim.Field, claim.Value)
}

// GetAs loads and decodes a document.
func GetAs[T any](ctx context.Context, s Store, collection, id string) (*T, error) {
	body, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	return &out, nil
}

// InsertAs encodes v and inserts it.
func InsertAs(ctx context.Context, s Store, collection, id string, v any, opts ...InsertOption) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	return s.Insert(ctx, collection, id, body, opts...)
}

// FindAs runs q and decodes every match.
func FindAs[T any](ctx context.Context, s Store, collection string, q Query) ([]T, error) {
	bodies, err := s.Find(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func matches(doc map[string]any, where []Eq) bool {
	for _, cond := range where {
		if doc[cond.Field] != cond.Value {
			return false
		}
	}
	return true
}
