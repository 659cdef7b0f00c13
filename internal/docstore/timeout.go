package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on s. A call that outlives the bound fails
// with an error matching both ErrTimeout and context.DeadlineExceeded.
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: timeout}
}

func (t *timeoutStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	body, err := t.next.Get(ctx, collection, id)
	return body, t.check(ctx, err)
}

func (t *timeoutStore) Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, t.next.Insert(ctx, collection, id, body, opts...))
}

func (t *timeoutStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, t.next.Update(ctx, collection, id, patch))
}

func (t *timeoutStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	bodies, err := t.next.Find(ctx, collection, q)
	return bodies, t.check(ctx, err)
}

func (t *timeoutStore) check(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	}
	return err
}
