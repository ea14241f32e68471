package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Documents keep their insertion order.
type MemoryStorage struct {
	collections map[Collection][]Document
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		collections: make(map[Collection][]Document),
	}
}

// read runs fn on the documents of c under the read lock.
func read[T any](ctx context.Context, s *MemoryStorage, c Collection, q Query, fn func([]Document, Query) (T, error)) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		if err := validCollection(c); err != nil {
			return zero, err
		}
		nq, err := normalizeQuery(q)
		if err != nil {
			return zero, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		return fn(s.collections[c], nq)
	})
}

// write runs fn on the documents of c under the write lock and stores the
// documents it returns.
func write[T any](ctx context.Context, s *MemoryStorage, c Collection, fn func([]Document) ([]Document, T, error)) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		if err := validCollection(c); err != nil {
			return zero, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		next, result, err := fn(s.collections[c])
		if err != nil {
			return zero, err
		}
		s.collections[c] = next
		return result, nil
	})
}

// Create appends a document to the collection.
func (s *MemoryStorage) Create(ctx context.Context, c Collection, doc Document) (Document, error) {
	n, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	return write(ctx, s, c, func(docs []Document) ([]Document, Document, error) {
		return append(docs, n), clone(n), nil
	})
}

// Find returns the matching documents.
func (s *MemoryStorage) Find(ctx context.Context, c Collection, q Query) ([]Document, error) {
	return read(ctx, s, c, q, func(docs []Document, nq Query) ([]Document, error) {
		return applyFind(docs, nq), nil
	})
}

// FindOne returns the first matching document.
func (s *MemoryStorage) FindOne(ctx context.Context, c Collection, q Query) (Document, error) {
	return read(ctx, s, c, q, func(docs []Document, nq Query) (Document, error) {
		for _, doc := range docs {
			if matches(doc, nq) {
				return clone(doc), nil
			}
		}
		return nil, fmt.Errorf("%w: collection=%s", ErrNotFound, c)
	})
}

// Update merges patch into the matching documents.
func (s *MemoryStorage) Update(ctx context.Context, c Collection, q Query, patch Document) ([]Document, error) {
	nq, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	np, err := normalize(patch)
	if err != nil {
		return nil, err
	}
	return write(ctx, s, c, func(docs []Document) ([]Document, []Document, error) {
		next, updated := applyUpdate(docs, nq, np)
		return next, updated, nil
	})
}

// Upsert returns the first document holding every field of doc, or creates it.
func (s *MemoryStorage) Upsert(ctx context.Context, c Collection, doc Document) (Document, error) {
	n, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	return write(ctx, s, c, func(docs []Document) ([]Document, Document, error) {
		for _, existing := range docs {
			if matches(existing, Query(n)) {
				return docs, clone(existing), nil
			}
		}
		return append(docs, n), clone(n), nil
	})
}

// Delete removes the matching documents.
func (s *MemoryStorage) Delete(ctx context.Context, c Collection, q Query) ([]Document, error) {
	nq, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	return write(ctx, s, c, func(docs []Document) ([]Document, []Document, error) {
		kept, removed := applyDelete(docs, nq)
		return kept, removed, nil
	})
}

// Replace swaps the matching documents for docs.
func (s *MemoryStorage) Replace(ctx context.Context, c Collection, q Query, docs []Document) error {
	nq, err := normalizeQuery(q)
	if err != nil {
		return err
	}
	replacement, err := normalizeAll(docs)
	if err != nil {
		return err
	}
	_, err = write(ctx, s, c, func(existing []Document) ([]Document, struct{}, error) {
		return applyReplace(existing, nq, replacement), struct{}{}, nil
	})
	return err
}

// Clear empties the given collections, or all of them.
func (s *MemoryStorage) Clear(ctx context.Context, collections ...Collection) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(collections) == 0 {
			s.collections = make(map[Collection][]Document)
			return struct{}{}, nil
		}
		for _, c := range collections {
			delete(s.collections, c)
		}
		return struct{}{}, nil
	})
	return err
}
