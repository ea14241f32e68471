package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/songzhibin97/workflow-steps/types"
)

// Collection names a set of documents.
type Collection string

const (
	CollectionSteps       Collection = "workflowSteps"
	CollectionConnections Collection = "workflowStepConnections"
)

// Document is a stored record. Documents are JSON normalized on write, so
// numbers are float64 and nested values are maps and slices.
type Document map[string]interface{}

// Query selects the documents whose fields equal every value of the query.
// An empty query matches every document.
type Query map[string]interface{}

// Errors
var (
	ErrNotFound  = errors.New("document not found")
	ErrConflict  = errors.New("concurrent modification")
	ErrEmptyName = errors.New("collection name is empty")
)

// Storage is a keyed record store holding named collections of documents.
// Every operation is atomic with respect to a single collection.
type Storage interface {
	// Create appends doc to the collection.
	Create(ctx context.Context, c Collection, doc Document) (Document, error)

	// Find returns the matching documents in insertion order.
	Find(ctx context.Context, c Collection, q Query) ([]Document, error)

	// FindOne returns the first matching document or ErrNotFound.
	FindOne(ctx context.Context, c Collection, q Query) (Document, error)

	// Update merges patch into every matching document and returns them.
	Update(ctx context.Context, c Collection, q Query, patch Document) ([]Document, error)

	// Upsert returns the first document holding every field of doc, creating
	// doc when there is none.
	Upsert(ctx context.Context, c Collection, doc Document) (Document, error)

	// Delete removes the matching documents and returns them.
	Delete(ctx context.Context, c Collection, q Query) ([]Document, error)

	// Replace swaps every matching document for docs in one step. docs take
	// the position of the first match, so stored order survives an edit.
	Replace(ctx context.Context, c Collection, q Query, docs []Document) error

	// Clear empties the given collections, or every collection when none is given.
	Clear(ctx context.Context, collections ...Collection) error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// Encode converts v into a document through its JSON form.
func Encode(v interface{}) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %v", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to unmarshal document: %T is not an object", v)
	}
	return doc, nil
}

// Decode fills out from doc through its JSON form.
func Decode(doc Document, out interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document into %T: %v", out, err)
	}
	return nil
}

func normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	return Encode(doc)
}

func normalizeAll(docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		n, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func clone(doc Document) Document {
	return Document(types.Updates(doc).Clone())
}

func cloneAll(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, clone(doc))
	}
	return out
}

// matches reports whether doc holds every field of q. q must be normalized.
func matches(doc Document, q Query) bool {
	for k, want := range q {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func normalizeQuery(q Query) (Query, error) {
	doc, err := normalize(Document(q))
	if err != nil {
		return nil, err
	}
	return Query(doc), nil
}

// The apply helpers compute the next state of a collection. They never
// modify docs and are shared by every backend.

func applyFind(docs []Document, q Query) []Document {
	out := make([]Document, 0)
	for _, doc := range docs {
		if matches(doc, q) {
			out = append(out, clone(doc))
		}
	}
	return out
}

func applyUpdate(docs []Document, q Query, patch Document) (next, updated []Document) {
	next = make([]Document, 0, len(docs))
	updated = make([]Document, 0)
	for _, doc := range docs {
		if !matches(doc, q) {
			next = append(next, doc)
			continue
		}
		changed := clone(doc)
		for k, v := range patch {
			changed[k] = v
		}
		next = append(next, changed)
		updated = append(updated, clone(changed))
	}
	return next, updated
}

func applyDelete(docs []Document, q Query) (kept, removed []Document) {
	kept = make([]Document, 0, len(docs))
	removed = make([]Document, 0)
	for _, doc := range docs {
		if matches(doc, q) {
			removed = append(removed, clone(doc))
			continue
		}
		kept = append(kept, doc)
	}
	return kept, removed
}

// applyReplace puts replacement where the first match stood, or at the end
// when nothing matches.
func applyReplace(docs []Document, q Query, replacement []Document) []Document {
	next := make([]Document, 0, len(docs)+len(replacement))
	placed := false
	for _, doc := range docs {
		if !matches(doc, q) {
			next = append(next, doc)
			continue
		}
		if !placed {
			next = append(next, replacement...)
			placed = true
		}
	}
	if !placed {
		next = append(next, replacement...)
	}
	return next
}

func validCollection(c Collection) error {
	if c == "" {
		return ErrEmptyName
	}
	return nil
}
