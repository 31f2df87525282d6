// Package store is the thin contract over the external key-document store
// (C1 in SPEC_FULL.md). It is deliberately narrow: create, read, update,
// delete, scan on a single named collection. No transactional or
// conditional-write guarantees are offered; all concurrency control lives
// in internal/memoryservice.
//
// Grounded on internal/persistence/databases/interfaces.go's capability-
// interface shape and databases/factory.go's backend-selection-by-string
// factory.
package store

import (
	"context"
	"errors"
)

// ErrAlreadyExists is returned by Create when the document id collides.
var ErrAlreadyExists = errors.New("store: document already exists")

// Document is an opaque, canonically-serializable document keyed by ID.
// The memory service is the only caller that knows the real shape; the
// store treats it as a map so collection-specific backends never need to
// depend on internal/memoryservice's record type.
type Document map[string]any

// ID returns doc["id"] as a string, or "" if absent/wrong type.
func (d Document) ID() string {
	v, _ := d["id"].(string)
	return v
}

// Collection is the per-collection CRUD + scan contract (spec §4.1).
type Collection interface {
	// Create stores doc. Fails with ErrAlreadyExists when doc's id collides.
	Create(ctx context.Context, doc Document) (Document, error)
	// Read returns the doc for id, or (nil, false) if absent.
	Read(ctx context.Context, id string) (Document, bool, error)
	// Update merges partial over the stored doc and returns the merged
	// result, or (nil, false) if the id is absent. Because encoding/json
	// drops omitempty fields a caller sets to their zero value, Update can
	// never persist "clear this list/field back to empty" — callers that
	// already hold the complete, intended document must use Replace instead.
	Update(ctx context.Context, id string, partial Document) (Document, bool, error)
	// Replace overwrites the stored doc with doc in full (no merge) and
	// returns it, or (nil, false) if the id is absent. This is the correct
	// call for writers that read-modify-write a whole record, since it
	// persists fields the writer cleared back to a zero value/empty list.
	Replace(ctx context.Context, id string, doc Document) (Document, bool, error)
	// Delete removes the doc for id. Returns true iff a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// Scan returns every document currently in the collection. Each call is
	// a fresh, restartable snapshot; implementations may return a copy.
	Scan(ctx context.Context) ([]Document, error)
	// Close releases any resources (file handles, pool connections) owned
	// by this backend. Safe to call multiple times.
	Close() error
}

// New constructs a Collection for the named collection ("memories" in this
// service) based on cfg.DatabaseType ("json-file" or "postgres"), mirroring
// databases/factory.go's NewManager switch-over-backend-string shape.
func New(ctx context.Context, databaseType, jsonDir, postgresDSN, collection string) (Collection, error) {
	switch databaseType {
	case "", "json-file":
		return newJSONFileCollection(jsonDir, collection)
	case "postgres", "pg":
		return newPostgresCollection(ctx, postgresDSN, collection)
	default:
		return nil, errors.New("store: unsupported DATABASE_TYPE: " + databaseType)
	}
}

func mergeDocument(base, partial Document) Document {
	out := make(Document, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func copyDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
