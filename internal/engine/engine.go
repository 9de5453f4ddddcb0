// Package engine defines the search engine contract the rest of the module
// programs against. Drivers live in subpackages.
package engine

import (
	"context"
	"time"
)

// Engine is the full engine facade. Consumers should depend on the narrow
// sub-interfaces instead.
type Engine interface {
	IndexAdmin
	DocumentWriter
	BulkWriter
	HealthChecker
}

// IndexAdmin manages index lifecycle and mappings.
type IndexAdmin interface {
	// CreateIndex creates an index from a body holding "mappings" and
	// optionally "settings".
	CreateIndex(ctx context.Context, name string, body map[string]any) error
	// DeleteIndex removes an index. Deleting a missing index is not an
	// error.
	DeleteIndex(ctx context.Context, name string) error
	// PutMapping updates the property mappings of an existing index.
	PutMapping(ctx context.Context, name string, body map[string]any) error
	// IndexExists reports whether the index is present.
	IndexExists(ctx context.Context, name string) (bool, error)
}

// DocumentWriter applies single-document changes.
type DocumentWriter interface {
	// IndexDocument writes one document under the given id.
	IndexDocument(ctx context.Context, index, docID string, doc map[string]any) error
	// DeleteDocument removes one document. A missing document is not an
	// error.
	DeleteDocument(ctx context.Context, index, docID string) error
}

// BulkWriter opens bulk ingestion sessions.
type BulkWriter interface {
	Bulker(index string) (Bulker, error)
}

// Bulker is one bulk ingestion session. Close flushes outstanding actions
// and reports what happened.
type Bulker interface {
	Index(ctx context.Context, docID string, doc map[string]any) error
	Delete(ctx context.Context, docID string) error
	Close(ctx context.Context) (BulkStats, error)
}

// BulkStats summarizes a bulk session.
type BulkStats struct {
	Indexed uint64
	Deleted uint64
	Failed  uint64
}

// HealthChecker reports engine availability.
type HealthChecker interface {
	Ping(ctx context.Context) error
	// WaitForReady polls until the engine answers pings or the timeout
	// passes.
	WaitForReady(ctx context.Context, timeout time.Duration) error
	// WaitForStatus blocks until the named indices reach the given health
	// status or the timeout passes.
	WaitForStatus(ctx context.Context, indices []string, status string, timeout time.Duration) error
}
