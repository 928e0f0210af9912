package cache

import (
	"context"

	"github.com/mwantia/s3fs/data"
)

// Store persists metadata records keyed by URI.
// It holds no filesystem rules: ancestor synthesis and expiry are
// decided by the caller.
type Store interface {
	// Name returns the identifier name defined for this store.
	Name() string

	// Open is part of the lifecycle behaviour and gets called when opening this store.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and gets called when closing this store.
	Close(ctx context.Context) error

	// Get returns the record stored under uri, or data.ErrNotExist.
	Get(ctx context.Context, uri string) (*data.Record, error)

	// Put upserts every record in one atomic batch.
	Put(ctx context.Context, records ...*data.Record) error

	// Delete removes every uri in one atomic batch. Missing entries are ignored.
	Delete(ctx context.Context, uris ...string) error

	// Query returns records matching query ordered by URI.
	Query(ctx context.Context, query *Query) ([]*data.Record, error)
}

// Reconcilable is implemented by stores that support rebuilding
// their content from a staging table.
type Reconcilable interface {
	Store

	// BeginStaging creates an empty staging area, replacing any leftover one.
	BeginStaging(ctx context.Context) (Staging, error)
}

// Staging collects records before they replace live content.
type Staging interface {
	// Put upserts records into the staging area.
	Put(ctx context.Context, records ...*data.Record) error

	// Swap replaces the whole live content with the staging area.
	Swap(ctx context.Context) error

	// Merge replaces every live record under prefix with the staging
	// area in one transaction. Records outside prefix are untouched.
	Merge(ctx context.Context, prefix string) error

	// Discard drops the staging area without touching live content.
	Discard(ctx context.Context) error
}
