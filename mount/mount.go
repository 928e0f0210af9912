package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/metrics"
	"github.com/mwantia/s3fs/objectstore"
	"golang.org/x/sync/singleflight"
)

// Invalidator is notified about URIs whose remote object changed.
type Invalidator interface {
	Remove(ctx context.Context, uris ...string) error
}

// Mount presents one bucket area as a hierarchical filesystem.
// Directories exist only as records in the metadata cache.
type Mount struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	ns      data.Namespace
	owner   string
	options *MountOptions
	log     *log.Logger
	metrics *metrics.Collector
	group   singleflight.Group

	invalidators []Invalidator

	MountTime time.Time // When the mount was created.

	Client objectstore.Client
	Store  cache.Store
}

func New(cfg Config, client objectstore.Client, store cache.Store, opts ...MountOption) (*Mount, error) {
	if cfg.Scheme == "" {
		return nil, fmt.Errorf("%w: mount scheme is required", data.ErrConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: object store client is required", data.ErrConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: metadata cache store is required", data.ErrConfig)
	}

	options := newDefaultMountOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	owner := cfg.DirectoryOwner
	if owner == "" {
		owner = "S3 File System"
	}

	return &Mount{
		handles:   make(map[string]*Handle),
		ns:        data.NewNamespace(cfg.Scheme, cfg.Prefix),
		owner:     owner,
		options:   options,
		log:       options.Logger,
		metrics:   options.Metrics,
		MountTime: options.Clock(),
		Client:    client,
		Store:     store,
	}, nil
}

// AddInvalidator registers i to be told about changed URIs.
func (m *Mount) AddInvalidator(i Invalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidators = append(m.invalidators, i)
}

// Namespace returns the URI namespace served by this mount.
func (m *Mount) Namespace() data.Namespace {
	return m.ns
}

// Mount is part of the lifecycle behaviour and opens the client and the store.
func (m *Mount) Mount(ctx context.Context) error {
	errs := data.Errors{}
	errs.Add(m.Client.Open(ctx))
	errs.Add(m.Store.Open(ctx))

	return errs.Errors()
}

// Unmount closes every open handle and then the client and the store.
// It fails with data.ErrBusy while a handle is in use unless force is set.
func (m *Mount) Unmount(ctx context.Context, force bool) error {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		if h.IsBusy() && !force {
			m.mu.RUnlock()
			return data.ErrBusy
		}
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	errs := data.Errors{}
	for _, h := range handles {
		if err := h.CloseContext(ctx); err != nil && !errors.Is(err, data.ErrClosed) {
			errs.Add(err)
		}
	}

	errs.Add(m.Client.Close(ctx))
	errs.Add(m.Store.Close(ctx))

	return errs.Errors()
}

// Handles returns the number of open handles.
func (m *Mount) Handles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handles)
}

func (m *Mount) register(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handles[h.id] = h
	m.metrics.HandleOpened()
}

func (m *Mount) unregister(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.handles[h.id]; exists {
		delete(m.handles, h.id)
		m.metrics.HandleClosed()
	}
}

func (m *Mount) now() time.Time {
	return m.options.Clock()
}

// resolve maps uri onto a store key inside the mount.
func (m *Mount) resolve(uri string) (string, error) {
	path, err := m.ns.Path(uri)
	if err != nil {
		return "", err
	}
	if !m.ns.IsRoot(path) && !m.ns.Contains(path) {
		return "", fmt.Errorf("%w: %s is outside the mount", data.ErrInvalidPath, uri)
	}
	return path, nil
}

func (m *Mount) rootRecord() *data.Record {
	return data.NewDirectoryRecord(m.ns.Root(), m.MountTime, m.owner)
}

// fileRecord converts remote metadata into a cache record.
func (m *Mount) fileRecord(path string, info *objectstore.ObjectInfo) *data.Record {
	size := uint64(0)
	if info.Size > 0 {
		size = uint64(info.Size)
	}

	record := data.NewFileRecord(m.ns.URI(path), size, info.LastModified, info.Owner)
	if m.options.RecordTTL > 0 {
		record.Expires = m.now().Add(m.options.RecordTTL)
	}
	return record
}

func (m *Mount) directoryRecord(path string) *data.Record {
	return data.NewDirectoryRecord(m.ns.URI(path), m.now(), m.owner)
}

// lookup reads uri from the cache. Expired records are deleted and
// reported as data.ErrNotExist.
func (m *Mount) lookup(ctx context.Context, uri string) (*data.Record, error) {
	record, err := m.Store.Get(ctx, uri)
	if errors.Is(err, data.ErrNotExist) {
		m.metrics.CacheLookup(metrics.CacheMiss)
		return nil, data.ErrNotExist
	}
	if err != nil {
		return nil, err
	}

	if record.Expired(m.now()) {
		m.metrics.CacheLookup(metrics.CacheExpired)
		m.log.Debug("lookup: removing expired record for %s", uri)
		if err := m.Store.Delete(ctx, uri); err != nil {
			m.log.Warn("lookup: failed to remove expired record for %s - %v", uri, err)
		}
		return nil, data.ErrNotExist
	}

	m.metrics.CacheLookup(metrics.CacheHit)
	return record, nil
}

// writeRecords upserts records together with every missing ancestor
// directory below the mount root in a single batch.
func (m *Mount) writeRecords(ctx context.Context, records ...*data.Record) error {
	batch := make([]*data.Record, 0, len(records))
	seen := make(map[string]struct{})

	for _, record := range records {
		batch = append(batch, record)
		seen[record.URI] = struct{}{}

		path, err := m.ns.Path(record.URI)
		if err != nil {
			return err
		}

		for _, ancestor := range m.ns.Ancestors(path) {
			uri := m.ns.URI(ancestor)
			if _, exists := seen[uri]; exists {
				break
			}
			seen[uri] = struct{}{}

			if _, err := m.lookup(ctx, uri); err == nil {
				// Ancestors above an existing record were written with it
				break
			} else if !errors.Is(err, data.ErrNotExist) {
				return err
			}
			batch = append(batch, m.directoryRecord(ancestor))
		}
	}

	return m.Store.Put(ctx, batch...)
}

func (m *Mount) invalidate(ctx context.Context, uris ...string) {
	m.mu.RLock()
	invalidators := m.invalidators
	m.mu.RUnlock()

	for _, i := range invalidators {
		if err := i.Remove(ctx, uris...); err != nil {
			m.log.Warn("invalidate: failed to invalidate %v - %v", uris, err)
		}
	}
}

func (m *Mount) observe(op string, start time.Time, err error) {
	m.metrics.ObserveOperation(op, start, err)
}
