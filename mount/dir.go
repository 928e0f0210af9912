package mount

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
)

// Dir is a materialized, restartable listing of one directory.
type Dir struct {
	mu      sync.Mutex
	uri     string
	records []*data.Record
	cursor  int
	closed  bool
}

// OpenDir lists the direct children of the directory uri from the cache.
func (m *Mount) OpenDir(ctx context.Context, uri string) (d *Dir, err error) {
	defer func(start time.Time) {
		m.observe("opendir", start, err)
	}(time.Now())

	record, err := m.stat(ctx, uri)
	if err != nil {
		m.log.Error("OpenDir: failed to stat %s - %v", uri, err)
		return nil, err
	}
	if !record.IsDirectory {
		return nil, data.ErrNotDirectory
	}

	records, err := m.Store.Query(ctx, cache.ChildrenOf(record.URI))
	if err != nil {
		m.log.Error("OpenDir: failed to query children of %s - %v", record.URI, err)
		return nil, err
	}

	now := m.now()
	children := make([]*data.Record, 0, len(records))
	for _, child := range records {
		if !child.Expired(now) {
			children = append(children, child)
		}
	}

	m.log.Debug("OpenDir: %s has %d entries", record.URI, len(children))

	return &Dir{
		uri:     record.URI,
		records: children,
	}, nil
}

// ReadDir returns the records of the direct children of uri.
func (m *Mount) ReadDir(ctx context.Context, uri string) ([]*data.Record, error) {
	d, err := m.OpenDir(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Records(), nil
}

// URI returns the directory this listing belongs to.
func (d *Dir) URI() string {
	return d.uri
}

// Read returns the next entry name, or io.EOF at the end of the listing.
func (d *Dir) Read() (string, error) {
	record, err := d.Next()
	if err != nil {
		return "", err
	}
	return data.Basename(record.URI), nil
}

// Next returns the next entry record, or io.EOF at the end of the listing.
func (d *Dir) Next() (*data.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, data.ErrClosed
	}
	if d.cursor >= len(d.records) {
		return nil, io.EOF
	}

	record := d.records[d.cursor]
	d.cursor++
	return record.Clone(), nil
}

// Rewind restarts the listing from its first entry.
func (d *Dir) Rewind() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return data.ErrClosed
	}

	d.cursor = 0
	return nil
}

// Records returns every entry of the listing.
func (d *Dir) Records() []*data.Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]*data.Record, len(d.records))
	for i, record := range d.records {
		result[i] = record.Clone()
	}
	return result
}

func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return data.ErrClosed
	}

	d.closed = true
	d.records = nil
	return nil
}
