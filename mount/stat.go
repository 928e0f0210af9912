package mount

import (
	"context"
	"errors"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/metrics"
)

// Stat returns the record for uri. Cache misses are resolved remotely and
// written back; concurrent misses for the same key share one lookup.
// With data.StatQuiet every failure is reported as data.ErrNotExist.
func (m *Mount) Stat(ctx context.Context, uri string, flags data.StatFlags) (record *data.Record, err error) {
	defer func(start time.Time) {
		m.observe("stat", start, err)
	}(time.Now())

	m.log.Debug("Stat: resolving %s", uri)

	record, err = m.stat(ctx, uri)
	if err != nil {
		if flags&data.StatQuiet != 0 {
			m.log.Debug("Stat: quiet lookup of %s failed - %v", uri, err)
			return nil, data.ErrNotExist
		}
		if !errors.Is(err, data.ErrNotExist) {
			m.log.Error("Stat: failed to stat %s - %v", uri, err)
		}
		return nil, err
	}

	return record, nil
}

// Exists reports whether uri resolves to a file or directory.
func (m *Mount) Exists(ctx context.Context, uri string) bool {
	_, err := m.Stat(ctx, uri, data.StatQuiet)
	return err == nil
}

func (m *Mount) stat(ctx context.Context, uri string) (*data.Record, error) {
	path, err := m.resolve(uri)
	if err != nil {
		return nil, err
	}
	if m.ns.IsRoot(path) {
		return m.rootRecord(), nil
	}

	key := m.ns.URI(path)
	record, err := m.lookup(ctx, key)
	if err == nil {
		if m.options.IgnoreCache && !record.IsDirectory {
			m.metrics.CacheLookup(metrics.CacheBypass)
			m.log.Debug("Stat: bypassing cached record for %s", key)
			return m.fetch(ctx, path)
		}
		return record, nil
	}
	if !errors.Is(err, data.ErrNotExist) {
		return nil, err
	}

	result, err, shared := m.group.Do(path, func() (any, error) {
		record, err := m.fetch(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := m.writeRecords(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("Stat: shared remote lookup for %s", key)
	}

	return result.(*data.Record).Clone(), nil
}

// fetch resolves path against the object store. A key without an exact
// object is a directory when at least one key lives below it.
func (m *Mount) fetch(ctx context.Context, path string) (*data.Record, error) {
	info, err := m.Client.Head(ctx, path)
	if err == nil {
		return m.fileRecord(path, info), nil
	}
	if !errors.Is(err, data.ErrNotExist) {
		return nil, err
	}

	page, err := m.Client.List(ctx, path+"/", 1, "")
	if err != nil {
		return nil, err
	}
	if len(page.Objects) > 0 {
		return m.directoryRecord(path), nil
	}

	return nil, data.ErrNotExist
}
