package mount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore"
)

// Unlink deletes the file at uri remotely and then from the cache.
// A remote failure leaves the cache untouched; a cache failure after the
// remote delete is reported as data.ErrCacheDiverged.
func (m *Mount) Unlink(ctx context.Context, uri string) (err error) {
	defer func(start time.Time) {
		m.observe("unlink", start, err)
	}(time.Now())

	path, err := m.resolve(uri)
	if err != nil {
		return err
	}
	if m.ns.IsRoot(path) {
		return data.ErrIsDirectory
	}

	key := m.ns.URI(path)
	m.log.Debug("Unlink: removing %s", key)

	record, err := m.lookup(ctx, key)
	if err != nil && !errors.Is(err, data.ErrNotExist) {
		return err
	}
	if record != nil && record.IsDirectory {
		m.log.Error("Unlink: %s is a directory", key)
		return data.ErrIsDirectory
	}

	return m.unlink(ctx, path)
}

func (m *Mount) unlink(ctx context.Context, path string) error {
	key := m.ns.URI(path)

	if err := m.Client.Delete(ctx, path); err != nil {
		m.log.Error("Unlink: failed to delete remote object %s - %v", key, err)
		return err
	}
	m.invalidate(ctx, key)

	if err := m.Store.Delete(ctx, key); err != nil {
		m.log.Error("Unlink: remote object %s deleted but cache delete failed - %v", key, err)
		return fmt.Errorf("%w: %s: %w", data.ErrCacheDiverged, key, err)
	}

	return nil
}

// Rename copies the file at from to to, moves its cache record and
// removes the original. A failed copy leaves both the store and the cache
// untouched. A failed removal of the original leaves a duplicate object
// that a retry resolves.
func (m *Mount) Rename(ctx context.Context, from, to string) (err error) {
	defer func(start time.Time) {
		m.observe("rename", start, err)
	}(time.Now())

	fromPath, err := m.resolve(from)
	if err != nil {
		return err
	}
	toPath, err := m.resolve(to)
	if err != nil {
		return err
	}
	if m.ns.IsRoot(fromPath) || m.ns.IsRoot(toPath) {
		return data.ErrIsDirectory
	}

	fromKey, toKey := m.ns.URI(fromPath), m.ns.URI(toPath)
	m.log.Debug("Rename: moving %s to %s", fromKey, toKey)

	source, err := m.stat(ctx, fromKey)
	if err != nil {
		m.log.Error("Rename: failed to stat source %s - %v", fromKey, err)
		return err
	}
	if source.IsDirectory {
		m.log.Error("Rename: %s is a directory", fromKey)
		return data.ErrIsDirectory
	}
	if fromPath == toPath {
		return nil
	}

	target, err := m.lookup(ctx, toKey)
	if err != nil && !errors.Is(err, data.ErrNotExist) {
		return err
	}
	if target != nil && target.IsDirectory {
		m.log.Error("Rename: target %s is a directory", toKey)
		return data.ErrIsDirectory
	}

	if err := m.Client.Copy(ctx, fromPath, toPath, objectstore.PublicRead); err != nil {
		m.log.Error("Rename: failed to copy %s to %s - %v", fromKey, toKey, err)
		return err
	}
	m.invalidate(ctx, toKey)

	moved := source.Clone()
	moved.URI = toKey
	if err := m.writeRecords(ctx, moved); err != nil {
		m.log.Error("Rename: failed to cache %s - %v", toKey, err)
		return fmt.Errorf("%w: %s: %w", data.ErrCacheDiverged, toKey, err)
	}

	if err := m.unlink(ctx, fromPath); err != nil {
		return fmt.Errorf("failed to remove %s after copying it to %s: %w", fromKey, toKey, err)
	}

	return nil
}

// Mkdir creates the directory uri in the cache. An existing directory is
// not an error, an existing file is. Without recursive the parent must
// already be a directory.
func (m *Mount) Mkdir(ctx context.Context, uri string, recursive bool) (err error) {
	defer func(start time.Time) {
		m.observe("mkdir", start, err)
	}(time.Now())

	path, err := m.resolve(uri)
	if err != nil {
		return err
	}
	if m.ns.IsRoot(path) {
		return nil
	}

	key := m.ns.URI(path)
	m.log.Debug("Mkdir: creating %s (recursive=%v)", key, recursive)

	existing, err := m.lookup(ctx, key)
	if err == nil {
		if existing.IsDirectory {
			return nil
		}
		m.log.Error("Mkdir: %s already exists as a file", key)
		return data.ErrExist
	}
	if !errors.Is(err, data.ErrNotExist) {
		return err
	}

	records := []*data.Record{m.directoryRecord(path)}
	for _, ancestor := range m.ns.Ancestors(path) {
		parent, err := m.lookup(ctx, m.ns.URI(ancestor))
		if err == nil {
			if !parent.IsDirectory {
				m.log.Error("Mkdir: ancestor %s is a file", parent.URI)
				return data.ErrNotDirectory
			}
			break
		}
		if !errors.Is(err, data.ErrNotExist) {
			return err
		}
		if !recursive {
			m.log.Error("Mkdir: parent of %s does not exist", key)
			return data.ErrNotExist
		}
		records = append(records, m.directoryRecord(ancestor))
	}

	return m.Store.Put(ctx, records...)
}

// Rmdir removes the empty directory uri. A directory is empty when neither
// the cache nor the store hold anything below it.
func (m *Mount) Rmdir(ctx context.Context, uri string) (err error) {
	defer func(start time.Time) {
		m.observe("rmdir", start, err)
	}(time.Now())

	path, err := m.resolve(uri)
	if err != nil {
		return err
	}
	if m.ns.IsRoot(path) {
		return data.ErrPermission
	}

	key := m.ns.URI(path)
	m.log.Debug("Rmdir: removing %s", key)

	record, err := m.lookup(ctx, key)
	if err != nil {
		return err
	}
	if !record.IsDirectory {
		return data.ErrNotDirectory
	}

	children, err := m.Store.Query(ctx, &cache.Query{Prefix: key + "/", Limit: 1})
	if err != nil {
		return err
	}
	if len(children) > 0 {
		m.log.Error("Rmdir: %s still contains %s", key, children[0].URI)
		return data.ErrDirectoryNotEmpty
	}

	marker := path + "/"
	page, err := m.Client.List(ctx, marker, 2, "")
	if err != nil {
		return err
	}

	hasMarker := false
	for _, obj := range page.Objects {
		if obj.Key != marker {
			m.log.Error("Rmdir: %s still contains remote object %s", key, obj.Key)
			return data.ErrDirectoryNotEmpty
		}
		hasMarker = true
	}

	if hasMarker {
		if err := m.Client.Delete(ctx, marker); err != nil {
			return err
		}
	}

	if err := m.Store.Delete(ctx, key); err != nil {
		if hasMarker {
			return fmt.Errorf("%w: %s: %w", data.ErrCacheDiverged, key, err)
		}
		return err
	}

	return nil
}
