package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mwantia/s3fs/buffer"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/objectstore"
)

// Handle is one open file. Read handles stream the remote object through a
// seekable buffer; write handles collect data locally and upload on Close.
// The available operations depend on the mode used when opening.
type Handle struct {
	mu  sync.Mutex
	log *log.Logger

	mnt    *Mount
	id     string
	uri    string
	path   string
	mode   data.OpenMode
	closed bool

	reader *buffer.Seekable
	info   *ObjectInfo

	writer *buffer.Spill
}

// ObjectInfo aliases the remote metadata returned on open.
type ObjectInfo = objectstore.ObjectInfo

// Open opens uri with an fopen style mode string ("r", "w", "a", "x").
// Mode errors are returned before the object store is contacted.
func (m *Mount) Open(ctx context.Context, uri string, mode string) (h *Handle, err error) {
	defer func(start time.Time) {
		m.observe("open", start, err)
	}(time.Now())

	openMode, err := data.ParseOpenMode(mode)
	if err != nil {
		m.log.Error("Open: rejected mode %q for %s - %v", mode, uri, err)
		return nil, err
	}

	p, err := m.resolve(uri)
	if err != nil {
		return nil, err
	}
	if m.ns.IsRoot(p) {
		return nil, data.ErrIsDirectory
	}

	key := m.ns.URI(p)
	record, err := m.lookup(ctx, key)
	if err != nil && !errors.Is(err, data.ErrNotExist) {
		return nil, err
	}
	if record != nil && record.IsDirectory {
		m.log.Error("Open: %s is a directory", key)
		return nil, data.ErrIsDirectory
	}

	h = &Handle{
		mnt:  m,
		id:   data.NewID(),
		uri:  key,
		path: p,
		mode: openMode,
	}
	h.log = m.log.Named(h.id[len(h.id)-12:])

	m.log.Debug("Open: opening %s with mode %s", key, openMode)

	switch openMode {
	case data.OpenRead:
		err = h.openRead(ctx)
	case data.OpenWrite:
		err = h.openWrite()
	case data.OpenAppend:
		err = h.openAppend(ctx)
	case data.OpenExclusive:
		err = h.openExclusive(ctx, record != nil)
	}
	if err != nil {
		m.log.Error("Open: failed to open %s - %v", key, err)
		return nil, err
	}

	m.register(h)
	return h, nil
}

func (h *Handle) openRead(ctx context.Context) error {
	body, info, err := h.mnt.Client.Get(ctx, h.path, nil)
	if err != nil {
		return err
	}

	h.info = info
	h.reader = buffer.NewSeekable(body,
		buffer.WithSeekLimit(h.mnt.options.SeekLimit),
		buffer.WithSize(info.Size))
	return nil
}

func (h *Handle) openWrite() error {
	h.writer = buffer.NewSpill(h.mnt.options.SpillThreshold, buffer.WithTempDir(h.mnt.options.TempDir))
	return nil
}

// openAppend preloads the existing object, or behaves like write if there is none.
func (h *Handle) openAppend(ctx context.Context) error {
	h.openWrite()

	body, _, err := h.mnt.Client.Get(ctx, h.path, nil)
	if errors.Is(err, data.ErrNotExist) {
		h.log.Debug("Open: %s does not exist, appending to empty file", h.uri)
		return nil
	}
	if err != nil {
		h.writer.Close()
		return err
	}
	defer body.Close()

	n, err := io.Copy(h.writer, body)
	if err != nil {
		h.writer.Close()
		return fmt.Errorf("failed to load %s for append: %w", h.uri, err)
	}
	h.mnt.metrics.RemoteRead(n)

	return nil
}

func (h *Handle) openExclusive(ctx context.Context, cached bool) error {
	if cached {
		return data.ErrModeExclusive
	}

	_, err := h.mnt.Client.Head(ctx, h.path)
	if err == nil {
		return data.ErrModeExclusive
	}
	if !errors.Is(err, data.ErrNotExist) {
		return err
	}

	return h.openWrite()
}

// ID returns the unique identifier of this handle.
func (h *Handle) ID() string {
	return h.id
}

// URI returns the normalized URI this handle was opened for.
func (h *Handle) URI() string {
	return h.uri
}

func (h *Handle) Mode() data.OpenMode {
	return h.mode
}

// IsBusy tries to return the current state of the handle.
// It should be used to determine, if it's safe to close a handle.
func (h *Handle) IsBusy() bool {
	// Try to acquire the lock - if we can't immediately, the handle is busy
	if !h.mu.TryLock() {
		return true
	}
	// We got the lock, so it's not busy - release it
	h.mu.Unlock()

	return false
}

// Read reads up to len(p) bytes at the current offset.
// Returns ErrPermission if the handle was not opened for reading.
func (h *Handle) Read(p []byte) (n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Fail operations if handle has been closed
	if h.closed {
		h.log.Error("Read: attempted to read from closed handle for %s", h.uri)
		return 0, data.ErrClosed
	}

	if !h.mode.CanRead() {
		h.log.Error("Read: no read permission for %s (mode=%s)", h.uri, h.mode)
		return 0, data.ErrPermission
	}

	before := h.reader.Buffered()
	n, err = h.reader.Read(p)
	h.mnt.metrics.RemoteRead(h.reader.Buffered() - before)

	if n > 0 {
		h.log.Debug("Read: read %d bytes from %s, new offset=%d", n, h.uri, h.reader.Tell())
	}
	if err != nil && err != io.EOF {
		h.log.Error("Read: failed to read from %s - %v", h.uri, err)
	}

	return n, err
}

// Write writes len(p) bytes at the current offset into the local buffer.
// Returns ErrPermission if the handle was not opened for writing.
func (h *Handle) Write(p []byte) (n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Fail operations if handle has been closed
	if h.closed {
		h.log.Error("Write: attempted to write to closed handle for %s", h.uri)
		return 0, data.ErrClosed
	}

	if !h.mode.CanWrite() {
		h.log.Error("Write: no write permission for %s (mode=%s)", h.uri, h.mode)
		return 0, data.ErrPermission
	}

	h.log.Debug("Write: writing %d bytes to %s at offset %d", len(p), h.uri, h.writer.Tell())

	n, err = h.writer.Write(p)
	if err != nil {
		h.log.Error("Write: failed to buffer data for %s - %v", h.uri, err)
	}

	return n, err
}

// Seek changes the offset for the next Read or Write.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.log.Error("Seek: attempted to seek in closed handle for %s", h.uri)
		return 0, data.ErrClosed
	}

	if h.reader != nil {
		before := h.reader.Buffered()
		pos, err := h.reader.Seek(offset, whence)
		h.mnt.metrics.RemoteRead(h.reader.Buffered() - before)
		if err != nil {
			h.log.Error("Seek: failed to seek to %d (whence=%d) in %s - %v", offset, whence, h.uri, err)
		}
		return pos, err
	}

	return h.writer.Seek(offset, whence)
}

// Tell returns the current offset.
func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.reader != nil {
		return h.reader.Tell()
	}
	if h.writer != nil {
		return h.writer.Tell()
	}
	return 0
}

// EOF reports whether a read handle consumed the whole object.
// Write handles are always positioned at their own end of data.
func (h *Handle) EOF() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.reader != nil {
		return h.reader.EOF()
	}
	if h.writer != nil {
		return h.writer.Tell() >= h.writer.Len()
	}
	return true
}

// Stat describes the open file as currently seen by this handle.
func (h *Handle) Stat() (*data.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, data.ErrClosed
	}

	if h.info != nil {
		return h.mnt.fileRecord(h.path, h.info), nil
	}

	return data.NewFileRecord(h.uri, uint64(h.writer.Len()), h.mnt.now(), ""), nil
}

// Close releases the handle with a background context.
// See CloseContext.
func (h *Handle) Close() error {
	return h.CloseContext(context.Background())
}

// CloseContext releases the handle. For write modes this uploads the buffered
// data, waits until the store confirms the object and updates the metadata
// cache, all bounded by ctx. The context passed to Open is not used here.
// Closing twice returns ErrClosed.
func (h *Handle) CloseContext(ctx context.Context) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return data.ErrClosed
	}
	h.closed = true
	defer h.mnt.unregister(h)

	if h.reader != nil {
		h.log.Debug("Close: releasing read buffer for %s", h.uri)
		return h.reader.Close()
	}

	defer func(start time.Time) {
		h.mnt.observe("upload", start, err)
	}(time.Now())

	defer func() {
		if cerr := h.writer.Close(); cerr != nil {
			h.log.Warn("Close: failed to release write buffer for %s - %v", h.uri, cerr)
		}
	}()

	return h.flush(ctx)
}

// flush uploads the write buffer and records the confirmed object.
func (h *Handle) flush(ctx context.Context) error {
	size := h.writer.Len()
	if err := h.writer.Rewind(); err != nil {
		return err
	}

	contentType := h.mnt.contentType(h.path)
	h.log.Debug("Close: uploading %d bytes to %s as %s", size, h.uri, contentType)

	if err := h.mnt.Client.Put(ctx, h.path, h.writer, size, contentType, objectstore.PublicRead); err != nil {
		h.log.Error("Close: failed to upload %s - %v", h.uri, err)
		return fmt.Errorf("%w: %s: %w", data.ErrUploadFailed, h.uri, err)
	}
	h.mnt.metrics.RemoteWrite(size)
	h.mnt.invalidate(ctx, h.uri)

	info, err := h.mnt.confirm(ctx, h.path)
	if err != nil {
		h.log.Error("Close: upload of %s was not confirmed - %v", h.uri, err)
		return err
	}

	if err := h.mnt.writeRecords(ctx, h.mnt.fileRecord(h.path, info)); err != nil {
		h.log.Error("Close: failed to cache metadata for %s - %v", h.uri, err)
		return fmt.Errorf("%w: %s: %w", data.ErrCacheDiverged, h.uri, err)
	}

	return nil
}

// confirm polls the store until key becomes visible, bounded by the
// configured attempts and by ctx.
func (m *Mount) confirm(ctx context.Context, key string) (*ObjectInfo, error) {
	attempts := m.options.ConfirmAttempts

	var lastErr error
	for attempt := 1; ; attempt++ {
		info, err := m.Client.Head(ctx, key)
		if err == nil {
			m.log.Debug("confirm: %s visible after %d attempt(s)", key, attempt)
			return info, nil
		}
		lastErr = err

		if attempt >= attempts {
			break
		}

		timer := time.NewTimer(m.options.ConfirmInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", data.ErrConsistency, key, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: %s not visible after %d attempts: %w", data.ErrConsistency, key, attempts, lastErr)
}

// contentType picks the upload content type from the extension of key.
func (m *Mount) contentType(key string) string {
	return m.options.ContentTypes.Lookup(key).String()
}
