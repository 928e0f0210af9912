package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore"
)

// LocalClient stores every object as a file below a root directory.
// Directories are reported as prefix markers.
type LocalClient struct {
	mu   sync.RWMutex
	path string
}

func NewLocalClient(path string) (*LocalClient, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: local store path is required", data.ErrConfig)
	}

	return &LocalClient{
		path: filepath.Clean(path),
	}, nil
}

// Name returns the identifier of this client implementation.
func (*LocalClient) Name() string {
	return "local"
}

// Bucket returns the name of the root directory.
func (lc *LocalClient) Bucket() string {
	return filepath.Base(lc.path)
}

// Open is part of the lifecycle behaviour and verifies the root directory exists.
func (lc *LocalClient) Open(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	info, err := os.Stat(lc.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return data.ErrPermission
		}
		return fmt.Errorf("%w: local store path %s: %v", data.ErrConfig, lc.path, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: local store path %s is not a directory", data.ErrConfig, lc.path)
	}

	return nil
}

// Close is part of the lifecycle behaviour; the files persist independently.
func (*LocalClient) Close(ctx context.Context) error {
	return nil
}

// resolvePath maps key below the root directory.
func (lc *LocalClient) resolvePath(key string) (string, error) {
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q", data.ErrInvalidPath, key)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", data.ErrInvalidPath, key)
		}
	}

	return filepath.Join(lc.path, filepath.FromSlash(trimmed)), nil
}

func (lc *LocalClient) toObjectInfo(key string, info os.FileInfo) *objectstore.ObjectInfo {
	if info.IsDir() {
		return &objectstore.ObjectInfo{
			Key:            strings.TrimSuffix(key, "/") + "/",
			LastModified:   info.ModTime(),
			Owner:          "local",
			ContentType:    objectstore.DirectoryContentType,
			IsPrefixMarker: true,
		}
	}

	return &objectstore.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Owner:        "local",
		ContentType:  data.GetMIMEType(key).String(),
	}
}

// stat returns the info of key; files and markers are distinct objects.
func (lc *LocalClient) stat(key string) (string, os.FileInfo, error) {
	fullPath, err := lc.resolvePath(key)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, data.ErrNotExist
		}
		if errors.Is(err, fs.ErrPermission) {
			return "", nil, data.ErrPermission
		}
		return "", nil, err
	}

	if info.IsDir() != strings.HasSuffix(key, "/") {
		return "", nil, data.ErrNotExist
	}

	return fullPath, info, nil
}

func (lc *LocalClient) Get(ctx context.Context, key string, rng *objectstore.Range) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	fullPath, info, err := lc.stat(key)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return io.NopCloser(strings.NewReader("")), lc.toObjectInfo(key, info), nil
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, err
	}

	if rng == nil {
		return file, lc.toObjectInfo(key, info), nil
	}

	end := rng.End
	if end < 0 || end >= info.Size() {
		end = info.Size() - 1
	}
	if rng.Start < 0 || rng.Start > end+1 {
		file.Close()
		return nil, nil, fmt.Errorf("%w: invalid range %d-%d", data.ErrInvalid, rng.Start, rng.End)
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, err
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(file, end-rng.Start+1), file}, lc.toObjectInfo(key, info), nil
}

func (lc *LocalClient) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, visibility objectstore.Visibility) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.put(key, body, size)
}

// put writes into a temporary file next to the target and renames it into place.
// The caller must hold mu.
func (lc *LocalClient) put(key string, body io.Reader, size int64) error {
	fullPath, err := lc.resolvePath(key)
	if err != nil {
		return err
	}

	if strings.HasSuffix(key, "/") {
		return os.MkdirAll(fullPath, 0o755)
	}
	if body == nil {
		body = strings.NewReader("")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if size >= 0 && written != size {
		return fmt.Errorf("%w: expected %d bytes, got %d", data.ErrInvalid, size, written)
	}

	return os.Rename(tmp.Name(), fullPath)
}

func (lc *LocalClient) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	fullPath, info, err := lc.stat(key)
	if errors.Is(err, data.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.IsDir() {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return err
		}
		// A directory with content stays as implied prefix
		if len(entries) > 0 {
			return nil
		}
	}

	return os.Remove(fullPath)
}

func (lc *LocalClient) Copy(ctx context.Context, srcKey, dstKey string, visibility objectstore.Visibility) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	srcPath, info, err := lc.stat(srcKey)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return lc.put(dstKey, nil, 0)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	return lc.put(dstKey, src, info.Size())
}

func (lc *LocalClient) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	_, info, err := lc.stat(key)
	if err != nil {
		return nil, err
	}

	return lc.toObjectInfo(key, info), nil
}

// List walks the root directory and pages through the sorted keys.
// The token is the last key of the previous page.
func (lc *LocalClient) List(ctx context.Context, prefix string, pageSize int, token string) (*objectstore.ListPage, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	if pageSize <= 0 {
		pageSize = 1000
	}

	infos := make(map[string]os.FileInfo)
	err := filepath.WalkDir(lc.path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == lc.path || strings.HasPrefix(entry.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(lc.path, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if entry.IsDir() {
			key += "/"
		}

		// Skip directories that cannot contain a match
		if entry.IsDir() && !strings.HasPrefix(key, prefix) && !strings.HasPrefix(prefix, key) {
			return filepath.SkipDir
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		infos[key] = info
		return nil
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(infos))
	for key := range infos {
		if token == "" || key > token {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	page := &objectstore.ListPage{}
	for _, key := range keys {
		if len(page.Objects) == pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, lc.toObjectInfo(key, infos[key]))
	}

	return page, nil
}

// ObjectURL returns the file URL of key.
func (lc *LocalClient) ObjectURL(key string, secure bool) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(filepath.Join(lc.path, filepath.FromSlash(key))),
	}
	return u.String()
}

// PresignGet returns the file URL of key; local files carry no signature.
func (lc *LocalClient) PresignGet(ctx context.Context, key string, expiry time.Duration, params url.Values) (string, error) {
	if len(params) == 0 {
		return lc.ObjectURL(key, true), nil
	}
	return lc.ObjectURL(key, true) + "?" + params.Encode(), nil
}
