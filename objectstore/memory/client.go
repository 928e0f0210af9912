package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore"
	"github.com/tidwall/btree"
)

// Op identifies a client call for fault injection and call counting.
type Op string

const (
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpCopy   Op = "copy"
	OpHead   Op = "head"
	OpList   Op = "list"
)

type memoryObject struct {
	content     []byte
	modified    time.Time
	contentType string
	visibility  objectstore.Visibility

	// Remaining head calls that report the object as missing
	hidden int
}

// MemoryClient is an in-process object store ordered by key.
// It counts calls and can inject failures and visibility delays.
type MemoryClient struct {
	mu      sync.RWMutex
	bucket  string
	owner   string
	objects *btree.Map[string, *memoryObject]
	now     func() time.Time

	failures map[Op]error
	calls    map[Op]int
	delay    int
}

func NewMemoryClient(bucket string) *MemoryClient {
	return &MemoryClient{
		bucket:   bucket,
		owner:    "memory",
		objects:  btree.NewMap[string, *memoryObject](0),
		now:      time.Now,
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
	}
}

// Name returns the identifier of this client implementation.
func (*MemoryClient) Name() string {
	return "memory"
}

func (mc *MemoryClient) Bucket() string {
	return mc.bucket
}

// Open is part of the lifecycle behaviour; the memory store is always available.
func (*MemoryClient) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour; stored objects survive it.
func (*MemoryClient) Close(ctx context.Context) error {
	return nil
}

// SetClock replaces the time source used for modification times.
func (mc *MemoryClient) SetClock(now func() time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.now = now
}

// Seed stores content under key without counting a call.
func (mc *MemoryClient) Seed(key string, content []byte) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.objects.Set(key, &memoryObject{
		content:     bytes.Clone(content),
		modified:    mc.now(),
		contentType: "application/octet-stream",
		visibility:  objectstore.Private,
	})
}

// FailOn makes every following call of op return err until cleared.
func (mc *MemoryClient) FailOn(op Op, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.failures[op] = err
}

// ClearFailures removes every injected failure.
func (mc *MemoryClient) ClearFailures() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.failures = make(map[Op]error)
}

// SetVisibilityDelay hides every following upload from the next n head calls.
func (mc *MemoryClient) SetVisibilityDelay(n int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.delay = n
}

// Calls returns how often op was invoked.
func (mc *MemoryClient) Calls(op Op) int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.calls[op]
}

// TotalCalls returns the number of calls of every kind.
func (mc *MemoryClient) TotalCalls() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	total := 0
	for _, n := range mc.calls {
		total += n
	}
	return total
}

// Visibility returns the canned ACL stored for key.
func (mc *MemoryClient) Visibility(key string) objectstore.Visibility {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if obj, ok := mc.objects.Get(key); ok {
		return obj.visibility
	}
	return ""
}

// ContentType returns the content type stored for key.
func (mc *MemoryClient) ContentType(key string) string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if obj, ok := mc.objects.Get(key); ok {
		return obj.contentType
	}
	return ""
}

// Keys returns every stored key in order.
func (mc *MemoryClient) Keys() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.objects.Keys()
}

// begin records a call and returns its injected failure.
// The caller must hold mu.
func (mc *MemoryClient) begin(ctx context.Context, op Op) error {
	mc.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return mc.failures[op]
}

func (mc *MemoryClient) info(key string, obj *memoryObject) *objectstore.ObjectInfo {
	return &objectstore.ObjectInfo{
		Key:            key,
		Size:           int64(len(obj.content)),
		LastModified:   obj.modified,
		Owner:          mc.owner,
		ContentType:    obj.contentType,
		IsPrefixMarker: strings.HasSuffix(key, "/"),
	}
}

func (mc *MemoryClient) Get(ctx context.Context, key string, rng *objectstore.Range) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpGet); err != nil {
		return nil, nil, err
	}

	obj, ok := mc.objects.Get(key)
	if !ok {
		return nil, nil, data.ErrNotExist
	}

	content := obj.content
	if rng != nil {
		end := rng.End
		if end < 0 || end >= int64(len(content)) {
			end = int64(len(content)) - 1
		}
		if rng.Start > end+1 || rng.Start < 0 {
			return nil, nil, fmt.Errorf("%w: invalid range %d-%d", data.ErrInvalid, rng.Start, rng.End)
		}
		content = content[rng.Start : end+1]
	}

	body := bytes.Clone(content)
	return io.NopCloser(bytes.NewReader(body)), mc.info(key, obj), nil
}

func (mc *MemoryClient) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, visibility objectstore.Visibility) error {
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(content)) != size {
		return fmt.Errorf("%w: expected %d bytes, got %d", data.ErrInvalid, size, len(content))
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpPut); err != nil {
		return err
	}

	mc.objects.Set(key, &memoryObject{
		content:     content,
		modified:    mc.now(),
		contentType: contentType,
		visibility:  visibility,
		hidden:      mc.delay,
	})
	return nil
}

func (mc *MemoryClient) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpDelete); err != nil {
		return err
	}

	mc.objects.Delete(key)
	return nil
}

func (mc *MemoryClient) Copy(ctx context.Context, srcKey, dstKey string, visibility objectstore.Visibility) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpCopy); err != nil {
		return err
	}

	src, ok := mc.objects.Get(srcKey)
	if !ok {
		return data.ErrNotExist
	}

	mc.objects.Set(dstKey, &memoryObject{
		content:     bytes.Clone(src.content),
		modified:    mc.now(),
		contentType: src.contentType,
		visibility:  visibility,
	})
	return nil
}

func (mc *MemoryClient) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpHead); err != nil {
		return nil, err
	}

	obj, ok := mc.objects.Get(key)
	if !ok {
		return nil, data.ErrNotExist
	}
	if obj.hidden > 0 {
		obj.hidden--
		return nil, data.ErrNotExist
	}

	return mc.info(key, obj), nil
}

// List pages through keys in order. The token is the last key of the previous page.
func (mc *MemoryClient) List(ctx context.Context, prefix string, pageSize int, token string) (*objectstore.ListPage, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.begin(ctx, OpList); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	page := &objectstore.ListPage{}
	pivot := prefix
	if token != "" {
		pivot = token
	}

	more := false
	mc.objects.Ascend(pivot, func(key string, obj *memoryObject) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if token != "" && key == token {
			return true
		}
		if len(page.Objects) == pageSize {
			more = true
			return false
		}
		page.Objects = append(page.Objects, mc.info(key, obj))
		return true
	})

	if more {
		page.NextToken = page.Objects[len(page.Objects)-1].Key
	}

	return page, nil
}

// ObjectURL returns a fake virtual-host style URL.
func (mc *MemoryClient) ObjectURL(key string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s.memory.local/%s", scheme, mc.bucket, key)
}

// PresignGet returns the object URL with the expiry and overrides encoded as query.
func (mc *MemoryClient) PresignGet(ctx context.Context, key string, expiry time.Duration, params url.Values) (string, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("X-Amz-Expires", fmt.Sprintf("%d", int64(expiry/time.Second)))

	return mc.ObjectURL(key, true) + "?" + query.Encode(), nil
}
