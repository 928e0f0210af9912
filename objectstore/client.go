package objectstore

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Visibility is the canned ACL applied to written objects.
type Visibility string

const (
	Private    Visibility = "private"
	PublicRead Visibility = "public-read"
)

// DirectoryContentType marks zero-byte directory placeholder objects.
const DirectoryContentType = "application/x-directory"

// ObjectInfo describes one object as reported by the store.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Owner        string
	ContentType  string
	ETag         string

	// IsPrefixMarker is set for keys ending in "/"
	IsPrefixMarker bool
}

// Range selects an inclusive byte range; End < 0 reads to the end.
type Range struct {
	Start int64
	End   int64
}

// ListPage is one page of a prefix listing.
type ListPage struct {
	Objects []*ObjectInfo

	// NextToken continues the listing; empty on the last page
	NextToken string
}

// Client is the remote object store as consumed by the filesystem.
// Every call may block on the network.
type Client interface {
	// Name returns the identifier of this client implementation.
	Name() string

	// Bucket returns the bucket all keys are relative to.
	Bucket() string

	// Open is part of the lifecycle behaviour and verifies the bucket is reachable.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and releases held resources.
	Close(ctx context.Context) error

	// Get opens the object body for streaming.
	// Returns data.ErrNotExist if the key does not exist.
	Get(ctx context.Context, key string, rng *Range) (io.ReadCloser, *ObjectInfo, error)

	// Put uploads body as the full content of key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, visibility Visibility) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Copy duplicates srcKey into dstKey, preserving stored metadata.
	Copy(ctx context.Context, srcKey, dstKey string, visibility Visibility) error

	// Head returns the metadata of key, or data.ErrNotExist.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns up to pageSize keys starting with prefix, in key order.
	List(ctx context.Context, prefix string, pageSize int, token string) (*ListPage, error)
}

// URLSigner is implemented by clients able to build external URLs.
type URLSigner interface {
	// ObjectURL returns the unsigned URL of key.
	ObjectURL(key string, secure bool) string

	// PresignGet returns a signed GET URL valid for expiry.
	// Response overrides such as response-content-disposition are passed in params.
	PresignGet(ctx context.Context, key string, expiry time.Duration, params url.Values) (string, error)
}

// MaxPresignExpiry is the longest validity SigV4 allows.
const MaxPresignExpiry = 7 * 24 * time.Hour
