package statcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
)

// DefaultTTL applies when an entry is stored without a positive TTL.
const DefaultTTL = 31557600 * time.Second

// Entry is one serialized stat result.
type Entry struct {
	URI     string    `json:"uri"`
	Stat    []byte    `json:"stat"`
	Expires time.Time `json:"expires"`
}

// Backend persists entries without interpreting them.
type Backend interface {
	// Name returns the identifier name defined for this backend.
	Name() string

	// Open is part of the lifecycle behaviour and gets called when opening this backend.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and gets called when closing this backend.
	Close(ctx context.Context) error

	// Load returns the entry stored for uri, or data.ErrNotExist.
	Load(ctx context.Context, uri string) (*Entry, error)

	// Save upserts entry.
	Save(ctx context.Context, entry *Entry) error

	// Remove deletes the entries for uris.
	Remove(ctx context.Context, uris ...string) error
}

// StatCache keeps short-lived stat results for URL resolution.
// Expired entries are removed on read.
type StatCache struct {
	backend Backend
	log     *log.Logger
	now     func() time.Time
}

type Option func(*StatCache)

// WithLogger sets the logger used for lazy removal failures.
func WithLogger(l *log.Logger) Option {
	return func(sc *StatCache) {
		sc.log = l
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(sc *StatCache) {
		sc.now = now
	}
}

func New(backend Backend, opts ...Option) *StatCache {
	sc := &StatCache{
		backend: backend,
		log:     log.NewNopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Name returns the name of the underlying backend.
func (sc *StatCache) Name() string {
	return sc.backend.Name()
}

func (sc *StatCache) Open(ctx context.Context) error {
	return sc.backend.Open(ctx)
}

func (sc *StatCache) Close(ctx context.Context) error {
	return sc.backend.Close(ctx)
}

// Get returns the cached record for uri or data.ErrNotExist.
func (sc *StatCache) Get(ctx context.Context, uri string) (*data.Record, error) {
	uri = strings.TrimSuffix(uri, "/")

	entry, err := sc.backend.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	if !sc.now().Before(entry.Expires) {
		sc.log.Debug("Get: removing expired stat entry for %s", uri)
		if err := sc.backend.Remove(ctx, uri); err != nil {
			sc.log.Warn("Get: failed to remove expired stat entry for %s - %v", uri, err)
		}
		return nil, data.ErrNotExist
	}

	record := &data.Record{}
	if err := record.Unmarshal(entry.Stat); err != nil {
		return nil, fmt.Errorf("failed to decode stat entry for %s: %w", uri, err)
	}

	return record, nil
}

// Set stores record for ttl, or for DefaultTTL when ttl is not positive.
func (sc *StatCache) Set(ctx context.Context, record *data.Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	stat, err := record.Marshal()
	if err != nil {
		return err
	}

	return sc.backend.Save(ctx, &Entry{
		URI:     strings.TrimSuffix(record.URI, "/"),
		Stat:    stat,
		Expires: sc.now().Add(ttl),
	})
}

// Remove deletes the entries for uris.
func (sc *StatCache) Remove(ctx context.Context, uris ...string) error {
	trimmed := make([]string, len(uris))
	for i, uri := range uris {
		trimmed[i] = strings.TrimSuffix(uri, "/")
	}

	return sc.backend.Remove(ctx, trimmed...)
}

// IsMiss reports whether err only signals a missing entry.
func IsMiss(err error) bool {
	return errors.Is(err, data.ErrNotExist)
}
