package s3fs

import (
	"fmt"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/metrics"
	"github.com/mwantia/s3fs/objectstore"
	"github.com/mwantia/s3fs/statcache"
)

// Client is an object store client that can also build download URLs.
type Client interface {
	objectstore.Client
	objectstore.URLSigner
}

type FileSystemOptions struct {
	Logger  *log.Logger
	Clock   func() time.Time
	Metrics *metrics.Collector

	// Client, Store and StatCache replace the drivers selected by the configuration
	Client    Client
	Store     cache.Reconcilable
	StatCache *statcache.StatCache
}

type FileSystemOption func(*FileSystemOptions) error

func newDefaultFileSystemOptions() *FileSystemOptions {
	return &FileSystemOptions{
		Clock: time.Now,
	}
}

// WithLogger replaces the logger built from the log configuration.
func WithLogger(l *log.Logger) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		opts.Logger = l
		return nil
	}
}

func WithClock(now func() time.Time) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", data.ErrConfig)
		}
		opts.Clock = now
		return nil
	}
}

// WithMetrics records into c even when metrics are disabled in the configuration.
func WithMetrics(c *metrics.Collector) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		opts.Metrics = c
		return nil
	}
}

func WithClient(c Client) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		if c == nil {
			return fmt.Errorf("%w: client cannot be nil", data.ErrConfig)
		}
		opts.Client = c
		return nil
	}
}

func WithStore(s cache.Reconcilable) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		if s == nil {
			return fmt.Errorf("%w: store cannot be nil", data.ErrConfig)
		}
		opts.Store = s
		return nil
	}
}

func WithStatCache(sc *statcache.StatCache) FileSystemOption {
	return func(opts *FileSystemOptions) error {
		opts.StatCache = sc
		return nil
	}
}
