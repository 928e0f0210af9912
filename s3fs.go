package s3fs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/s3fs/config"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/metrics"
	"github.com/mwantia/s3fs/mount"
	"github.com/mwantia/s3fs/reconcile"
	"github.com/mwantia/s3fs/statcache"
	"github.com/mwantia/s3fs/urlpolicy"
)

// FileSystem wires one configured mount with its reconcile job and URL resolver.
type FileSystem struct {
	mu      sync.Mutex
	mounted bool

	config    *config.Config
	log       *log.Logger
	metrics   *metrics.Collector
	mount     *mount.Mount
	job       *reconcile.Job
	resolver  *urlpolicy.Resolver
	statcache *statcache.StatCache
}

// New builds a filesystem from cfg. Nothing is opened until Mount is called.
func New(ctx context.Context, cfg *config.Config, opts ...FileSystemOption) (*FileSystem, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := newDefaultFileSystemOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	l := options.Logger
	if l == nil {
		var err error
		if l, err = newLogger(cfg.Log); err != nil {
			return nil, err
		}
	}

	collector := options.Metrics
	if collector == nil && cfg.Metrics.Enabled {
		collector = metrics.NewCollector("s3fs")
	}

	client := options.Client
	if client == nil {
		var err error
		if client, err = newClient(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	store := options.Store
	if store == nil {
		var err error
		if store, err = newStore(ctx, cfg.Cache); err != nil {
			return nil, err
		}
	}

	sc := options.StatCache
	if sc == nil {
		var err error
		if sc, err = newStatCache(cfg.StatCache, l); err != nil {
			return nil, err
		}
	}

	mountOpts := []mount.MountOption{
		mount.WithLogger(l.Named("mount")),
		mount.WithClock(options.Clock),
		mount.WithMetrics(collector),
		mount.WithRecordTTL(cfg.Cache.TTL),
		mount.WithConfirmPolicy(cfg.Upload.ConfirmAttempts, cfg.Upload.ConfirmInterval),
		mount.WithSpillThreshold(cfg.Upload.SpillThreshold, ""),
		mount.WithSeekLimit(cfg.Read.SeekLimit),
		mount.WithContentTypes(cfg.Upload.ContentTypes),
	}
	if cfg.Cache.IgnoreCache {
		mountOpts = append(mountOpts, mount.WithIgnoreCache())
	}

	m, err := mount.New(mount.Config{
		Scheme:         cfg.Scheme,
		Prefix:         cfg.Store.KeyPrefix,
		DirectoryOwner: cfg.Cache.DirectoryOwner,
	}, client, store, mountOpts...)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		m.AddInvalidator(sc)
	}

	job, err := reconcile.New(client, store,
		reconcile.WithLogger(l.Named("reconcile")),
		reconcile.WithClock(options.Clock),
		reconcile.WithMetrics(collector),
		reconcile.WithNamespace(m.Namespace()),
		reconcile.WithPageSize(cfg.Reconcile.PageSize),
		reconcile.WithDirectoryOwner(cfg.Cache.DirectoryOwner),
		reconcile.WithRecordTTL(cfg.Cache.TTL))
	if err != nil {
		return nil, err
	}

	policy, err := urlpolicy.ParsePolicy(cfg.URLs.Presigned, cfg.URLs.SaveAs, cfg.URLs.Torrents)
	if err != nil {
		return nil, err
	}

	resolverOpts := []urlpolicy.ResolverOption{
		urlpolicy.WithLogger(l.Named("urls")),
		urlpolicy.WithForceHTTPS(cfg.URLs.ForceHTTPS),
		urlpolicy.WithCDN(cfg.URLs.CDN.Domain, cfg.URLs.CDN.HTTPOnly),
	}
	if cfg.URLs.Fallback.Prefix != "" {
		resolverOpts = append(resolverOpts, urlpolicy.WithFallback(cfg.URLs.Fallback.Prefix, cfg.URLs.Fallback.URL))
	}
	if sc != nil {
		resolverOpts = append(resolverOpts, urlpolicy.WithStatCache(sc, cfg.StatCache.TTL))
	}

	resolver, err := urlpolicy.NewResolver(m.Namespace(), client, m, policy, resolverOpts...)
	if err != nil {
		return nil, err
	}

	return &FileSystem{
		config:    cfg,
		log:       l,
		metrics:   collector,
		mount:     m,
		job:       job,
		resolver:  resolver,
		statcache: sc,
	}, nil
}

// Mount is part of the lifecycle behaviour and opens the client, the store and the stat cache.
func (fs *FileSystem) Mount(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.mounted {
		return nil
	}

	errs := data.Errors{}
	errs.Add(fs.mount.Mount(ctx))
	if fs.statcache != nil {
		errs.Add(fs.statcache.Open(ctx))
	}
	if err := errs.Errors(); err != nil {
		return fmt.Errorf("failed to mount %s: %w", fs.mount.Namespace().Root(), err)
	}

	fs.mounted = true
	fs.log.Info("Mounted %s on bucket %s", fs.mount.Namespace().Root(), fs.mount.Client.Bucket())
	return nil
}

// Unmount closes every open handle and releases all resources.
// It fails with data.ErrBusy while a handle is in use unless force is set.
func (fs *FileSystem) Unmount(ctx context.Context, force bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.mounted {
		return nil
	}

	if err := fs.mount.Unmount(ctx, force); err != nil {
		return err
	}
	if fs.statcache != nil {
		if err := fs.statcache.Close(ctx); err != nil {
			return err
		}
	}

	fs.mounted = false
	fs.log.Info("Unmounted %s", fs.mount.Namespace().Root())
	return nil
}

func (fs *FileSystem) Config() *config.Config {
	return fs.config
}

// Metrics returns the collector, or nil when metrics are disabled.
func (fs *FileSystem) Metrics() *metrics.Collector {
	return fs.metrics
}

func (fs *FileSystem) Namespace() data.Namespace {
	return fs.mount.Namespace()
}

func (fs *FileSystem) Stat(ctx context.Context, uri string, flags data.StatFlags) (*data.Record, error) {
	return fs.mount.Stat(ctx, uri, flags)
}

func (fs *FileSystem) ReadDir(ctx context.Context, uri string) ([]*data.Record, error) {
	return fs.mount.ReadDir(ctx, uri)
}

func (fs *FileSystem) OpenDir(ctx context.Context, uri string) (*mount.Dir, error) {
	return fs.mount.OpenDir(ctx, uri)
}

func (fs *FileSystem) OpenFile(ctx context.Context, uri string, mode string) (*mount.Handle, error) {
	return fs.mount.Open(ctx, uri, mode)
}

func (fs *FileSystem) Unlink(ctx context.Context, uri string) error {
	return fs.mount.Unlink(ctx, uri)
}

func (fs *FileSystem) Rename(ctx context.Context, from, to string) error {
	return fs.mount.Rename(ctx, from, to)
}

func (fs *FileSystem) Mkdir(ctx context.Context, uri string, recursive bool) error {
	return fs.mount.Mkdir(ctx, uri, recursive)
}

func (fs *FileSystem) Rmdir(ctx context.Context, uri string) error {
	return fs.mount.Rmdir(ctx, uri)
}

// Refresh rebuilds the metadata cache below prefix, or for the whole mount when prefix is empty.
func (fs *FileSystem) Refresh(ctx context.Context, prefix string) (*reconcile.Result, error) {
	return fs.job.Refresh(ctx, prefix)
}

func (fs *FileSystem) ExternalURL(ctx context.Context, uri string, secure bool) (string, error) {
	return fs.resolver.ExternalURL(ctx, uri, secure)
}

// RefreshEvery refreshes the whole mount each interval until ctx is done.
// Failed runs are logged and retried on the next tick.
func (fs *FileSystem) RefreshEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", data.ErrInvalid)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := fs.job.Refresh(ctx, "")
			if err != nil {
				fs.log.Error("Periodic refresh failed: %v", err)
				continue
			}
			fs.log.Info("%s", result.Message())
		}
	}
}
