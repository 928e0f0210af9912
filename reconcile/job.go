package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/objectstore"
)

type Scope string

const (
	ScopeMount  Scope = "mount"
	ScopePrefix Scope = "prefix"
)

// Result summarizes one completed refresh.
type Result struct {
	ID          string
	Scope       Scope
	Prefix      string
	Files       int
	Directories int
	Pages       int
	Duration    time.Duration
}

// Message returns the operator status line for the refresh.
func (r *Result) Message() string {
	if r.Scope == ScopeMount {
		return fmt.Sprintf("S3 File System cache refreshed: %d files, %d directories in %s.",
			r.Files, r.Directories, r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("Files in the S3 File System cache with prefix %s have been refreshed: %d files, %d directories in %s.",
		r.Prefix, r.Files, r.Directories, r.Duration.Round(time.Millisecond))
}

// Job rebuilds the metadata cache from a full listing of the object store.
// Live records are only replaced once the listing completed.
type Job struct {
	mu      sync.Mutex
	client  objectstore.Client
	store   cache.Reconcilable
	options *JobOptions
	log     *log.Logger
}

func New(client objectstore.Client, store cache.Reconcilable, opts ...JobOption) (*Job, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: object store client is required", data.ErrConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: metadata cache store is required", data.ErrConfig)
	}

	options := newDefaultJobOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	return &Job{
		client:  client,
		store:   store,
		options: options,
		log:     options.Logger,
	}, nil
}

// run holds the state of a single refresh.
type run struct {
	log    *log.Logger
	ns     data.Namespace
	scope  Scope
	key    string // Listing prefix in the object store
	uri    string // Cache prefix replaced on commit
	folder map[string]*data.Record
	result *Result
}

// Refresh lists every key below prefix and replaces the matching cache
// records. An empty prefix refreshes the whole mount. Only one refresh
// runs at a time.
func (j *Job) Refresh(ctx context.Context, prefix string) (result *Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := j.options.Clock()
	r, err := j.newRun(prefix)
	if err != nil {
		return nil, err
	}

	defer func() {
		r.result.Duration = j.options.Clock().Sub(start)
		j.options.Metrics.ObserveReconcile(string(r.scope), r.result.Files, r.result.Directories, r.result.Duration, err)
	}()

	r.log.Info("Refresh: rebuilding %s scope %q", r.scope, r.uri)

	if err := j.loadFolders(ctx, r); err != nil {
		r.log.Error("Refresh: failed to load cached directories - %v", err)
		return nil, err
	}

	staging, err := j.store.BeginStaging(ctx)
	if err != nil {
		r.log.Error("Refresh: failed to create staging area - %v", err)
		return nil, err
	}

	if err := j.fill(ctx, r, staging); err != nil {
		r.log.Error("Refresh: aborted after %d pages - %v", r.result.Pages, err)
		if derr := staging.Discard(ctx); derr != nil {
			r.log.Warn("Refresh: failed to discard staging area - %v", derr)
		}
		return nil, err
	}

	if r.scope == ScopeMount {
		err = staging.Swap(ctx)
	} else {
		err = staging.Merge(ctx, r.uri)
	}
	if err != nil {
		r.log.Error("Refresh: failed to commit staging area - %v", err)
		if derr := staging.Discard(ctx); derr != nil {
			r.log.Warn("Refresh: failed to discard staging area - %v", derr)
		}
		return nil, err
	}

	r.log.Info("Refresh: committed %d files and %d directories from %d pages",
		r.result.Files, r.result.Directories, r.result.Pages)

	return r.result, nil
}

func (j *Job) newRun(prefix string) (*run, error) {
	ns := j.options.Namespace

	path, err := ns.Path(prefix)
	if err != nil {
		return nil, err
	}

	id := data.NewID()
	r := &run{
		log:    j.log.Named("refresh-" + id[len(id)-12:]),
		ns:     ns,
		folder: make(map[string]*data.Record),
		result: &Result{ID: id},
	}

	switch {
	case ns.IsRoot(path):
		r.scope = ScopeMount
		if ns.Prefix != "" {
			r.key = ns.Prefix + "/"
		}
		r.uri = ns.URI(r.key)
	case ns.Contains(path):
		r.scope = ScopePrefix
		r.key = path
		r.uri = ns.URI(path)
		r.result.Prefix = ns.Relative(path)
	default:
		return nil, fmt.Errorf("%w: %s is outside the mount", data.ErrInvalidPath, prefix)
	}

	r.result.Scope = r.scope
	return r, nil
}

// loadFolders seeds the directory set with directories already cached
// inside the scope, which keeps empty directories alive.
func (j *Job) loadFolders(ctx context.Context, r *run) error {
	records, err := j.store.Query(ctx, &cache.Query{Prefix: r.uri, DirectoriesOnly: true})
	if err != nil {
		return err
	}

	if r.scope == ScopePrefix {
		if record, err := j.store.Get(ctx, r.uri); err == nil && record.IsDirectory {
			records = append(records, record)
		}
	}

	for _, record := range records {
		r.folder[record.URI] = record
	}

	r.log.Debug("Refresh: keeping %d cached directories", len(records))
	return nil
}

// fill writes every listed file page by page and finally the directory set.
func (j *Job) fill(ctx context.Context, r *run, staging cache.Staging) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := j.client.List(ctx, r.key, j.options.PageSize, token)
		if err != nil {
			return fmt.Errorf("failed to list %q: %w", r.key, err)
		}
		r.result.Pages++

		records := j.convert(r, page.Objects)
		if len(records) > 0 {
			if err := staging.Put(ctx, records...); err != nil {
				return fmt.Errorf("failed to stage page %d: %w", r.result.Pages, err)
			}
		}
		r.result.Files += len(records)

		r.log.Debug("Refresh: staged page %d with %d files", r.result.Pages, len(records))

		token = page.NextToken
		if token == "" {
			break
		}
	}

	folders := j.folders(r)
	if len(folders) > 0 {
		if err := staging.Put(ctx, folders...); err != nil {
			return fmt.Errorf("failed to stage directories: %w", err)
		}
	}
	r.result.Directories = len(folders)

	return nil
}

// convert turns one listing page into file records and collects the
// directories it implies.
func (j *Job) convert(r *run, objects []*objectstore.ObjectInfo) []*data.Record {
	now := j.options.Clock()
	records := make([]*data.Record, 0, len(objects))

	for _, obj := range objects {
		if obj.IsPrefixMarker || strings.HasSuffix(obj.Key, "/") {
			path := strings.TrimSuffix(obj.Key, "/")
			if r.ns.Contains(path) {
				r.addFolder(path)
			}
			continue
		}
		if !r.ns.Contains(obj.Key) {
			continue
		}

		size := uint64(0)
		if obj.Size > 0 {
			size = uint64(obj.Size)
		}

		record := data.NewFileRecord(r.ns.URI(obj.Key), size, obj.LastModified, obj.Owner)
		if j.options.RecordTTL > 0 {
			record.Expires = now.Add(j.options.RecordTTL)
		}
		records = append(records, record)

		if parents := r.ns.Ancestors(obj.Key); len(parents) > 0 {
			r.addFolder(parents[0])
		}
	}

	return records
}

// addFolder marks path and its ancestors as directories. Cached
// directories already in the set are kept as they are.
func (r *run) addFolder(path string) {
	for _, dir := range append([]string{path}, r.ns.Ancestors(path)...) {
		uri := r.ns.URI(dir)
		if _, exists := r.folder[uri]; !exists {
			r.folder[uri] = nil
		}
	}
}

// folders returns the directory records inside the scope ordered by URI.
func (j *Job) folders(r *run) []*data.Record {
	now := j.options.Clock()

	uris := make([]string, 0, len(r.folder))
	for uri := range r.folder {
		if r.scope == ScopePrefix && !strings.HasPrefix(uri, r.uri) {
			continue
		}
		uris = append(uris, uri)
	}
	slices.Sort(uris)

	records := make([]*data.Record, 0, len(uris))
	for _, uri := range uris {
		if existing := r.folder[uri]; existing != nil {
			records = append(records, existing)
			continue
		}
		records = append(records, data.NewDirectoryRecord(uri, now, j.options.DirectoryOwner))
	}
	return records
}
