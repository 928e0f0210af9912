package reconcile_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/s3fs/cache"
	cachemem "github.com/mwantia/s3fs/cache/memory"
	"github.com/mwantia/s3fs/cache/sqlite"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/metrics"
	"github.com/mwantia/s3fs/objectstore"
	"github.com/mwantia/s3fs/objectstore/memory"
	"github.com/mwantia/s3fs/reconcile"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errInjected = errors.New("injected failure")

// TestStoreFactory creates a new reconcilable cache for testing.
type TestStoreFactory func(tst *testing.T) (cache.Reconcilable, error)

func GetTestStoreFactories() map[string]TestStoreFactory {
	return map[string]TestStoreFactory{
		"memory": func(tst *testing.T) (cache.Reconcilable, error) {
			return cachemem.NewMemoryStore(), nil
		},
		"sqlite": func(tst *testing.T) (cache.Reconcilable, error) {
			return sqlite.NewSQLiteStore(":memory:")
		},
	}
}

// flakyClient fails every listing call after the first pages succeeded.
type flakyClient struct {
	*memory.MemoryClient
	pages int
}

func (fc *flakyClient) List(ctx context.Context, prefix string, pageSize int, token string) (*objectstore.ListPage, error) {
	if fc.pages <= 0 {
		return nil, errInjected
	}
	fc.pages--
	return fc.MemoryClient.List(ctx, prefix, pageSize, token)
}

func openStore(tst *testing.T, factory TestStoreFactory) cache.Reconcilable {
	tst.Helper()

	store, err := factory(tst)
	if err != nil {
		tst.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Open(tst.Context()); err != nil {
		tst.Fatalf("Failed to open store: %v", err)
	}
	tst.Cleanup(func() {
		store.Close(context.Background())
	})
	return store
}

func seedBucket() *memory.MemoryClient {
	client := memory.NewMemoryClient("bucket")
	client.Seed("media/", nil)
	client.Seed("media/a/b/c.txt", []byte("abc"))
	client.Seed("media/a/d.txt", []byte("d"))
	client.Seed("media/e/", nil)
	client.Seed("other/x.txt", []byte("x"))
	return client
}

func newJob(tst *testing.T, client objectstore.Client, store cache.Reconcilable, opts ...reconcile.JobOption) *reconcile.Job {
	tst.Helper()

	opts = append([]reconcile.JobOption{
		reconcile.WithNamespace(data.NewNamespace("s3", "media")),
		reconcile.WithPageSize(1),
	}, opts...)

	job, err := reconcile.New(client, store, opts...)
	if err != nil {
		tst.Fatalf("Failed to create job: %v", err)
	}
	return job
}

func uris(tst *testing.T, store cache.Store) []string {
	tst.Helper()

	records, err := store.Query(tst.Context(), &cache.Query{})
	if err != nil {
		tst.Fatalf("Query failed: %v", err)
	}

	result := make([]string, len(records))
	for i, record := range records {
		result[i] = record.URI
	}
	return result
}

func TestAllStores_RefreshMount(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)
			collector := metrics.NewCollector("test")

			now := time.Unix(1700000000, 0)
			empty := data.NewDirectoryRecord("s3://media/empty", now.Add(-time.Hour), "someone")
			stale := data.NewFileRecord("s3://media/stale.txt", 1, now, "")
			if err := store.Put(ctx, empty, stale); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			job := newJob(tst, seedBucket(), store,
				reconcile.WithClock(func() time.Time { return now }),
				reconcile.WithMetrics(collector))

			result, err := job.Refresh(ctx, "")
			if err != nil {
				tst.Fatalf("Refresh failed: %v", err)
			}

			if result.Scope != reconcile.ScopeMount || result.Files != 2 || result.Directories != 4 || result.Pages != 4 {
				tst.Errorf("Unexpected result %+v", result)
			}
			if !strings.HasPrefix(result.Message(), "S3 File System cache refreshed") {
				tst.Errorf("Unexpected message %q", result.Message())
			}

			want := []string{
				"s3://media/a",
				"s3://media/a/b",
				"s3://media/a/b/c.txt",
				"s3://media/a/d.txt",
				"s3://media/e",
				"s3://media/empty",
			}
			if got := uris(tst, store); !slices.Equal(got, want) {
				tst.Errorf("Expected %v, got %v", want, got)
			}

			kept, err := store.Get(ctx, "s3://media/empty")
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if kept.Owner != "someone" {
				tst.Errorf("Expected cached directory to be kept, got %+v", kept)
			}

			file, err := store.Get(ctx, "s3://media/a/b/c.txt")
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if file.IsDirectory || file.Size != 3 || file.Owner != "memory" {
				tst.Errorf("Unexpected file record %+v", file)
			}

			count, err := testutil.GatherAndCount(collector.Registry(), "test_reconcile_runs_total")
			if err != nil {
				tst.Fatalf("Gather failed: %v", err)
			}
			if count != 1 {
				tst.Errorf("Expected one reconcile run series, got %d", count)
			}
		})
	}
}

// TestAllStores_RefreshAtomicity verifies that a failing refresh leaves the
// live records untouched.
func TestAllStores_RefreshAtomicity(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			stale := data.NewFileRecord("s3://media/stale.txt", 1, time.Unix(1700000000, 0), "")
			if err := store.Put(ctx, stale); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			client := &flakyClient{MemoryClient: seedBucket(), pages: 2}
			job := newJob(tst, client, store)

			if _, err := job.Refresh(ctx, ""); !errors.Is(err, errInjected) {
				tst.Fatalf("Expected injected failure, got %v", err)
			}
			if got := uris(tst, store); !slices.Equal(got, []string{"s3://media/stale.txt"}) {
				tst.Errorf("Expected live records to be untouched, got %v", got)
			}

			// The next run starts from a fresh staging area
			client.pages = 10
			if _, err := job.Refresh(ctx, ""); err != nil {
				tst.Fatalf("Refresh failed: %v", err)
			}
			if slices.Contains(uris(tst, store), "s3://media/stale.txt") {
				tst.Errorf("Expected stale record to be dropped")
			}
		})
	}
}

func TestMemoryStore_RefreshCommitFailure(t *testing.T) {
	for _, op := range []cachemem.Op{cachemem.OpStagingPut, cachemem.OpSwap} {
		t.Run(string(op), func(tst *testing.T) {
			ctx := tst.Context()
			store := cachemem.NewMemoryStore()

			stale := data.NewFileRecord("s3://media/stale.txt", 1, time.Unix(1700000000, 0), "")
			if err := store.Put(ctx, stale); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			store.FailOn(op, errInjected)
			job := newJob(tst, seedBucket(), store)

			if _, err := job.Refresh(ctx, ""); !errors.Is(err, errInjected) {
				tst.Fatalf("Expected injected failure, got %v", err)
			}
			if got := uris(tst, store); !slices.Equal(got, []string{"s3://media/stale.txt"}) {
				tst.Errorf("Expected live records to be untouched, got %v", got)
			}
		})
	}
}

func TestAllStores_RefreshPrefix(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			now := time.Unix(1700000000, 0)
			if err := store.Put(ctx,
				data.NewFileRecord("s3://media/keep.txt", 1, now, ""),
				data.NewDirectoryRecord("s3://media/a", now, "S3 File System"),
				data.NewFileRecord("s3://media/a/old.txt", 1, now, ""),
				data.NewDirectoryRecord("s3://media/a/empty", now, "S3 File System"),
			); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			job := newJob(tst, seedBucket(), store)

			result, err := job.Refresh(ctx, "a")
			if err != nil {
				tst.Fatalf("Refresh failed: %v", err)
			}
			if result.Scope != reconcile.ScopePrefix || result.Prefix != "a" || result.Files != 2 {
				tst.Errorf("Unexpected result %+v", result)
			}
			if !strings.Contains(result.Message(), "with prefix a") {
				tst.Errorf("Unexpected message %q", result.Message())
			}

			want := []string{
				"s3://media/a",
				"s3://media/a/b",
				"s3://media/a/b/c.txt",
				"s3://media/a/d.txt",
				"s3://media/a/empty",
				"s3://media/keep.txt",
			}
			if got := uris(tst, store); !slices.Equal(got, want) {
				tst.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestAllStores_RefreshPrefixColdCache(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)
			job := newJob(tst, seedBucket(), store)

			if _, err := job.Refresh(ctx, "a/b"); err != nil {
				tst.Fatalf("Refresh failed: %v", err)
			}

			// Ancestors above the prefix stay outside the refreshed scope
			want := []string{
				"s3://media/a/b",
				"s3://media/a/b/c.txt",
			}
			if got := uris(tst, store); !slices.Equal(got, want) {
				tst.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestMemoryStore_RefreshMergeFailure(t *testing.T) {
	ctx := t.Context()
	store := cachemem.NewMemoryStore()

	old := data.NewFileRecord("s3://media/a/old.txt", 1, time.Unix(1700000000, 0), "")
	if err := store.Put(ctx, old); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	store.FailOn(cachemem.OpMerge, errInjected)
	job := newJob(t, seedBucket(), store)

	if _, err := job.Refresh(ctx, "a"); !errors.Is(err, errInjected) {
		t.Fatalf("Expected injected failure, got %v", err)
	}
	if got := uris(t, store); !slices.Equal(got, []string{"s3://media/a/old.txt"}) {
		t.Errorf("Expected live records to be untouched, got %v", got)
	}
}

func TestJob_Options(t *testing.T) {
	client := memory.NewMemoryClient("bucket")
	store := cachemem.NewMemoryStore()

	if _, err := reconcile.New(nil, store); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig without client, got %v", err)
	}
	if _, err := reconcile.New(client, store, reconcile.WithPageSize(0)); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig for page size 0, got %v", err)
	}
	if _, err := reconcile.New(client, store, reconcile.WithNamespace(data.Namespace{})); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig without scheme, got %v", err)
	}

	job := newJob(t, client, store)
	if _, err := job.Refresh(t.Context(), "gs://media/a"); !errors.Is(err, data.ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for foreign scheme, got %v", err)
	}
}
