package cache_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/cache/memory"
	"github.com/mwantia/s3fs/cache/postgres"
	"github.com/mwantia/s3fs/cache/sqlite"
	"github.com/mwantia/s3fs/data"
)

// TestStoreFactory creates a new store instance for testing.
type TestStoreFactory func(t *testing.T) (cache.Reconcilable, error)

// GetTestStoreFactories returns all store implementations to test.
// PostgreSQL is only tested when S3FS_TEST_POSTGRES_DSN is set.
func GetTestStoreFactories() map[string]TestStoreFactory {
	factories := map[string]TestStoreFactory{
		"memory": func(t *testing.T) (cache.Reconcilable, error) {
			return memory.NewMemoryStore(), nil
		},
		"sqlite": func(t *testing.T) (cache.Reconcilable, error) {
			return sqlite.NewSQLiteStore(":memory:")
		},
	}

	if dsn := os.Getenv("S3FS_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) (cache.Reconcilable, error) {
			store, err := postgres.NewPostgresStore(t.Context(), dsn)
			if err != nil {
				return nil, err
			}
			if err := store.Open(t.Context()); err != nil {
				return nil, err
			}
			// Start every test from an empty table
			query := &cache.Query{}
			records, err := store.Query(t.Context(), query)
			if err != nil {
				return nil, err
			}
			uris := make([]string, len(records))
			for i, r := range records {
				uris[i] = r.URI
			}
			return store, store.Delete(t.Context(), uris...)
		}
	}

	return factories
}

func openStore(t *testing.T, factory TestStoreFactory) cache.Reconcilable {
	t.Helper()

	store, err := factory(t)
	if err != nil {
		t.Fatalf("Store init failed: %v", err)
	}
	if err := store.Open(t.Context()); err != nil {
		t.Fatalf("Store open failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close(context.Background())
	})

	return store
}

func file(uri string) *data.Record {
	return data.NewFileRecord(uri, 3, time.Unix(1700000000, 0), "owner")
}

func dir(uri string) *data.Record {
	return data.NewDirectoryRecord(uri, time.Unix(1700000000, 0), "S3 File System")
}

func uris(records []*data.Record) []string {
	result := make([]string, len(records))
	for i, r := range records {
		result[i] = r.URI
	}
	return result
}

// TestAllStores_PutGetDelete verifies that put is an idempotent upsert
// and that delete ignores trailing slashes and missing entries.
func TestAllStores_PutGetDelete(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			record := file("s3://media/a.png")
			record.Expires = time.Unix(1800000000, 0)

			for range 2 {
				if err := store.Put(ctx, record); err != nil {
					tst.Fatalf("Put failed: %v", err)
				}
			}

			got, err := store.Get(ctx, "s3://media/a.png")
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if got.Size != 3 || got.IsDirectory || got.Mode != data.ModeRegular|data.ModePerm {
				tst.Errorf("Unexpected record %+v", got)
			}
			if !got.LastModified.Equal(record.LastModified) || !got.Expires.Equal(record.Expires) {
				tst.Errorf("Timestamps not preserved: %+v", got)
			}

			all, err := store.Query(ctx, &cache.Query{})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if len(all) != 1 {
				tst.Errorf("Expected exactly one record after repeated put, got %d", len(all))
			}

			if err := store.Delete(ctx, "s3://media/a.png/", "s3://media/missing"); err != nil {
				tst.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "s3://media/a.png"); !errors.Is(err, data.ErrNotExist) {
				tst.Errorf("Expected ErrNotExist, got %v", err)
			}
		})
	}
}

// TestAllStores_Query verifies prefix, delimiter and directory filters.
func TestAllStores_Query(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			err := store.Put(ctx,
				dir("s3://media/a"),
				dir("s3://media/a/b"),
				file("s3://media/a/b/c.png"),
				file("s3://media/a/d.txt"),
				file("s3://media/a_b.txt"),
				file("s3://media/ab/x"),
			)
			if err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			children, err := store.Query(ctx, cache.ChildrenOf("s3://media/a"))
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if want := []string{"s3://media/a/b", "s3://media/a/d.txt"}; !slices.Equal(uris(children), want) {
				tst.Errorf("Expected children %v, got %v", want, uris(children))
			}

			descendants, err := store.Query(ctx, cache.DescendantsOf("s3://media/a"))
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if len(descendants) != 3 {
				tst.Errorf("Expected 3 descendants, got %v", uris(descendants))
			}

			dirs, err := store.Query(ctx, &cache.Query{Prefix: "s3://media/", DirectoriesOnly: true})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if want := []string{"s3://media/a", "s3://media/a/b"}; !slices.Equal(uris(dirs), want) {
				tst.Errorf("Expected directories %v, got %v", want, uris(dirs))
			}

			limited, err := store.Query(ctx, &cache.Query{Prefix: "s3://media/a/", Limit: 1})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if len(limited) != 1 {
				tst.Errorf("Expected 1 record with limit, got %d", len(limited))
			}
		})
	}
}

// TestAllStores_StagingSwap verifies the whole-table replacement.
func TestAllStores_StagingSwap(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			if err := store.Put(ctx, file("s3://old/a"), file("s3://old/b")); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			staging, err := store.BeginStaging(ctx)
			if err != nil {
				tst.Fatalf("BeginStaging failed: %v", err)
			}
			if err := staging.Put(ctx, dir("s3://new"), file("s3://new/c")); err != nil {
				tst.Fatalf("Staging put failed: %v", err)
			}

			// Live content stays visible until the swap
			if _, err := store.Get(ctx, "s3://old/a"); err != nil {
				tst.Errorf("Expected live record before swap, got %v", err)
			}

			if err := staging.Swap(ctx); err != nil {
				tst.Fatalf("Swap failed: %v", err)
			}

			all, err := store.Query(ctx, &cache.Query{})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if want := []string{"s3://new", "s3://new/c"}; !slices.Equal(uris(all), want) {
				tst.Errorf("Expected %v after swap, got %v", want, uris(all))
			}

			// The swapped table must keep accepting writes
			if err := store.Put(ctx, file("s3://new/d")); err != nil {
				tst.Errorf("Put after swap failed: %v", err)
			}
		})
	}
}

// TestAllStores_StagingMerge verifies that only records under the prefix change.
func TestAllStores_StagingMerge(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			if err := store.Put(ctx, file("s3://media/a/stale"), file("s3://media/b/keep"), file("s3://media/a2")); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			staging, err := store.BeginStaging(ctx)
			if err != nil {
				tst.Fatalf("BeginStaging failed: %v", err)
			}
			if err := staging.Put(ctx, file("s3://media/a/fresh")); err != nil {
				tst.Fatalf("Staging put failed: %v", err)
			}
			if err := staging.Merge(ctx, "s3://media/a/"); err != nil {
				tst.Fatalf("Merge failed: %v", err)
			}

			all, err := store.Query(ctx, &cache.Query{})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			want := []string{"s3://media/a/fresh", "s3://media/a2", "s3://media/b/keep"}
			if !slices.Equal(uris(all), want) {
				tst.Errorf("Expected %v after merge, got %v", want, uris(all))
			}
		})
	}
}

// TestAllStores_StagingDiscard verifies that discarding leaves live content alone.
func TestAllStores_StagingDiscard(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			store := openStore(tst, factory)

			if err := store.Put(ctx, file("s3://a")); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}

			staging, err := store.BeginStaging(ctx)
			if err != nil {
				tst.Fatalf("BeginStaging failed: %v", err)
			}
			if err := staging.Put(ctx, file("s3://b")); err != nil {
				tst.Fatalf("Staging put failed: %v", err)
			}
			if err := staging.Discard(ctx); err != nil {
				tst.Fatalf("Discard failed: %v", err)
			}
			if err := staging.Swap(ctx); !errors.Is(err, data.ErrClosed) {
				tst.Errorf("Expected ErrClosed after discard, got %v", err)
			}

			all, err := store.Query(ctx, &cache.Query{})
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if want := []string{"s3://a"}; !slices.Equal(uris(all), want) {
				tst.Errorf("Expected %v, got %v", want, uris(all))
			}
		})
	}
}

func TestUpperBound(t *testing.T) {
	if got, ok := cache.UpperBound("s3://media/"); !ok || got != "s3://media0" {
		t.Errorf("Expected s3://media0, got %q", got)
	}
	if _, ok := cache.UpperBound(""); ok {
		t.Errorf("Expected no bound for empty prefix")
	}
}
