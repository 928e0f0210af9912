package statcache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/statcache"
	"github.com/mwantia/s3fs/statcache/consul"
	"github.com/mwantia/s3fs/statcache/sqlite"
)

// TestBackendFactory creates a new backend instance for testing.
type TestBackendFactory func(t *testing.T) (statcache.Backend, error)

// GetTestBackendFactories returns all backend implementations to test.
// Consul is only tested when S3FS_TEST_CONSUL_ADDR is set.
func GetTestBackendFactories() map[string]TestBackendFactory {
	factories := map[string]TestBackendFactory{
		"sqlite": func(t *testing.T) (statcache.Backend, error) {
			return sqlite.NewSQLiteBackend(":memory:")
		},
	}

	if addr := os.Getenv("S3FS_TEST_CONSUL_ADDR"); addr != "" {
		factories["consul"] = func(t *testing.T) (statcache.Backend, error) {
			return consul.NewConsulBackend(&consul.ConsulBackendConfig{
				Address: addr,
				Prefix:  "s3fs-test/" + t.Name() + "/",
			})
		}
	}

	return factories
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func openCache(t *testing.T, factory TestBackendFactory, c *clock) *statcache.StatCache {
	t.Helper()

	backend, err := factory(t)
	if err != nil {
		t.Fatalf("Backend init failed: %v", err)
	}

	sc := statcache.New(backend, statcache.WithClock(c.Now))
	if err := sc.Open(t.Context()); err != nil {
		t.Fatalf("Backend open failed: %v", err)
	}
	t.Cleanup(func() {
		sc.Close(context.Background())
	})

	return sc
}

func TestAllBackends_SetGet(t *testing.T) {
	for name, factory := range GetTestBackendFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			c := &clock{now: time.Unix(1700000000, 0)}
			sc := openCache(tst, factory, c)

			record := data.NewFileRecord("s3://media/a.png", 42, time.Unix(1690000000, 0), "owner")
			if err := sc.Set(ctx, record, time.Minute); err != nil {
				tst.Fatalf("Set failed: %v", err)
			}

			got, err := sc.Get(ctx, "s3://media/a.png/")
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if got.Size != 42 || got.Owner != "owner" {
				tst.Errorf("Unexpected record %+v", got)
			}

			if err := sc.Remove(ctx, "s3://media/a.png"); err != nil {
				tst.Fatalf("Remove failed: %v", err)
			}
			if _, err := sc.Get(ctx, "s3://media/a.png"); !statcache.IsMiss(err) {
				tst.Errorf("Expected miss after remove, got %v", err)
			}
		})
	}
}

// TestAllBackends_Expiry verifies that expired entries are dropped on read.
func TestAllBackends_Expiry(t *testing.T) {
	for name, factory := range GetTestBackendFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			c := &clock{now: time.Unix(1700000000, 0)}
			sc := openCache(tst, factory, c)

			record := data.NewFileRecord("s3://media/b.png", 1, time.Unix(1690000000, 0), "owner")
			if err := sc.Set(ctx, record, time.Minute); err != nil {
				tst.Fatalf("Set failed: %v", err)
			}

			c.now = c.now.Add(time.Minute)
			if _, err := sc.Get(ctx, "s3://media/b.png"); !errors.Is(err, data.ErrNotExist) {
				tst.Fatalf("Expected expired entry to miss, got %v", err)
			}

			// Rewinding the clock must not resurrect the removed entry
			c.now = c.now.Add(-time.Hour)
			if _, err := sc.Get(ctx, "s3://media/b.png"); !errors.Is(err, data.ErrNotExist) {
				tst.Errorf("Expected entry to be removed, got %v", err)
			}
		})
	}
}

func TestAllBackends_DefaultTTL(t *testing.T) {
	for name, factory := range GetTestBackendFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()
			c := &clock{now: time.Unix(1700000000, 0)}
			sc := openCache(tst, factory, c)

			record := data.NewDirectoryRecord("s3://media/dir", c.now, "S3 File System")
			if err := sc.Set(ctx, record, 0); err != nil {
				tst.Fatalf("Set failed: %v", err)
			}

			c.now = c.now.Add(statcache.DefaultTTL - time.Second)
			got, err := sc.Get(ctx, "s3://media/dir")
			if err != nil {
				tst.Fatalf("Expected entry within default TTL, got %v", err)
			}
			if !got.IsDirectory {
				tst.Errorf("Expected directory record, got %+v", got)
			}
		})
	}
}
