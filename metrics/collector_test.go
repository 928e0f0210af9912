package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector("")

	c.ObserveOperation("stat", time.Now(), nil)
	c.ObserveOperation("stat", time.Now(), errors.New("boom"))
	c.CacheLookup(CacheHit)
	c.CacheLookup(CacheHit)
	c.CacheLookup(CacheMiss)
	c.RemoteRead(128)
	c.RemoteWrite(0)
	c.HandleOpened()
	c.HandleOpened()
	c.HandleClosed()
	c.ObserveReconcile("prefix", 3, 2, time.Second, nil)

	if got := testutil.ToFloat64(c.operationsTotal.WithLabelValues("stat", "error")); got != 1 {
		t.Errorf("Expected 1 failed stat, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues(CacheHit)); got != 2 {
		t.Errorf("Expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.remoteBytes.WithLabelValues("read")); got != 128 {
		t.Errorf("Expected 128 bytes read, got %v", got)
	}
	if got := testutil.ToFloat64(c.openHandles); got != 1 {
		t.Errorf("Expected 1 open handle, got %v", got)
	}
	if got := testutil.ToFloat64(c.reconcileRecords.WithLabelValues("file")); got != 3 {
		t.Errorf("Expected 3 reconciled files, got %v", got)
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector

	// Must not panic
	c.ObserveOperation("stat", time.Now(), nil)
	c.CacheLookup(CacheMiss)
	c.RemoteRead(1)
	c.HandleOpened()
	c.ObserveReconcile("mount", 1, 1, time.Second, nil)

	if c.Registry() != nil {
		t.Errorf("Expected nil registry")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("s3fs")
	c.CacheLookup(CacheBypass)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `s3fs_cache_lookups_total{result="bypass"} 1`) {
		t.Errorf("Expected bypass lookup in output, got:\n%s", rec.Body.String())
	}
}
