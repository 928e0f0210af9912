package urlpolicy_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore/memory"
	"github.com/mwantia/s3fs/statcache"
	"github.com/mwantia/s3fs/statcache/sqlite"
	"github.com/mwantia/s3fs/urlpolicy"
)

type fakeStater struct {
	calls   int
	records map[string]*data.Record
}

func (fs *fakeStater) Stat(ctx context.Context, uri string, flags data.StatFlags) (*data.Record, error) {
	fs.calls++
	if record, exists := fs.records[uri]; exists {
		return record, nil
	}
	return nil, data.ErrNotExist
}

func newPolicy(t *testing.T) *urlpolicy.Policy {
	t.Helper()

	policy, err := urlpolicy.ParsePolicy(
		[]string{"30|^private/", "^secret/"},
		[]string{"^downloads/", "^private/"},
		[]string{"^videos/", "^private/"},
	)
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}
	return policy
}

func newResolver(t *testing.T, stater urlpolicy.Stater, opts ...urlpolicy.ResolverOption) *urlpolicy.Resolver {
	t.Helper()

	resolver, err := urlpolicy.NewResolver(data.NewNamespace("s3", "media"), memory.NewMemoryClient("bucket"), stater, newPolicy(t), opts...)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return resolver
}

func TestPolicy_Parse(t *testing.T) {
	for _, rules := range [][]string{{"abc|^x"}, {"0|^x"}, {"("}} {
		if _, err := urlpolicy.ParsePolicy(rules, nil, nil); !errors.Is(err, data.ErrConfig) {
			t.Errorf("Expected ErrConfig for %v, got %v", rules, err)
		}
	}
	if _, err := urlpolicy.ParsePolicy(nil, []string{"["}, nil); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig for invalid saveas pattern, got %v", err)
	}
}

func TestPolicy_Match(t *testing.T) {
	policy := newPolicy(t)

	tests := map[string]urlpolicy.Decision{
		"private/a.pdf": {
			Presign: true, Timeout: 30 * time.Second,
			SaveAs: true, Disposition: `attachment; filename="a.pdf"`,
		},
		"secret/b.txt":   {Presign: true, Timeout: urlpolicy.DefaultPresignTimeout},
		"downloads/c.gz": {SaveAs: true, Disposition: `attachment; filename="c.gz"`},
		"videos/d.mp4":   {Torrent: true},
		"public/e.png":   {},
	}

	for key, want := range tests {
		t.Run(key, func(tst *testing.T) {
			if got := policy.Match(key); got != want {
				tst.Errorf("Expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestResolver_ExternalURL(t *testing.T) {
	ctx := t.Context()
	resolver := newResolver(t, nil)

	tests := []struct {
		uri    string
		secure bool
		check  func(string) bool
	}{
		{"s3://media/public/e.png", false, func(u string) bool { return u == "http://bucket.memory.local/media/public/e.png" }},
		{"s3://public/e.png", true, func(u string) bool { return u == "https://bucket.memory.local/media/public/e.png" }},
		{"s3://media/videos/d.mp4", false, func(u string) bool { return u == "http://bucket.memory.local/media/videos/d.mp4?torrent" }},
		{"s3://media/secret/b.txt", false, func(u string) bool { return strings.Contains(u, "X-Amz-Expires=60") }},
	}

	for _, tt := range tests {
		got, err := resolver.ExternalURL(ctx, tt.uri, tt.secure)
		if err != nil {
			t.Fatalf("ExternalURL failed for %s: %v", tt.uri, err)
		}
		if !tt.check(got) {
			t.Errorf("Unexpected URL for %s: %s", tt.uri, got)
		}
	}

	if _, err := resolver.ExternalURL(ctx, "s3://media", false); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("Expected ErrIsDirectory for the mount root, got %v", err)
	}
	if _, err := resolver.ExternalURL(ctx, "gs://media/a", false); !errors.Is(err, data.ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for a foreign scheme, got %v", err)
	}
}

func TestResolver_SignedURLs(t *testing.T) {
	ctx := t.Context()
	resolver := newResolver(t, nil, urlpolicy.WithCDN("cdn.example.com/", false))

	raw, err := resolver.ExternalURL(ctx, "s3://media/downloads/c.gz", false)
	if err != nil {
		t.Fatalf("ExternalURL failed: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if u.Host != "bucket.memory.local" {
		t.Errorf("Expected signed URLs to bypass the CDN, got %s", raw)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "604800" {
		t.Errorf("Expected forced downloads to use the maximum expiry, got %s", got)
	}
	if got := u.Query().Get("response-content-disposition"); got != `attachment; filename="c.gz"` {
		t.Errorf("Unexpected disposition %q", got)
	}

	raw, err = resolver.ExternalURL(ctx, "s3://media/private/a.pdf", false)
	if err != nil {
		t.Fatalf("ExternalURL failed: %v", err)
	}
	if strings.HasSuffix(raw, "?torrent") || !strings.Contains(raw, "X-Amz-Expires=30") {
		t.Errorf("Unexpected presigned URL %s", raw)
	}
}

func TestResolver_CDN(t *testing.T) {
	ctx := t.Context()

	resolver := newResolver(t, nil, urlpolicy.WithCDN("cdn.example.com", false), urlpolicy.WithForceHTTPS(true))
	got, err := resolver.ExternalURL(ctx, "s3://media/public/e.png", false)
	if err != nil {
		t.Fatalf("ExternalURL failed: %v", err)
	}
	if got != "https://cdn.example.com/media/public/e.png" {
		t.Errorf("Unexpected CDN URL %s", got)
	}

	resolver = newResolver(t, nil, urlpolicy.WithCDN("cdn.example.com", true))
	got, err = resolver.ExternalURL(ctx, "s3://media/videos/d.mp4", true)
	if err != nil {
		t.Fatalf("ExternalURL failed: %v", err)
	}
	if got != "http://cdn.example.com/media/videos/d.mp4?torrent" {
		t.Errorf("Unexpected CDN URL %s", got)
	}
}

func TestResolver_Fallback(t *testing.T) {
	ctx := t.Context()

	backend, err := sqlite.NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	sc := statcache.New(backend)
	if err := sc.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		sc.Close(context.Background())
	})

	stater := &fakeStater{records: make(map[string]*data.Record)}
	resolver := newResolver(t, stater,
		urlpolicy.WithFallback("/styles/", "https://app.example.com/generate/"),
		urlpolicy.WithStatCache(sc, time.Hour))

	got, err := resolver.ExternalURL(ctx, "s3://media/styles/thumb/a.jpg", false)
	if err != nil {
		t.Fatalf("ExternalURL failed: %v", err)
	}
	if got != "https://app.example.com/generate/styles/thumb/a.jpg" {
		t.Errorf("Expected fallback URL, got %s", got)
	}

	stater.records["s3://media/styles/thumb/a.jpg"] = data.NewFileRecord("s3://media/styles/thumb/a.jpg", 10, time.Now(), "")
	for range 2 {
		got, err = resolver.ExternalURL(ctx, "s3://media/styles/thumb/a.jpg", false)
		if err != nil {
			t.Fatalf("ExternalURL failed: %v", err)
		}
		if got != "http://bucket.memory.local/media/styles/thumb/a.jpg" {
			t.Errorf("Expected store URL, got %s", got)
		}
	}
	if stater.calls != 2 {
		t.Errorf("Expected the second lookup to be served by the stat cache, got %d stat calls", stater.calls)
	}

	if _, err := urlpolicy.NewResolver(data.NewNamespace("s3", ""), memory.NewMemoryClient("b"), nil, nil, urlpolicy.WithFallback("styles", "https://x")); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig for fallback without stater, got %v", err)
	}
}
