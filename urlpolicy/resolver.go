package urlpolicy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/objectstore"
	"github.com/mwantia/s3fs/statcache"
)

// Stater resolves metadata for a URI; a mount satisfies it.
type Stater interface {
	Stat(ctx context.Context, uri string, flags data.StatFlags) (*data.Record, error)
}

type ResolverOptions struct {
	Logger     *log.Logger
	ForceHTTPS bool

	CDNDomain   string // Host serving public objects instead of the store
	CDNHTTPOnly bool   // The CDN host is only reachable through plain http

	FallbackPrefix string // Relative keys below this prefix may be served from FallbackURL
	FallbackURL    string // Base URL for missing objects below FallbackPrefix

	StatCache *statcache.StatCache
	StatTTL   time.Duration
}

type ResolverOption func(*ResolverOptions)

func WithLogger(l *log.Logger) ResolverOption {
	return func(ro *ResolverOptions) {
		if l != nil {
			ro.Logger = l
		}
	}
}

func WithForceHTTPS(force bool) ResolverOption {
	return func(ro *ResolverOptions) {
		ro.ForceHTTPS = force
	}
}

// WithCDN serves public objects from domain.
func WithCDN(domain string, httpOnly bool) ResolverOption {
	return func(ro *ResolverOptions) {
		ro.CDNDomain = strings.TrimSuffix(domain, "/")
		ro.CDNHTTPOnly = httpOnly
	}
}

// WithFallback redirects missing objects below prefix to baseURL,
// where they can be generated on first request.
func WithFallback(prefix, baseURL string) ResolverOption {
	return func(ro *ResolverOptions) {
		ro.FallbackPrefix = strings.Trim(prefix, "/")
		ro.FallbackURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithStatCache remembers existence checks in sc for ttl.
func WithStatCache(sc *statcache.StatCache, ttl time.Duration) ResolverOption {
	return func(ro *ResolverOptions) {
		ro.StatCache = sc
		ro.StatTTL = ttl
	}
}

// Resolver builds external URLs for the objects of one mount.
type Resolver struct {
	ns      data.Namespace
	signer  objectstore.URLSigner
	stater  Stater
	policy  *Policy
	options *ResolverOptions
	log     *log.Logger
}

func NewResolver(ns data.Namespace, signer objectstore.URLSigner, stater Stater, policy *Policy, opts ...ResolverOption) (*Resolver, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: url signer is required", data.ErrConfig)
	}
	if policy == nil {
		policy = &Policy{}
	}

	options := &ResolverOptions{
		Logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.FallbackPrefix != "" && stater == nil {
		return nil, fmt.Errorf("%w: fallback urls require a stater", data.ErrConfig)
	}

	return &Resolver{
		ns:      ns,
		signer:  signer,
		stater:  stater,
		policy:  policy,
		options: options,
		log:     options.Logger,
	}, nil
}

// ExternalURL returns the URL clients use to download uri.
func (r *Resolver) ExternalURL(ctx context.Context, uri string, secure bool) (string, error) {
	key, err := r.ns.Path(uri)
	if err != nil {
		return "", err
	}
	if r.ns.IsRoot(key) {
		return "", data.ErrIsDirectory
	}

	secure = secure || r.options.ForceHTTPS
	relative := r.ns.Relative(key)

	if r.options.FallbackPrefix != "" && data.HasPrefix(relative, r.options.FallbackPrefix) {
		if !r.exists(ctx, r.ns.URI(key)) {
			r.log.Debug("ExternalURL: %s is missing, using fallback", uri)
			return r.options.FallbackURL + "/" + relative, nil
		}
	}

	decision := r.policy.Match(relative)

	var result string
	switch {
	case decision.Signed():
		result, err = r.presign(ctx, key, decision)
		if err != nil {
			r.log.Error("ExternalURL: failed to presign %s - %v", uri, err)
			return "", err
		}
	case r.options.CDNDomain != "" && !strings.Contains(key, "?"):
		result = r.cdnURL(key, secure)
	default:
		result = r.signer.ObjectURL(key, secure)
	}

	if decision.Torrent {
		result += "?torrent"
	}

	r.log.Debug("ExternalURL: resolved %s to %s", uri, result)
	return result, nil
}

func (r *Resolver) presign(ctx context.Context, key string, decision Decision) (string, error) {
	expiry := objectstore.MaxPresignExpiry
	if decision.Presign && decision.Timeout < expiry {
		expiry = decision.Timeout
	}

	params := url.Values{}
	if decision.SaveAs {
		params.Set("response-content-disposition", decision.Disposition)
	}

	return r.signer.PresignGet(ctx, key, expiry, params)
}

func (r *Resolver) cdnURL(key string, secure bool) string {
	scheme := "http"
	if secure && !r.options.CDNHTTPOnly {
		scheme = "https"
	}
	return scheme + "://" + r.options.CDNDomain + "/" + key
}

// exists checks uri against the stat cache first and remembers hits.
func (r *Resolver) exists(ctx context.Context, uri string) bool {
	sc := r.options.StatCache
	if sc != nil {
		record, err := sc.Get(ctx, uri)
		if err == nil {
			return !record.IsDirectory
		}
		if !statcache.IsMiss(err) {
			r.log.Warn("exists: stat cache lookup for %s failed - %v", uri, err)
		}
	}

	record, err := r.stater.Stat(ctx, uri, data.StatQuiet)
	if err != nil {
		return false
	}

	if sc != nil {
		if err := sc.Set(ctx, record, r.options.StatTTL); err != nil {
			r.log.Warn("exists: failed to remember %s - %v", uri, err)
		}
	}
	return !record.IsDirectory
}
