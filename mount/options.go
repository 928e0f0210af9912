package mount

import (
	"fmt"
	"time"

	"github.com/mwantia/s3fs/buffer"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/metrics"
)

// Config identifies the single bucket area served by a mount.
type Config struct {
	// Scheme of every URI handled by the mount, e.g. "s3"
	Scheme string

	// Prefix is the key prefix the mount is rooted at; empty for the bucket root
	Prefix string

	// DirectoryOwner is reported as owner of synthesized directories
	DirectoryOwner string
}

type MountOptions struct {
	Logger  *log.Logger
	Clock   func() time.Time
	Metrics *metrics.Collector

	IgnoreCache bool          // Re-fetch remote metadata for cached files on stat
	RecordTTL   time.Duration // Expiry applied to file records; 0 keeps them forever

	ConfirmAttempts int           // Head polls after an upload
	ConfirmInterval time.Duration // Delay between two polls

	SpillThreshold int64  // In-memory write buffer size before spilling to disk
	TempDir        string // Directory for spilled write buffers
	SeekLimit      int64  // Highest seekable offset of read handles

	ContentTypes data.ContentTypes // Extension to content type table for uploads
}

type MountOption func(*MountOptions) error

func newDefaultMountOptions() *MountOptions {
	return &MountOptions{
		Logger:          log.NewNopLogger(),
		Clock:           time.Now,
		ConfirmAttempts: 20,
		ConfirmInterval: 5 * time.Second,
		SpillThreshold:  buffer.DefaultSpillThreshold,
		SeekLimit:       buffer.DefaultSeekLimit,
		ContentTypes:    data.DefaultContentTypes,
	}
}

func WithLogger(l *log.Logger) MountOption {
	return func(mo *MountOptions) error {
		if l != nil {
			mo.Logger = l
		}
		return nil
	}
}

// WithClock replaces the time source used for synthesized records and expiry.
func WithClock(now func() time.Time) MountOption {
	return func(mo *MountOptions) error {
		mo.Clock = now
		return nil
	}
}

func WithMetrics(c *metrics.Collector) MountOption {
	return func(mo *MountOptions) error {
		mo.Metrics = c
		return nil
	}
}

// WithIgnoreCache makes stat bypass cached file records without rewriting them.
func WithIgnoreCache() MountOption {
	return func(mo *MountOptions) error {
		mo.IgnoreCache = true
		return nil
	}
}

func WithRecordTTL(ttl time.Duration) MountOption {
	return func(mo *MountOptions) error {
		if ttl < 0 {
			return fmt.Errorf("%w: negative record ttl %v", data.ErrConfig, ttl)
		}
		mo.RecordTTL = ttl
		return nil
	}
}

// WithConfirmPolicy bounds the existence-confirmation wait after uploads.
func WithConfirmPolicy(attempts int, interval time.Duration) MountOption {
	return func(mo *MountOptions) error {
		if attempts < 1 {
			return fmt.Errorf("%w: confirm attempts must be at least 1", data.ErrConfig)
		}
		if interval < 0 {
			return fmt.Errorf("%w: negative confirm interval %v", data.ErrConfig, interval)
		}
		mo.ConfirmAttempts = attempts
		mo.ConfirmInterval = interval
		return nil
	}
}

func WithSpillThreshold(threshold int64, dir string) MountOption {
	return func(mo *MountOptions) error {
		if threshold > 0 {
			mo.SpillThreshold = threshold
		}
		mo.TempDir = dir
		return nil
	}
}

func WithSeekLimit(limit int64) MountOption {
	return func(mo *MountOptions) error {
		if limit <= 0 {
			return fmt.Errorf("%w: seek limit must be positive", data.ErrConfig)
		}
		mo.SeekLimit = limit
		return nil
	}
}

// WithContentTypes adds extension to content type overrides, e.g. "webp" → "image/webp".
func WithContentTypes(types map[string]string) MountOption {
	return func(mo *MountOptions) error {
		mo.ContentTypes = mo.ContentTypes.With(types)
		return nil
	}
}
