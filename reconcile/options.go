package reconcile

import (
	"fmt"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/metrics"
)

const DefaultPageSize = 1000

type JobOptions struct {
	Logger  *log.Logger
	Clock   func() time.Time
	Metrics *metrics.Collector

	Namespace      data.Namespace
	PageSize       int           // Keys requested per listing page
	DirectoryOwner string        // Owner reported for synthesized directories
	RecordTTL      time.Duration // Expiry applied to file records; 0 keeps them forever
}

type JobOption func(*JobOptions) error

func newDefaultJobOptions() *JobOptions {
	return &JobOptions{
		Logger:         log.NewNopLogger(),
		Clock:          time.Now,
		Namespace:      data.NewNamespace("s3", ""),
		PageSize:       DefaultPageSize,
		DirectoryOwner: "S3 File System",
	}
}

func WithLogger(l *log.Logger) JobOption {
	return func(jo *JobOptions) error {
		if l != nil {
			jo.Logger = l
		}
		return nil
	}
}

func WithClock(now func() time.Time) JobOption {
	return func(jo *JobOptions) error {
		if now != nil {
			jo.Clock = now
		}
		return nil
	}
}

func WithMetrics(c *metrics.Collector) JobOption {
	return func(jo *JobOptions) error {
		jo.Metrics = c
		return nil
	}
}

// WithNamespace sets the URI scheme and key prefix the job rebuilds.
func WithNamespace(ns data.Namespace) JobOption {
	return func(jo *JobOptions) error {
		if ns.Scheme == "" {
			return fmt.Errorf("%w: reconcile scheme is required", data.ErrConfig)
		}
		jo.Namespace = ns
		return nil
	}
}

func WithPageSize(size int) JobOption {
	return func(jo *JobOptions) error {
		if size < 1 {
			return fmt.Errorf("%w: page size must be positive, got %d", data.ErrConfig, size)
		}
		jo.PageSize = size
		return nil
	}
}

func WithDirectoryOwner(owner string) JobOption {
	return func(jo *JobOptions) error {
		if owner != "" {
			jo.DirectoryOwner = owner
		}
		return nil
	}
}

func WithRecordTTL(ttl time.Duration) JobOption {
	return func(jo *JobOptions) error {
		if ttl < 0 {
			return fmt.Errorf("%w: record ttl must not be negative", data.ErrConfig)
		}
		jo.RecordTTL = ttl
		return nil
	}
}
