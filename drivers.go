package s3fs

import (
	"context"
	"fmt"

	"github.com/mwantia/s3fs/cache"
	cachemem "github.com/mwantia/s3fs/cache/memory"
	"github.com/mwantia/s3fs/cache/postgres"
	"github.com/mwantia/s3fs/cache/sqlite"
	"github.com/mwantia/s3fs/config"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"github.com/mwantia/s3fs/objectstore/awss3"
	"github.com/mwantia/s3fs/objectstore/local"
	"github.com/mwantia/s3fs/objectstore/memory"
	"github.com/mwantia/s3fs/objectstore/s3"
	"github.com/mwantia/s3fs/statcache"
	"github.com/mwantia/s3fs/statcache/consul"
	statsqlite "github.com/mwantia/s3fs/statcache/sqlite"
)

func newLogger(cfg config.LogConfig) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrConfig, err)
	}

	return log.New("s3fs", level, log.Options{
		File:       cfg.File,
		NoTerminal: cfg.NoTerminal,
		NoColor:    cfg.NoColor,
		JSON:       cfg.JSON,
		Rotation: &log.LoggerRotation{
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}), nil
}

func newClient(ctx context.Context, cfg config.StoreConfig) (Client, error) {
	switch cfg.Driver {
	case "minio":
		return s3.NewS3Client(&s3.S3ClientConfig{
			Endpoint:       cfg.Endpoint,
			Bucket:         cfg.Bucket,
			Region:         cfg.Region,
			AccessKey:      cfg.AccessKey,
			SecretKey:      cfg.SecretKey,
			UseSSL:         cfg.UseSSL,
			PathStyle:      cfg.PathStyle,
			ProxyURL:       cfg.Proxy.Host,
			Timeout:        cfg.Proxy.Timeout,
			ConnectTimeout: cfg.Proxy.ConnectTimeout,
		})
	case "aws":
		return awss3.NewAWSClient(ctx, &awss3.AWSClientConfig{
			Bucket:             cfg.Bucket,
			Region:             cfg.Region,
			Endpoint:           cfg.Endpoint,
			AccessKey:          cfg.AccessKey,
			SecretKey:          cfg.SecretKey,
			UseInstanceProfile: cfg.UseInstanceProfile,
			PathStyle:          cfg.PathStyle,
			ProxyURL:           cfg.Proxy.Host,
			Timeout:            cfg.Proxy.Timeout,
			ConnectTimeout:     cfg.Proxy.ConnectTimeout,
		})
	case "local":
		return local.NewLocalClient(cfg.Path)
	case "memory":
		return memory.NewMemoryClient(cfg.Bucket), nil
	}

	return nil, fmt.Errorf("%w: unknown store driver %q", data.ErrConfig, cfg.Driver)
}

func newStore(ctx context.Context, cfg config.CacheConfig) (cache.Reconcilable, error) {
	switch cfg.Driver {
	case "memory":
		return cachemem.NewMemoryStore(), nil
	case "sqlite":
		return sqlite.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return postgres.NewPostgresStore(ctx, cfg.DSN)
	}

	return nil, fmt.Errorf("%w: unknown cache driver %q", data.ErrConfig, cfg.Driver)
}

// newStatCache returns nil when the stat cache is disabled.
func newStatCache(cfg config.StatCacheConfig, l *log.Logger) (*statcache.StatCache, error) {
	var backend statcache.Backend
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		b, err := statsqlite.NewSQLiteBackend(cfg.DSN)
		if err != nil {
			return nil, err
		}
		backend = b
	case "consul":
		b, err := consul.NewConsulBackend(&consul.ConsulBackendConfig{
			Address:    cfg.Consul.Address,
			Token:      cfg.Consul.Token,
			Datacenter: cfg.Consul.Datacenter,
			Namespace:  cfg.Consul.Namespace,
			Prefix:     cfg.Consul.Prefix,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("%w: unknown statcache driver %q", data.ErrConfig, cfg.Driver)
	}

	return statcache.New(backend, statcache.WithLogger(l.Named("statcache"))), nil
}
