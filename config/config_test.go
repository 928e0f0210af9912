package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwantia/s3fs/data"
)

func validConfig() *Config {
	cfg := NewDefault()
	cfg.Store.Bucket = "assets"
	cfg.Store.AccessKey = "key"
	cfg.Store.SecretKey = "secret"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := map[string]func(*Config){
		"missing bucket": func(c *Config) {
			c.Store.Bucket = ""
		},
		"missing credentials": func(c *Config) {
			c.Store.SecretKey = ""
		},
		"instance profile on minio": func(c *Config) {
			c.Store.AccessKey, c.Store.SecretKey = "", ""
			c.Store.UseInstanceProfile = true
		},
		"invalid proxy": func(c *Config) {
			c.Store.Proxy.Host = "not a url"
		},
		"local without path": func(c *Config) {
			c.Store.Driver = "local"
		},
		"sqlite without dsn": func(c *Config) {
			c.Cache.Driver = "sqlite"
		},
		"page size": func(c *Config) {
			c.Reconcile.PageSize = 5000
		},
		"log rotation": func(c *Config) {
			c.Log.MaxBackups = -1
		},
		"log level": func(c *Config) {
			c.Log.Level = "verbose"
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(tst *testing.T) {
			cfg := validConfig()
			mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, data.ErrConfig) {
				tst.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestValidate_InstanceProfile(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "aws"
	cfg.Store.AccessKey, cfg.Store.SecretKey = "", ""
	cfg.Store.UseInstanceProfile = true

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "s3fs.yaml")
	content := `
scheme: media
store:
  driver: minio
  endpoint: localhost:9000
  bucket: assets
  access_key: key
  secret_key: secret
  key_prefix: /uploads/
cache:
  driver: sqlite
  dsn: /tmp/s3fs.db
  ttl: 10m
upload:
  confirm_attempts: 3
  confirm_interval: 250ms
urls:
  presigned:
    - "30|^private/"
`
	if err := os.WriteFile(file, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("S3FS_BUCKET", "override")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Scheme != "media" {
		t.Errorf("Expected scheme media, got %q", cfg.Scheme)
	}
	if cfg.Store.Bucket != "override" {
		t.Errorf("Expected env override for bucket, got %q", cfg.Store.Bucket)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected ttl 10m, got %v", cfg.Cache.TTL)
	}
	if cfg.Upload.ConfirmInterval != 250*time.Millisecond {
		t.Errorf("Expected confirm interval 250ms, got %v", cfg.Upload.ConfirmInterval)
	}
	if cfg.Read.SeekLimit != 52428800 {
		t.Errorf("Expected default seek limit, got %d", cfg.Read.SeekLimit)
	}
	if len(cfg.URLs.Presigned) != 1 || cfg.URLs.Presigned[0] != "30|^private/" {
		t.Errorf("Unexpected presigned rules %v", cfg.URLs.Presigned)
	}
}

func TestLoadFromEnv_InvalidTTL(t *testing.T) {
	t.Setenv("S3FS_CACHE_TTL", "soon")

	if _, err := Load(""); !errors.Is(err, data.ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
}
