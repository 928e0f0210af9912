package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of one mount.
type Config struct {
	Scheme    string          `yaml:"scheme"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	StatCache StatCacheConfig `yaml:"statcache"`
	Upload    UploadConfig    `yaml:"upload"`
	Read      ReadConfig      `yaml:"read"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	URLs      URLConfig       `yaml:"urls"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	NoTerminal bool   `yaml:"no_terminal"`
	NoColor    bool   `yaml:"no_color"`

	// Rotation of File, sizes in megabytes and ages in days
	MaxSize    int  `yaml:"max_size"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"`
	Compress   bool `yaml:"compress"`
}

// StoreConfig selects and configures the object store client.
type StoreConfig struct {
	// Driver is one of "minio", "aws", "local" or "memory"
	Driver string `yaml:"driver"`

	// Path is the root directory of the local driver
	Path string `yaml:"path"`

	Endpoint           string      `yaml:"endpoint"`
	Region             string      `yaml:"region"`
	Bucket             string      `yaml:"bucket"`
	AccessKey          string      `yaml:"access_key"`
	SecretKey          string      `yaml:"secret_key"`
	UseSSL             bool        `yaml:"use_ssl"`
	UseInstanceProfile bool        `yaml:"use_instance_profile"`
	PathStyle          bool        `yaml:"path_style"`
	KeyPrefix          string      `yaml:"key_prefix"`
	Proxy              ProxyConfig `yaml:"proxy"`
}

type ProxyConfig struct {
	Host           string        `yaml:"host"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// CacheConfig selects and configures the metadata cache store.
type CacheConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres"
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	// TTL applied to records written by the mount; 0 disables expiry
	TTL            time.Duration `yaml:"ttl"`
	IgnoreCache    bool          `yaml:"ignore_cache"`
	DirectoryOwner string        `yaml:"directory_owner"`
}

// StatCacheConfig configures the auxiliary stat cache used for URL resolution.
type StatCacheConfig struct {
	// Driver is one of "none", "sqlite" or "consul"
	Driver string        `yaml:"driver"`
	DSN    string        `yaml:"dsn"`
	TTL    time.Duration `yaml:"ttl"`
	Consul ConsulConfig  `yaml:"consul"`
}

type ConsulConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	Datacenter string `yaml:"datacenter"`
	Namespace  string `yaml:"namespace"`
	Prefix     string `yaml:"prefix"`
}

type UploadConfig struct {
	ConfirmAttempts int               `yaml:"confirm_attempts"`
	ConfirmInterval time.Duration     `yaml:"confirm_interval"`
	SpillThreshold  int64             `yaml:"spill_threshold"`
	ContentTypes    map[string]string `yaml:"content_types"`
}

type ReadConfig struct {
	SeekLimit int64 `yaml:"seek_limit"`
}

type ReconcileConfig struct {
	PageSize int `yaml:"page_size"`
}

// URLConfig holds the external URL policy.
type URLConfig struct {
	ForceHTTPS bool      `yaml:"force_https"`
	CDN        CDNConfig `yaml:"cdn"`

	// Presigned entries use the form "timeout|pattern" or "pattern"
	Presigned []string `yaml:"presigned"`
	SaveAs    []string `yaml:"saveas"`
	Torrents  []string `yaml:"torrents"`

	// Fallback serves missing objects below a prefix from another location
	Fallback FallbackConfig `yaml:"fallback"`
}

type FallbackConfig struct {
	Prefix string `yaml:"prefix"`
	URL    string `yaml:"url"`
}

type CDNConfig struct {
	Domain   string `yaml:"domain"`
	HTTPOnly bool   `yaml:"http_only"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	return &Config{
		Scheme: "s3",
		Log: LogConfig{
			Level:      "INFO",
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
		},
		Store: StoreConfig{
			Driver: "minio",
			Region: "us-east-1",
			UseSSL: true,
		},
		Cache: CacheConfig{
			Driver:         "memory",
			DirectoryOwner: "S3 File System",
		},
		StatCache: StatCacheConfig{
			Driver: "none",
		},
		Upload: UploadConfig{
			ConfirmAttempts: 20,
			ConfirmInterval: 5 * time.Second,
			SpillThreshold:  2 << 20,
		},
		Read: ReadConfig{
			SeekLimit: 50 << 20,
		},
		Reconcile: ReconcileConfig{
			PageSize: 1000,
		},
		Metrics: MetricsConfig{
			Listen: ":9102",
		},
	}
}

// Load reads filename (if set) on top of the defaults and applies
// environment overrides.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from S3FS_* environment variables
func (c *Config) LoadFromEnv() error {
	if val := os.Getenv("S3FS_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("S3FS_LOG_FILE"); val != "" {
		c.Log.File = val
	}
	if val := os.Getenv("S3FS_LOG_JSON"); val != "" {
		c.Log.JSON = parseBool(val)
	}

	// Store settings
	if val := os.Getenv("S3FS_STORE_DRIVER"); val != "" {
		c.Store.Driver = val
	}
	if val := os.Getenv("S3FS_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("S3FS_ENDPOINT"); val != "" {
		c.Store.Endpoint = val
	}
	if val := os.Getenv("S3FS_REGION"); val != "" {
		c.Store.Region = val
	}
	if val := os.Getenv("S3FS_BUCKET"); val != "" {
		c.Store.Bucket = val
	}
	if val := os.Getenv("S3FS_ACCESS_KEY"); val != "" {
		c.Store.AccessKey = val
	}
	if val := os.Getenv("S3FS_SECRET_KEY"); val != "" {
		c.Store.SecretKey = val
	}
	if val := os.Getenv("S3FS_KEY_PREFIX"); val != "" {
		c.Store.KeyPrefix = val
	}
	if val := os.Getenv("S3FS_USE_SSL"); val != "" {
		c.Store.UseSSL = parseBool(val)
	}

	// Cache settings
	if val := os.Getenv("S3FS_CACHE_DRIVER"); val != "" {
		c.Cache.Driver = val
	}
	if val := os.Getenv("S3FS_CACHE_DSN"); val != "" {
		c.Cache.DSN = val
	}
	if val := os.Getenv("S3FS_CACHE_TTL"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: S3FS_CACHE_TTL: %v", data.ErrConfig, err)
		}
		c.Cache.TTL = duration
	}
	if val := os.Getenv("S3FS_IGNORE_CACHE"); val != "" {
		c.Cache.IgnoreCache = parseBool(val)
	}

	if val := os.Getenv("S3FS_PAGE_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: S3FS_PAGE_SIZE: %v", data.ErrConfig, err)
		}
		c.Reconcile.PageSize = size
	}

	return nil
}

// Validate reports every configuration problem wrapped in data.ErrConfig.
func (c *Config) Validate() error {
	errs := data.Errors{}

	if c.Scheme == "" || strings.ContainsAny(c.Scheme, ":/") {
		errs.Add(fmt.Errorf("%w: invalid scheme %q", data.ErrConfig, c.Scheme))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs.Add(fmt.Errorf("%w: %v", data.ErrConfig, err))
	}
	if c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAge < 0 {
		errs.Add(fmt.Errorf("%w: log rotation limits must not be negative", data.ErrConfig))
	}

	switch c.Store.Driver {
	case "minio", "aws":
		if c.Store.Bucket == "" {
			errs.Add(fmt.Errorf("%w: store.bucket is required", data.ErrConfig))
		}
		if !c.Store.UseInstanceProfile && (c.Store.AccessKey == "" || c.Store.SecretKey == "") {
			errs.Add(fmt.Errorf("%w: store.access_key and store.secret_key are required without an instance profile", data.ErrConfig))
		}
		if c.Store.UseInstanceProfile && c.Store.Driver != "aws" {
			errs.Add(fmt.Errorf("%w: store.use_instance_profile requires the aws driver", data.ErrConfig))
		}
	case "local":
		if c.Store.Path == "" {
			errs.Add(fmt.Errorf("%w: store.path is required for driver local", data.ErrConfig))
		}
	case "memory":
	default:
		errs.Add(fmt.Errorf("%w: unknown store.driver %q", data.ErrConfig, c.Store.Driver))
	}

	if c.Store.Proxy.Host != "" {
		u, err := url.Parse(c.Store.Proxy.Host)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add(fmt.Errorf("%w: invalid store.proxy.host %q", data.ErrConfig, c.Store.Proxy.Host))
		}
	}
	if c.Store.Proxy.Timeout < 0 || c.Store.Proxy.ConnectTimeout < 0 {
		errs.Add(fmt.Errorf("%w: proxy timeouts must not be negative", data.ErrConfig))
	}

	switch c.Cache.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Cache.DSN == "" {
			errs.Add(fmt.Errorf("%w: cache.dsn is required for driver %q", data.ErrConfig, c.Cache.Driver))
		}
	default:
		errs.Add(fmt.Errorf("%w: unknown cache.driver %q", data.ErrConfig, c.Cache.Driver))
	}
	if c.Cache.TTL < 0 {
		errs.Add(fmt.Errorf("%w: cache.ttl must not be negative", data.ErrConfig))
	}

	switch c.StatCache.Driver {
	case "none", "", "consul":
	case "sqlite":
		if c.StatCache.DSN == "" {
			errs.Add(fmt.Errorf("%w: statcache.dsn is required for driver sqlite", data.ErrConfig))
		}
	default:
		errs.Add(fmt.Errorf("%w: unknown statcache.driver %q", data.ErrConfig, c.StatCache.Driver))
	}

	if c.Upload.ConfirmAttempts <= 0 {
		errs.Add(fmt.Errorf("%w: upload.confirm_attempts must be greater than 0", data.ErrConfig))
	}
	if c.Upload.SpillThreshold <= 0 {
		errs.Add(fmt.Errorf("%w: upload.spill_threshold must be greater than 0", data.ErrConfig))
	}
	if c.Read.SeekLimit <= 0 {
		errs.Add(fmt.Errorf("%w: read.seek_limit must be greater than 0", data.ErrConfig))
	}
	if c.Reconcile.PageSize <= 0 || c.Reconcile.PageSize > 1000 {
		errs.Add(fmt.Errorf("%w: reconcile.page_size must be between 1 and 1000", data.ErrConfig))
	}
	if c.URLs.Fallback.Prefix != "" {
		u, err := url.Parse(c.URLs.Fallback.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add(fmt.Errorf("%w: invalid urls.fallback.url %q", data.ErrConfig, c.URLs.Fallback.URL))
		}
	}

	return errs.Errors()
}

func parseBool(val string) bool {
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
