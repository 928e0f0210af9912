package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore"
)

// S3Client talks to any S3 compatible endpoint through minio-go.
type S3Client struct {
	mu sync.RWMutex

	client     *minio.Client
	bucketName string
	config     *S3ClientConfig
}

// S3ClientConfig contains configuration options for the S3 client
type S3ClientConfig struct {
	// Endpoint without scheme (default: "s3.amazonaws.com")
	Endpoint string

	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// PathStyle forces path-style bucket lookup
	PathStyle bool

	// ProxyURL routes every request through an HTTP proxy (optional)
	ProxyURL       string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// NewS3Client creates a new minio-go backed object store client.
func NewS3Client(config *S3ClientConfig) (*S3Client, error) {
	if config == nil || config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", data.ErrConfig)
	}
	if config.AccessKey == "" || config.SecretKey == "" {
		return nil, fmt.Errorf("%w: access key and secret key are required", data.ErrConfig)
	}

	// Set defaults
	if config.Endpoint == "" {
		config.Endpoint = "s3.amazonaws.com"
	}

	transport, err := minio.DefaultTransport(config.UseSSL)
	if err != nil {
		return nil, err
	}

	if config.ProxyURL != "" {
		proxy, err := url.Parse(config.ProxyURL)
		if err != nil || proxy.Host == "" {
			return nil, fmt.Errorf("%w: invalid proxy %q", data.ErrConfig, config.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	if config.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	if config.Timeout > 0 {
		transport.ResponseHeaderTimeout = config.Timeout
	}

	lookup := minio.BucketLookupAuto
	if config.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure:       config.UseSSL,
		Region:       config.Region,
		BucketLookup: lookup,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrConfig, err)
	}

	return &S3Client{
		client:     client,
		bucketName: config.Bucket,
		config:     config,
	}, nil
}

// Name returns the identifier of this client implementation.
func (*S3Client) Name() string {
	return "s3"
}

func (sc *S3Client) Bucket() string {
	return sc.bucketName
}

// Open is part of the lifecycle behaviour and verifies the bucket exists.
func (sc *S3Client) Open(ctx context.Context) error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	exists, err := sc.client.BucketExists(ctx, sc.bucketName)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: bucket %q does not exist", data.ErrConfig, sc.bucketName)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this client.
func (sc *S3Client) Close(ctx context.Context) error {
	return nil
}

func (sc *S3Client) Get(ctx context.Context, key string, rng *objectstore.Range) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil && (rng.Start > 0 || rng.End >= 0) {
		end := rng.End
		if end < 0 {
			end = 0 // minio-go reads to the end for "start-"
		}
		if err := opts.SetRange(rng.Start, end); err != nil {
			return nil, nil, err
		}
	}

	object, err := sc.client.GetObject(ctx, sc.bucketName, key, opts)
	if err != nil {
		return nil, nil, convertError(err)
	}

	// GetObject is lazy; Stat surfaces missing keys before the first read
	info, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, nil, convertError(err)
	}

	return object, convertObjectInfo(info), nil
}

func (sc *S3Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, visibility objectstore.Visibility) error {
	_, err := sc.client.PutObject(ctx, sc.bucketName, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"x-amz-acl": string(visibility),
		},
	})
	return convertError(err)
}

func (sc *S3Client) Delete(ctx context.Context, key string) error {
	err := sc.client.RemoveObject(ctx, sc.bucketName, key, minio.RemoveObjectOptions{})
	if err = convertError(err); errors.Is(err, data.ErrNotExist) {
		return nil
	}
	return err
}

// Copy duplicates an object server-side. minio-go only sends an ACL
// together with replaced metadata, so the source metadata is carried over.
func (sc *S3Client) Copy(ctx context.Context, srcKey, dstKey string, visibility objectstore.Visibility) error {
	info, err := sc.client.StatObject(ctx, sc.bucketName, srcKey, minio.StatObjectOptions{})
	if err != nil {
		return convertError(err)
	}

	metadata := make(map[string]string, len(info.UserMetadata)+2)
	for k, v := range info.UserMetadata {
		metadata[k] = v
	}
	metadata["Content-Type"] = info.ContentType
	metadata["x-amz-acl"] = string(visibility)

	_, err = sc.client.CopyObject(ctx, minio.CopyDestOptions{
		Bucket:          sc.bucketName,
		Object:          dstKey,
		ReplaceMetadata: true,
		UserMetadata:    metadata,
	}, minio.CopySrcOptions{
		Bucket: sc.bucketName,
		Object: srcKey,
	})
	return convertError(err)
}

func (sc *S3Client) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	info, err := sc.client.StatObject(ctx, sc.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, convertError(err)
	}

	return convertObjectInfo(info), nil
}

// List reads one page from the listing channel. The token is the last key
// of the previous page and maps onto StartAfter.
func (sc *S3Client) List(ctx context.Context, prefix string, pageSize int, token string) (*objectstore.ListPage, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectsCh := sc.client.ListObjects(listCtx, sc.bucketName, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: false,
		MaxKeys:      pageSize,
		StartAfter:   token,
	})

	page := &objectstore.ListPage{}
	for object := range objectsCh {
		if object.Err != nil {
			return nil, convertError(object.Err)
		}
		if len(page.Objects) == pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, convertObjectInfo(object))
	}

	return page, nil
}

// ObjectURL returns the unsigned URL of key.
func (sc *S3Client) ObjectURL(key string, secure bool) string {
	endpoint := sc.client.EndpointURL()

	scheme := "http"
	if secure {
		scheme = "https"
	}

	if sc.config.PathStyle {
		return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint.Host, sc.bucketName, escapeKey(key))
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, sc.bucketName, endpoint.Host, escapeKey(key))
}

// PresignGet returns a signed GET URL for key.
func (sc *S3Client) PresignGet(ctx context.Context, key string, expiry time.Duration, params url.Values) (string, error) {
	if expiry > objectstore.MaxPresignExpiry {
		expiry = objectstore.MaxPresignExpiry
	}

	u, err := sc.client.PresignedGetObject(ctx, sc.bucketName, key, expiry, params)
	if err != nil {
		return "", convertError(err)
	}

	return u.String(), nil
}

func convertObjectInfo(info minio.ObjectInfo) *objectstore.ObjectInfo {
	owner := info.Owner.ID
	if owner == "" {
		owner = info.Owner.DisplayName
	}

	return &objectstore.ObjectInfo{
		Key:            info.Key,
		Size:           info.Size,
		LastModified:   info.LastModified,
		Owner:          owner,
		ContentType:    info.ContentType,
		ETag:           info.ETag,
		IsPrefixMarker: strings.HasSuffix(info.Key, "/"),
	}
}

func convertError(err error) error {
	if err == nil {
		return nil
	}

	errResponse := minio.ToErrorResponse(err)
	switch errResponse.Code {
	case "NoSuchKey", "NotFound":
		return data.ErrNotExist
	case "AccessDenied":
		return fmt.Errorf("%w: %v", data.ErrPermission, err)
	}

	return err
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
