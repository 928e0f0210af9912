package awss3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/objectstore"
)

// AWSClient talks to Amazon S3 through the AWS SDK.
// Unlike the minio-go client it supports instance profile credentials.
type AWSClient struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	config  *AWSClientConfig
}

// AWSClientConfig contains configuration options for the AWS client
type AWSClientConfig struct {
	Bucket string
	Region string

	// Endpoint overrides the service endpoint, e.g. "https://minio:9000" (optional)
	Endpoint string

	AccessKey string
	SecretKey string

	// UseInstanceProfile takes credentials from the default chain instead of the static keys
	UseInstanceProfile bool
	PathStyle          bool

	ProxyURL       string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// NewAWSClient creates a new client from config.
func NewAWSClient(ctx context.Context, cfg *AWSClientConfig) (*AWSClient, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", data.ErrConfig)
	}
	if !cfg.UseInstanceProfile && (cfg.AccessKey == "" || cfg.SecretKey == "") {
		return nil, fmt.Errorf("%w: access key and secret key are required without an instance profile", data.ErrConfig)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var proxy *url.URL
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid proxy %q", data.ErrConfig, cfg.ProxyURL)
		}
		proxy = u
	}

	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if proxy != nil {
			tr.Proxy = http.ProxyURL(proxy)
		}
		if cfg.ConnectTimeout > 0 {
			tr.DialContext = (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext
		}
		if cfg.Timeout > 0 {
			tr.ResponseHeaderTimeout = cfg.Timeout
		}
	})

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if !cfg.UseInstanceProfile {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return &AWSClient{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		config:  cfg,
	}, nil
}

// Name returns the identifier of this client implementation.
func (*AWSClient) Name() string {
	return "aws"
}

func (ac *AWSClient) Bucket() string {
	return ac.bucket
}

// Open is part of the lifecycle behaviour and verifies the bucket is reachable.
func (ac *AWSClient) Open(ctx context.Context) error {
	_, err := ac.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(ac.bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", convertError(err))
	}
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this client.
func (*AWSClient) Close(ctx context.Context) error {
	return nil
}

func (ac *AWSClient) Get(ctx context.Context, key string, rng *objectstore.Range) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(ac.bucket),
		Key:    aws.String(key),
	}
	if rng != nil && (rng.Start > 0 || rng.End >= 0) {
		if rng.End < 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", rng.Start))
		} else {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
		}
	}

	result, err := ac.client.GetObject(ctx, input)
	if err != nil {
		return nil, nil, convertError(err)
	}

	return result.Body, &objectstore.ObjectInfo{
		Key:            key,
		Size:           aws.ToInt64(result.ContentLength),
		LastModified:   aws.ToTime(result.LastModified),
		ContentType:    aws.ToString(result.ContentType),
		ETag:           aws.ToString(result.ETag),
		IsPrefixMarker: strings.HasSuffix(key, "/"),
	}, nil
}

func (ac *AWSClient) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, visibility objectstore.Visibility) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(ac.bucket),
		Key:    aws.String(key),
		Body:   body,
		ACL:    types.ObjectCannedACL(visibility),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := ac.client.PutObject(ctx, input)
	return convertError(err)
}

func (ac *AWSClient) Delete(ctx context.Context, key string) error {
	_, err := ac.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ac.bucket),
		Key:    aws.String(key),
	})
	if err = convertError(err); errors.Is(err, data.ErrNotExist) {
		return nil
	}
	return err
}

func (ac *AWSClient) Copy(ctx context.Context, srcKey, dstKey string, visibility objectstore.Visibility) error {
	_, err := ac.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(ac.bucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(ac.bucket + "/" + escapeKey(srcKey)),
		MetadataDirective: types.MetadataDirectiveCopy,
		ACL:               types.ObjectCannedACL(visibility),
	})
	return convertError(err)
}

// Head resolves metadata through a single-key listing, which also
// reports the object owner.
func (ac *AWSClient) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	result, err := ac.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:     aws.String(ac.bucket),
		Prefix:     aws.String(key),
		MaxKeys:    aws.Int32(1),
		FetchOwner: aws.Bool(true),
	})
	if err != nil {
		return nil, convertError(err)
	}

	if len(result.Contents) == 0 || aws.ToString(result.Contents[0].Key) != key {
		return nil, data.ErrNotExist
	}

	return convertObject(result.Contents[0]), nil
}

func (ac *AWSClient) List(ctx context.Context, prefix string, pageSize int, token string) (*objectstore.ListPage, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	input := &s3.ListObjectsV2Input{
		Bucket:     aws.String(ac.bucket),
		Prefix:     aws.String(prefix),
		MaxKeys:    aws.Int32(int32(pageSize)),
		FetchOwner: aws.Bool(true),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	result, err := ac.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, convertError(err)
	}

	page := &objectstore.ListPage{
		Objects: make([]*objectstore.ObjectInfo, 0, len(result.Contents)),
	}
	for _, object := range result.Contents {
		page.Objects = append(page.Objects, convertObject(object))
	}
	if aws.ToBool(result.IsTruncated) {
		page.NextToken = aws.ToString(result.NextContinuationToken)
	}

	return page, nil
}

// ObjectURL returns the unsigned URL of key.
func (ac *AWSClient) ObjectURL(key string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}

	if ac.config.Endpoint != "" {
		host := ac.config.Endpoint
		if u, err := url.Parse(ac.config.Endpoint); err == nil && u.Host != "" {
			host = u.Host
		}
		return fmt.Sprintf("%s://%s/%s/%s", scheme, host, ac.bucket, escapeKey(key))
	}

	return fmt.Sprintf("%s://%s.s3.%s.amazonaws.com/%s", scheme, ac.bucket, ac.config.Region, escapeKey(key))
}

// PresignGet returns a signed GET URL for key.
func (ac *AWSClient) PresignGet(ctx context.Context, key string, expiry time.Duration, params url.Values) (string, error) {
	if expiry > objectstore.MaxPresignExpiry {
		expiry = objectstore.MaxPresignExpiry
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(ac.bucket),
		Key:    aws.String(key),
	}
	if v := params.Get("response-content-disposition"); v != "" {
		input.ResponseContentDisposition = aws.String(v)
	}
	if v := params.Get("response-content-type"); v != "" {
		input.ResponseContentType = aws.String(v)
	}
	if v := params.Get("response-cache-control"); v != "" {
		input.ResponseCacheControl = aws.String(v)
	}
	if v := params.Get("response-content-language"); v != "" {
		input.ResponseContentLanguage = aws.String(v)
	}
	if v := params.Get("response-content-encoding"); v != "" {
		input.ResponseContentEncoding = aws.String(v)
	}

	req, err := ac.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", convertError(err)
	}

	return req.URL, nil
}

func convertObject(object types.Object) *objectstore.ObjectInfo {
	info := &objectstore.ObjectInfo{
		Key:          aws.ToString(object.Key),
		Size:         aws.ToInt64(object.Size),
		LastModified: aws.ToTime(object.LastModified),
		ETag:         aws.ToString(object.ETag),
	}
	if object.Owner != nil {
		info.Owner = aws.ToString(object.Owner.ID)
	}
	info.IsPrefixMarker = strings.HasSuffix(info.Key, "/")

	return info
}

// convertError maps SDK errors onto the package sentinels.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return data.ErrNotExist
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return data.ErrNotExist
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", data.ErrPermission, err)
		}
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
