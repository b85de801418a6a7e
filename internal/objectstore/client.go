// Package objectstore implements ObjectStoreDetector (C2): high-frequency
// existence polling of public NOAA-style buckets, smart range download
// driven by the .idx sidecar, and full-file fallback.
//
// The S3 client construction (anonymous credentials, bounded keep-alive
// pool, path-style/region overrides) is grounded on
// alanyoungcy-polymarketbot's internal/blob/s3/{client,reader}.go; the
// pooled http.Transport sizing is grounded on
// pkg/polymarket/clob/client.go and pkg/polymarket/gamma/client.go.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by Exists-family calls when the object does not
// exist: NoSuchKey, NotFound, or an HTTP 403/404 from the store.
var ErrNotFound = errors.New("objectstore: not found")

// Client is the read-only interface ObjectStoreDetector polls. A single
// Client is shared across all active detections so the underlying HTTP
// connection pool is shared per spec §5.
type Client interface {
	// Head checks existence and, when present, returns the object's
	// size in bytes.
	Head(ctx context.Context, bucket, key string) (exists bool, size int64, err error)
	// Get fetches the full object.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// GetRange fetches bytes [start, end] inclusive.
	GetRange(ctx context.Context, bucket, key string, start, end int64) ([]byte, error)
}

// ClientConfig configures the S3-backed Client.
type ClientConfig struct {
	Region    string
	Anonymous bool
	// MaxIdleConnsPerHost bounds the keep-alive pool; spec §4.2
	// recommends approximately 25 sockets.
	MaxIdleConnsPerHost int
}

// s3Client is the aws-sdk-go-v2-backed implementation of Client.
type s3Client struct {
	s3 *s3.Client
}

// NewClient builds a Client against public, unauthenticated buckets.
// Anonymous access uses aws.AnonymousCredentials, matching how
// alanyoungcy-polymarketbot's blob client supports credential-less
// S3-compatible endpoints.
func NewClient(ctx context.Context, cfg ClientConfig) (Client, error) {
	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 25
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdle,
			MaxIdleConnsPerHost: maxIdle,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.Anonymous {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = false
	})

	return &s3Client{s3: client}, nil
}

func (c *s3Client) Head(ctx context.Context, bucket, key string) (bool, int64, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("objectstore: head %s/%s: %w", bucket, key, err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return true, size, nil
}

func (c *s3Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (c *s3Client) GetRange(ctx context.Context, bucket, key string, start, end int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, end)
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: range get %s/%s %s: %w", bucket, key, rangeHeader, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// WarmUp issues a throwaway HEAD to eliminate cold-start TLS/connection
// latency before the detector's first real poll, per spec §4.2.
func (c *s3Client) WarmUp(ctx context.Context, bucket, key string) {
	_, _, _ = c.Head(ctx, bucket, key)
}

// isNotFound reports whether err indicates the requested object does not
// exist: a typed NoSuchKey/NotFound from GetObject/HeadObject, or a
// generic HTTP 403/404 from an S3-compatible provider (spec §6).
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		return code == 403 || code == 404
	}
	return false
}
