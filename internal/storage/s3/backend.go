// Package s3 implements storage.Backend on S3-compatible object stores
// (AWS S3, MinIO, GCS interoperability endpoints).
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/sdisaacson/desktop/internal/logging"
	"github.com/sdisaacson/desktop/internal/metrics"
	"github.com/sdisaacson/desktop/internal/storage"
)

// BackendConfig is a JSON-serializable config for S3 backends.
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// Backend implements storage.Backend using S3/MinIO.
type Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewBackend creates a new S3 backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// NewBackendFromJSON creates a Backend from raw JSON config.
func NewBackendFromJSON(ctx context.Context, raw json.RawMessage) (*Backend, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewBackend(ctx, cfg)
}

// endpointURL adds a scheme to bare host:port endpoints.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// EnsureBucket verifies the bucket exists and creates it when missing.
func (b *Backend) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		metrics.RecordStorageOperation("s3", "head_bucket", time.Since(start), true)
		return nil
	}

	_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if createErr != nil {
		metrics.RecordStorageOperation("s3", "create_bucket", time.Since(start), false)
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, createErr)
	}
	metrics.RecordStorageOperation("s3", "create_bucket", time.Since(start), true)
	logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// WriteObject uploads data with a sniffed content type.
func (b *Backend) WriteObject(ctx context.Context, key string, data []byte) error {
	start := time.Now()

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "put_object", time.Since(start), false)
		return fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("s3", "put_object", time.Since(start), true)
	metrics.RecordStorageBytes("s3", "write", len(data))
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

func (b *Backend) ReadObject(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "get_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		metrics.RecordStorageOperation("s3", "get_object", time.Since(start), false)
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("s3", "get_object", time.Since(start), true)
	metrics.RecordStorageBytes("s3", "read", len(data))
	return data, nil
}

// DeleteObject removes an object. S3 reports success for missing keys.
func (b *Backend) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "delete_object", time.Since(start), false)
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("s3", "delete_object", time.Since(start), true)
	logging.Debug("S3 delete object", zap.String("key", key))
	return nil
}

// ListOneLevel pages through ListObjectsV2 with a "/" delimiter.
func (b *Backend) ListOneLevel(ctx context.Context, prefix string) (*storage.Listing, error) {
	start := time.Now()
	listing := &storage.Listing{}

	pager := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(storage.Delimiter),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			metrics.RecordStorageOperation("s3", "list_objects", time.Since(start), false)
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			listing.Prefixes = append(listing.Prefixes, aws.ToString(cp.Prefix))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Some tools write zero-byte "directory" objects named after the prefix.
			if key == prefix {
				continue
			}
			listing.Keys = append(listing.Keys, key)
		}
	}

	metrics.RecordStorageOperation("s3", "list_objects", time.Since(start), true)
	return listing, nil
}

func (b *Backend) ObjectMetadata(ctx context.Context, key string) (*storage.ObjectMeta, error) {
	start := time.Now()

	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "head_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, fmt.Errorf("head object %s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("s3", "head_object", time.Since(start), true)
	return &storage.ObjectMeta{
		Key:         key,
		Size:        aws.ToInt64(head.ContentLength),
		Updated:     aws.ToTime(head.LastModified),
		ContentType: aws.ToString(head.ContentType),
	}, nil
}

// SignedURL presigns a GET request for key.
func (b *Backend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		metrics.RecordStorageOperation("s3", "presign_get", time.Since(start), false)
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	metrics.RecordStorageOperation("s3", "presign_get", time.Since(start), true)
	return req.URL, nil
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }
