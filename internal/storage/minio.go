// Package storage holds the attachment blob store. Attachments are
// write-once: messages are immutable, so a stored blob never changes and
// clients may cache it forever.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Blobs are served straight from the bucket by URL, so the bucket allows
// anonymous reads. Keys are unguessable (they embed a snowflake), which is
// the same posture the rest of the platform takes for media.
const anonymousReadPolicy = `{
	"Version": "2012-10-17",
	"Statement": [{
		"Effect": "Allow",
		"Principal": {"AWS": ["*"]},
		"Action": ["s3:GetObject"],
		"Resource": ["arn:aws:s3:::%s/*"]
	}]
}`

// MinIOClient stores attachment blobs in a single bucket.
type MinIOClient struct {
	client *minio.Client
	bucket string
	// baseURL is the public prefix attachments are served from,
	// scheme included.
	baseURL string
}

// NewMinIOClient connects to MinIO and bootstraps the attachment bucket:
// created if missing, with anonymous read access so attachment URLs resolve
// without signing. The endpoint may carry an http:// or https:// scheme;
// plain host:port means http, for local development.
func NewMinIOClient(endpoint, accessKey, secretKey, bucket string) (*MinIOClient, error) {
	host, secure := splitEndpoint(endpoint)

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		policy := fmt.Sprintf(anonymousReadPolicy, bucket)
		if err := client.SetBucketPolicy(ctx, bucket, policy); err != nil {
			return nil, fmt.Errorf("minio bucket policy: %w", err)
		}
	}

	scheme := "http"
	if secure {
		scheme = "https"
	}
	return &MinIOClient{
		client:  client,
		bucket:  bucket,
		baseURL: fmt.Sprintf("%s://%s/%s", scheme, host, bucket),
	}, nil
}

func splitEndpoint(endpoint string) (host string, secure bool) {
	if h, ok := strings.CutPrefix(endpoint, "https://"); ok {
		return h, true
	}
	if h, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return h, false
	}
	return endpoint, false
}

// Upload stores a blob under key. Blobs are immutable, so the object is
// tagged cacheable-forever.
func (m *MinIOClient) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// GetURL returns the public URL a stored blob is served from.
func (m *MinIOClient) GetURL(key string) string {
	return m.baseURL + "/" + key
}

// Delete removes a blob. Nothing calls this on the request path; it exists
// for operational cleanup of orphaned uploads.
func (m *MinIOClient) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
