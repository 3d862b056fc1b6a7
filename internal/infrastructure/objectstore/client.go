package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nerrad567/couch-control/internal/infrastructure/config"
	"github.com/nerrad567/couch-control/internal/selection"
)

// codeNoSuchKey is the S3 error code for a missing object.
const codeNoSuchKey = "NoSuchKey"

// objectSuffix is appended to every key.
const objectSuffix = ".json"

// Client is a bucket-scoped record store.
type Client struct {
	client *minio.Client
	bucket string
	prefix string
}

// Connect creates a client and makes sure the bucket exists.
//
// Parameters:
//   - ctx: Context bounding the bucket check
//   - cfg: storage.minio configuration
//
// Returns:
//   - *Client: ready for Read/Write/Remove
//   - error: ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c := &Client{client: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: checking bucket %s: %v", ErrConnectionFailed, cfg.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("%w: creating bucket %s: %v", ErrConnectionFailed, cfg.Bucket, err)
		}
	}
	return c, nil
}

// Read returns the object for key, or selection.ErrNotFound.
func (c *Client) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, c.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

// Write stores data under key.
func (c *Client) Write(ctx context.Context, key string, data []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, c.objectName(key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. S3 treats a missing object as already removed.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, c.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (c *Client) objectName(key string) string {
	return objectName(c.prefix, key)
}

// objectName joins prefix and key. The prefix is used verbatim, so
// "storage/" yields "storage/couch_control.abc.json".
func objectName(prefix, key string) string {
	return prefix + strings.TrimPrefix(key, "/") + objectSuffix
}

// mapError converts a missing-object response into selection.ErrNotFound.
func mapError(err error) error {
	if isNotFound(err) {
		return selection.ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == codeNoSuchKey
	}
	return minio.ToErrorResponse(err).Code == codeNoSuchKey
}
