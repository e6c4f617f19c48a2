// Package minio provides a backup target for MinIO and other S3-compatible
// object stores.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
)

// Target uploads snapshots to a MinIO bucket.
type Target struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewTarget creates a MinIO backup target.
// prefix is prepended to all keys (e.g. "backups/").
func NewTarget(client *minio.Client, bucket, prefix string) *Target {
	return &Target{client: client, bucket: bucket, prefix: prefix}
}

// Store uploads the stream under prefix/name. The size is unknown, so the
// client falls back to a multipart upload.
func (t *Target) Store(ctx context.Context, name string, r io.Reader) error {
	_, err := t.client.PutObject(ctx, t.bucket, path.Join(t.prefix, name), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("minio upload %s: %w", name, err)
	}
	return nil
}
