// Package s3 provides an S3 backup target.
package s3

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Target uploads snapshots to an S3 bucket via the multipart upload
// manager, which handles streams of unknown length.
type Target struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewTarget creates a target from an existing client.
// prefix is prepended to all keys (e.g. "backups/").
func NewTarget(client *s3.Client, bucket, prefix string) *Target {
	return &Target{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewTargetFromConfig creates a target using ambient AWS credentials.
func NewTargetFromConfig(ctx context.Context, bucket, prefix string) (*Target, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewTarget(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Store uploads the stream under prefix/name.
func (t *Target) Store(ctx context.Context, name string, r io.Reader) error {
	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(path.Join(t.prefix, name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", name, err)
	}
	return nil
}
