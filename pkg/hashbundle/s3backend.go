package hashbundle

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Backend persists exported bundles to S3, keyed by the timeline's
// content hash so re-exporting an unchanged timeline is a no-op write.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3BackendConfig configures an S3Backend. Endpoint lets a LocalStack or
// MinIO instance stand in for AWS during development.
type S3BackendConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Backend builds an S3Backend from cfg, resolving AWS credentials
// through the default SDK chain (environment, shared config, instance
// role).
func NewS3Backend(ctx context.Context, cfg S3BackendConfig) (*S3Backend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("hashbundle: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put uploads bundle's three files under a shared key prefix derived from
// its timeline hash, e.g. "<prefix><hash>.ndjson", "<prefix><hash>.meta.json",
// "<prefix><hash>.sig". It is idempotent: existing objects are left
// untouched, since the key is a pure function of the bundle's content.
func (b *S3Backend) Put(ctx context.Context, bundle Bundle) error {
	base := b.prefix + bundle.Meta.TimelineHash
	for suffix, data := range bundle.Files(bundle.Meta.ExportFormat) {
		key := base + suffix
		exists, err := b.objectExists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/octet-stream"),
		}); err != nil {
			return fmt.Errorf("hashbundle: put %s: %w", key, err)
		}
	}
	return nil
}

// Get downloads all three files of the bundle keyed by timelineHash.
func (b *S3Backend) Get(ctx context.Context, timelineHash string, format ExportFormat) (timeline, metaJSON, sig []byte, err error) {
	base := b.prefix + timelineHash
	timeline, err = b.getObject(ctx, base+"."+string(format))
	if err != nil {
		return nil, nil, nil, err
	}
	metaJSON, err = b.getObject(ctx, base+".meta.json")
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err = b.getObject(ctx, base+".sig")
	if err != nil {
		return nil, nil, nil, err
	}
	return timeline, metaJSON, sig, nil
}

func (b *S3Backend) getObject(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("hashbundle: get %s: %w", key, err)
	}
	defer func() { _ = result.Body.Close() }()
	return io.ReadAll(result.Body)
}

func (b *S3Backend) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}
