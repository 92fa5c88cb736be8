// Package blobsource supplies reference payload acquisition/consumption
// adapters: a sender's payload acquisition and a receiver's completed-blob
// consumption are both external to the protocol core, but a complete
// repository needs a concrete example of each.
package blobsource

import (
	"bytes"
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Source fetches a sender's payload from, and writes a receiver's
// completed blob to, objects in an S3 (or S3-compatible) bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// S3Config configures an S3Source.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible services (e.g. MinIO)
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Source builds an S3Source, selecting static credentials when both
// AccessKeyID and SecretAccessKey are set, falling back to the default AWS
// credential chain otherwise.
func NewS3Source(ctx context.Context, cfg S3Config, log *zap.Logger) (*S3Source, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobsource: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	})

	return &S3Source{client: client, bucket: cfg.Bucket, log: log}, nil
}

// FetchPayload downloads the full object at key into memory, for use as a
// Sender's payload. The entire object is buffered because the Sender holds
// a borrowed, contiguous []byte for the transfer's lifetime.
func (s *S3Source) FetchPayload(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("blobsource: get object %q: %w", key, err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobsource: read object %q: %w", key, err)
	}

	s.log.Debug("blobsource: fetched payload", zap.String("key", key), zap.Int("octetCount", len(payload)))
	return payload, nil
}

// StoreBlob uploads a receiver's completed buffer to key.
func (s *S3Source) StoreBlob(ctx context.Context, key string, blob []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("blobsource: put object %q: %w", key, err)
	}
	s.log.Debug("blobsource: stored blob", zap.String("key", key), zap.Int("octetCount", len(blob)))
	return nil
}
