package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vaibhav2408/config-manager/internal/detector"
)

// s3API is the subset of S3 operations needed by the exporter.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter writes the current config snapshot of a changed service to an
// S3 bucket.
//
// Bucket layout:
//
//	<prefix><service_id>/configs.json
type S3Exporter struct {
	client s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// S3ExporterConfig holds options for creating an S3Exporter.
type S3ExporterConfig struct {
	Bucket string
	// Prefix is an optional key prefix (e.g. "exports/"). Include trailing slash.
	Prefix string
	// Region is the AWS region. If empty, it's resolved from the environment.
	Region string
	// EndpointURL overrides the S3 endpoint (useful for LocalStack/MinIO testing).
	EndpointURL string
}

// NewS3Exporter creates an S3Exporter. AWS credentials are resolved from the
// standard chain.
func NewS3Exporter(ctx context.Context, cfg S3ExporterConfig, logger *slog.Logger) (*S3Exporter, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	}

	return newS3ExporterWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3ExporterWithAPI(api s3API, bucket, prefix string, logger *slog.Logger) *S3Exporter {
	return &S3Exporter{client: api, bucket: bucket, prefix: prefix, logger: logger}
}

func (e *S3Exporter) Notify(ctx context.Context, ch detector.Change) error {
	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling change of %s: %w", ch.ServiceID, err)
	}

	key := e.objectKey(ch.ServiceID)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("writing s3://%s/%s: %w", e.bucket, key, err)
	}

	e.logger.Info("exported config snapshot", "bucket", e.bucket, "key", key, "configs", len(ch.Configs))
	return nil
}

func (e *S3Exporter) objectKey(serviceID string) string {
	return e.prefix + serviceID + "/configs.json"
}
