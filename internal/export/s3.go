package export

import (
	"bytes"
	"context"
	"fmt"
	"listing-tracker/internal/config"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads reports to an S3-compatible bucket (AWS S3 or MinIO)
type S3Exporter struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Exporter creates an exporter using the default AWS credentials chain
func NewS3Exporter(ctx context.Context, cfg config.S3Config) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Exporter{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (e *S3Exporter) key(name string) string {
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}

// Put uploads the report, replacing any previous version
func (e *S3Exporter) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := e.key(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := e.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return "s3://" + e.bucket + "/" + key, nil
}
