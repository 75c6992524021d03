package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used here, so tests can supply a fake.
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 deletes objects from a single bucket.
type S3 struct {
	Client S3API
	Bucket string
}

// LoadAWSConfig loads the default credential chain for region, falling back to
// us-east-1 when region is empty.
func LoadAWSConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewS3 builds an S3 deleter from the default AWS configuration.
func NewS3(ctx context.Context, bucket, region string) (*S3, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket}, nil
}

func (d *S3) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	_, err := d.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: sdkaws.String(d.Bucket),
		Key:    sdkaws.String(key),
	})
	if err == nil || isMissing(err) {
		return nil
	}
	return fmt.Errorf("s3 delete %s/%s: %w", d.Bucket, key, err)
}

// isMissing reports S3 "no such key" responses. DeleteObject is normally
// silent for missing keys, but some S3-compatible stores return an error.
func isMissing(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
