// Package objectstore uploads winner creatives to S3 and hands back the
// public URLs the ad platform pulls media from.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the subset of the creative pipeline's storage needs; the
// S3 store and test fakes implement it.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Store uploads creatives to a public-readable bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	region    string
	publicURL string // optional CDN/base-URL override
}

// S3Config contains configuration for the creative bucket.
type S3Config struct {
	Bucket    string
	Prefix    string // e.g. "creatives/"
	Region    string
	PublicURL string // base URL serving the bucket; defaults to the S3 endpoint
}

// NewS3Store creates an S3 store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := &S3Store{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		region:    region,
		publicURL: cfg.PublicURL,
	}

	// Verify bucket access up front so a misconfigured bucket fails the
	// run at startup, not mid-upload.
	_, err = store.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		log.Printf("[ObjectStore] Warning - bucket access check failed: %v", err)
	}

	log.Printf("[ObjectStore] Initialized with bucket=%s, prefix=%s, region=%s", cfg.Bucket, cfg.Prefix, region)
	return store, nil
}

// Upload stores the bytes under prefix+key and returns the stable public
// URL of the object.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := s.prefix + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := s.objectURL(fullKey)
	log.Printf("[ObjectStore] Uploaded s3://%s/%s (%d bytes)", s.bucket, fullKey, len(data))
	return url, nil
}

func (s *S3Store) objectURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s", s.publicURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
