package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the options for the remote object-storage variant.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool
	PublicBaseURL   string        // Optional override for retrieval URLs
	PresignTTL      time.Duration // Validity of pre-authorized upload URLs
}

// S3 stores objects in an S3-compatible bucket. Keys mirror the local
// layout: {uploads,thumbnails}/<name>.
type S3 struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	uploader      *manager.Uploader
	bucket        string
	region        string
	endpoint      string
	usePathStyle  bool
	publicBaseURL string
	presignTTL    time.Duration
}

// NewS3 creates the remote storage variant.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = time.Hour
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		uploader:      manager.NewUploader(client),
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		usePathStyle:  cfg.UsePathStyle,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignTTL:    cfg.PresignTTL,
	}, nil
}

// Store uploads the payload under a fresh key and returns its retrieval URL.
func (b *S3) Store(ctx context.Context, class Class, suggestedName string, r io.Reader) (string, error) {
	key := path.Join(class.Dir(), UniqueName(suggestedName))

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	return b.publicURL(key), nil
}

// Delete removes the object a locator points at. S3 deletes are naturally
// idempotent: removing a missing key succeeds.
func (b *S3) Delete(ctx context.Context, locator string) error {
	key, err := b.keyFromLocator(locator)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// UploadURL issues a pre-authorized PUT target for a client-side upload,
// together with the URL the object will be readable at afterwards.
func (b *S3) UploadURL(ctx context.Context, filename, contentType string) (UploadTarget, error) {
	key := path.Join(ClassUpload.Dir(), UniqueName(filename))

	presigned, err := b.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return UploadTarget{}, fmt.Errorf("failed to presign upload: %w", err)
	}

	return UploadTarget{UploadURL: presigned.URL, PublicURL: b.publicURL(key)}, nil
}

func (b *S3) publicURL(key string) string {
	if b.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", b.publicBaseURL, key)
	}
	if b.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, key)
}

// keyFromLocator recovers the object key from any URL form publicURL emits.
func (b *S3) keyFromLocator(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	p := strings.TrimPrefix(u.Path, "/")
	p = strings.TrimPrefix(p, b.bucket+"/")
	if p == "" {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return p, nil
}
