package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const defaultMaxLogoBytes = 2 << 20

var (
	ErrUnsupportedImage = errors.New("media: unsupported image type")
	ErrTooLarge         = errors.New("media: image too large")
)

var logoExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// S3Config addresses a bucket. Endpoint is set for MinIO and other
// S3-compatible services.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	MaxLogoBytes    int64
}

// ObjectClient is the subset of *s3.Client used here.
type ObjectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3LogoStore uploads logos to one bucket.
type S3LogoStore struct {
	client   ObjectClient
	bucket   string
	maxBytes int64
	now      func() time.Time
}

// NewS3Client builds an S3 client from static credentials.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3LogoStore returns a store writing to cfg.Bucket through client.
func NewS3LogoStore(client ObjectClient, cfg S3Config) (*S3LogoStore, error) {
	if client == nil {
		return nil, errors.New("media: nil s3 client")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("media: bucket required")
	}
	maxBytes := cfg.MaxLogoBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxLogoBytes
	}
	return &S3LogoStore{client: client, bucket: cfg.Bucket, maxBytes: maxBytes, now: time.Now}, nil
}

// PutLogo stores the image read from r and returns its object key. owner is
// recorded as object metadata.
func (s *S3LogoStore) PutLogo(ctx context.Context, owner string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("media: read: %w", err)
	}
	contentType := http.DetectContentType(head)
	ext, ok := logoExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedImage
	}

	body, err := io.ReadAll(io.LimitReader(br, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("media: read: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return "", ErrTooLarge
	}

	now := s.now().UTC()
	key := fmt.Sprintf("logos/%d/%02d/%s%s", now.Year(), now.Month(), uuid.NewString(), ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"owner": owner},
	})
	if err != nil {
		return "", fmt.Errorf("media: put object: %w", err)
	}
	return key, nil
}

// DeleteLogo removes the object stored under key.
func (s *S3LogoStore) DeleteLogo(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("media: delete object: %w", err)
	}
	return nil
}
