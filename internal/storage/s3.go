package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads objects to an S3 compatible bucket.
type S3Store struct {
	client     s3PutAPI
	bucket     string
	publicBase string
	logger     logging.Logger
}

func NewS3Store(ctx context.Context, opts Options, logger logging.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := opts.PublicURLBase
	if publicBase == "" {
		switch {
		case opts.Endpoint != "":
			publicBase = publicURL(opts.Endpoint, opts.Bucket)
		default:
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, cfg.Region)
		}
	}
	return newS3Store(client, opts.Bucket, publicBase, logger), nil
}

func newS3Store(client s3PutAPI, bucket string, publicBase string, logger logging.Logger) *S3Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &S3Store{client: client, bucket: bucket, publicBase: publicBase, logger: logger}
}

func (s *S3Store) Store(ctx context.Context, data []byte, opts ports.StoreOptions) (string, error) {
	key, err := objectKey(opts)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debugf("stored s3 object bucket=%s key=%s bytes=%d", s.bucket, key, len(data))
	return publicURL(s.publicBase, key), nil
}
