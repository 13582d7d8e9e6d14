package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const gcsPublicBase = "https://storage.googleapis.com"

type writerFactory func(ctx context.Context, key string, opts ports.StoreOptions) io.WriteCloser

// GCSStore uploads objects to a Google Cloud Storage bucket.
type GCSStore struct {
	newWriter  writerFactory
	bucket     string
	publicBase string
	logger     logging.Logger
}

func NewGCSStore(ctx context.Context, opts Options, logger logging.Logger) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	bucket := client.Bucket(opts.Bucket)
	factory := func(ctx context.Context, key string, so ports.StoreOptions) io.WriteCloser {
		w := bucket.Object(key).NewWriter(ctx)
		w.ContentType = so.ContentType
		w.CacheControl = so.CacheControl
		w.Metadata = so.Metadata
		return w
	}

	publicBase := opts.PublicURLBase
	if publicBase == "" {
		publicBase = publicURL(gcsPublicBase, opts.Bucket)
	}
	return newGCSStore(factory, opts.Bucket, publicBase, logger), nil
}

func newGCSStore(factory writerFactory, bucket string, publicBase string, logger logging.Logger) *GCSStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GCSStore{newWriter: factory, bucket: bucket, publicBase: publicBase, logger: logger}
}

func (s *GCSStore) Store(ctx context.Context, data []byte, opts ports.StoreOptions) (string, error) {
	key, err := objectKey(opts)
	if err != nil {
		return "", err
	}

	w := s.newWriter(ctx, key, opts)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err)
	}
	// The object only exists once Close succeeds.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debugf("stored gcs object bucket=%s key=%s bytes=%d", s.bucket, key, len(data))
	return publicURL(s.publicBase, key), nil
}
