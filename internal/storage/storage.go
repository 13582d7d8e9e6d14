// Package storage holds the object storage backends recordings are uploaded to
// and the fetcher used to play stored answers back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const (
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Options selects and configures one backend.
type Options struct {
	Backend         string
	Bucket          string
	Region          string
	Endpoint        string
	BaseURL         string
	PublicURLBase   string
	AccessKeyID     string
	SecretAccessKey string
	CredentialsFile string
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options, logger logging.Logger) (ports.ObjectStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendS3:
		return NewS3Store(ctx, opts, logger)
	case BackendGCS:
		return NewGCSStore(ctx, opts, logger)
	case BackendHTTP:
		return NewHTTPStore(opts.BaseURL, logger)
	case BackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// objectKey joins directory and filename into a slash separated key without a
// leading slash.
func objectKey(opts ports.StoreOptions) (string, error) {
	name := strings.TrimSpace(opts.Filename)
	if name == "" {
		return "", errors.New("object filename is required")
	}
	key := path.Join(strings.TrimSpace(opts.Directory), name)
	return strings.TrimLeft(key, "/"), nil
}

func publicURL(base string, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
