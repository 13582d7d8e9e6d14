package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const metadataHeaderPrefix = "X-Object-Meta-"

// HTTPStore PUTs objects to a plain HTTP endpoint such as a presigned bucket
// gateway or the answer service upload route.
type HTTPStore struct {
	client  *resty.Client
	baseURL string
	logger  logging.Logger
}

type putResponse struct {
	URL string `json:"url"`
}

func NewHTTPStore(baseURL string, logger logging.Logger) (*HTTPStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("http storage base url is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HTTPStore{client: resty.New(), baseURL: baseURL, logger: logger}, nil
}

func (s *HTTPStore) Store(ctx context.Context, data []byte, opts ports.StoreOptions) (string, error) {
	key, err := objectKey(opts)
	if err != nil {
		return "", err
	}
	target := publicURL(s.baseURL, key)

	req := s.client.R().
		SetContext(ctx).
		SetBody(data).
		SetResult(&putResponse{})
	if opts.ContentType != "" {
		req.SetHeader("Content-Type", opts.ContentType)
	}
	if opts.CacheControl != "" {
		req.SetHeader("Cache-Control", opts.CacheControl)
	}
	for name, value := range opts.Metadata {
		req.SetHeader(metadataHeaderPrefix+name, value)
	}
	if opts.Token != "" {
		req.SetAuthToken(opts.Token)
	}

	resp, err := req.Put(target)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", target, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("put %s: status %d: %s", target, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	s.logger.Debugf("stored http object url=%s bytes=%d", target, len(data))
	if out, ok := resp.Result().(*putResponse); ok && out.URL != "" {
		return out.URL, nil
	}
	return target, nil
}
