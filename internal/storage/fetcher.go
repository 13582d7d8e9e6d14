package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const defaultFetchCacheSize = 32

// Fetcher downloads stored answers over HTTP and keeps recent payloads in an
// LRU cache. data: URLs are decoded in place; memory:// URLs go to Local.
type Fetcher struct {
	client *resty.Client
	cache  *lru.Cache[string, []byte]
	local  ports.Fetcher
	logger logging.Logger
}

type FetcherOptions struct {
	CacheSize int
	Timeout   time.Duration
	Local     ports.Fetcher
}

func NewFetcher(opts FetcherOptions, logger logging.Logger) (*Fetcher, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultFetchCacheSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return &Fetcher{client: client, cache: cache, local: opts.Local, logger: logger}, nil
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return nil, errors.New("empty url")
	case strings.HasPrefix(url, "data:"):
		return decodeDataURL(url)
	case strings.HasPrefix(url, memoryScheme):
		if f.local == nil {
			return nil, fmt.Errorf("no local store for %q", url)
		}
		return f.local.Fetch(ctx, url)
	}

	if cached, ok := f.cache.Get(url); ok {
		return cached, nil
	}

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("get %s: empty body", url)
	}
	f.cache.Add(url, body)
	f.logger.Debugf("fetched remote audio url=%s bytes=%d", url, len(body))
	return body, nil
}

func decodeDataURL(url string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return data, nil
}
