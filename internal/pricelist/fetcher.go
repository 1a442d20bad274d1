package pricelist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"procurement/internal/domain"

	"github.com/go-resty/resty/v2"
)

var ErrFetch = errors.New("price list download failed")

// Fetcher downloads price lists published by partners
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", "procurement-sync/1.0").
		SetHeader("Accept", "application/yaml, text/yaml, text/plain, */*")
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads and parses the document at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.PriceList, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) address", domain.ErrValidation)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode())
	}

	body := resp.Body()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: price list exceeds %d bytes", domain.ErrValidation, f.maxBytes)
	}
	return ParseBytes(body)
}
