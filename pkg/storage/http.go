package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStorage downloads media from http:// and https:// origins. It cannot
// store objects.
type HTTPStorage struct {
	client   *http.Client
	maxBytes int64
}

// HTTPOption configures an HTTPStorage
type HTTPOption func(*HTTPStorage)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(hs *HTTPStorage) { hs.client = c }
}

// WithMaxBytes caps the size of a single download; zero means unlimited
func WithMaxBytes(n int64) HTTPOption {
	return func(hs *HTTPStorage) { hs.maxBytes = n }
}

// NewHTTPStorage creates an HTTP backend
func NewHTTPStorage(opts ...HTTPOption) *HTTPStorage {
	hs := &HTTPStorage{
		client: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(hs)
	}
	return hs
}

// Open starts a download. Reading past the size cap fails.
func (hs *HTTPStorage) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if _, err := requireScheme(uri, "http", "https"); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("download of %s failed with status %d", uri, resp.StatusCode)
	}

	if hs.maxBytes > 0 {
		if resp.ContentLength > hs.maxBytes {
			resp.Body.Close()
			return nil, fmt.Errorf("%s is %d bytes, limit is %d", uri, resp.ContentLength, hs.maxBytes)
		}
		return &cappedBody{ReadCloser: resp.Body, remaining: hs.maxBytes}, nil
	}
	return resp.Body, nil
}

// Save is not supported
func (hs *HTTPStorage) Save(ctx context.Context, uri string, data io.Reader, contentType string) error {
	return fmt.Errorf("save to %s: %w", uri, ErrReadOnly)
}

// Remove is not supported
func (hs *HTTPStorage) Remove(ctx context.Context, uri string) error {
	return fmt.Errorf("remove %s: %w", uri, ErrReadOnly)
}

// Exists sends a HEAD request
func (hs *HTTPStorage) Exists(ctx context.Context, uri string) (bool, error) {
	if _, err := requireScheme(uri, "http", "https"); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// cappedBody fails once more than remaining bytes have been read
type cappedBody struct {
	io.ReadCloser
	remaining int64
}

func (c *cappedBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, fmt.Errorf("download exceeds size limit")
	}
	return n, err
}
