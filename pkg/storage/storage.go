// Package storage fetches composition media from where it lives and delivers
// rendered files to their destination. Backends are selected by URI scheme.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
)

// AllowedSchemes lists the URI schemes a composition may reference
var AllowedSchemes = []string{"https", "http", "s3", "file"}

var (
	// ErrNotFound is returned when the object behind a URI does not exist
	ErrNotFound = errors.New("object not found")
	// ErrReadOnly is returned by backends that cannot store objects
	ErrReadOnly = errors.New("backend is read-only")
)

// Storage is implemented by every backend
type Storage interface {
	// Open returns a reader over the object at uri
	Open(ctx context.Context, uri string) (io.ReadCloser, error)

	// Save writes data to uri. contentType may be empty.
	Save(ctx context.Context, uri string, data io.Reader, contentType string) error

	// Remove deletes the object at uri; a missing object is not an error
	Remove(ctx context.Context, uri string) error

	// Exists reports whether an object exists at uri
	Exists(ctx context.Context, uri string) (bool, error)
}

// ParseURI splits uri into its scheme and a scheme-specific path. For file://
// the path is the filesystem path; for the others it is host + path.
func ParseURI(uri string) (scheme string, path string, err error) {
	if uri == "" {
		return "", "", fmt.Errorf("URI cannot be empty")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid URI: %w", err)
	}
	if u.Scheme == "" {
		return "", "", fmt.Errorf("URI %q has no scheme", uri)
	}

	if u.Scheme == "file" {
		return u.Scheme, u.Path, nil
	}
	return u.Scheme, u.Host + u.Path, nil
}

// IsAllowedScheme reports whether scheme is in AllowedSchemes
func IsAllowedScheme(scheme string) bool {
	return slices.Contains(AllowedSchemes, scheme)
}

func requireScheme(uri string, schemes ...string) (string, error) {
	scheme, path, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if !slices.Contains(schemes, scheme) {
		return "", fmt.Errorf("unsupported scheme %s:// for this backend", scheme)
	}
	return path, nil
}
