// Package blob reads and writes objects addressed by URI. Object stores are
// addressed as s3://bucket/key, local files as file:///path or plain paths.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

var ErrNotFound = errors.New("object not found")

// Store is implemented by every backend.
type Store interface {
	// List returns the URIs of all objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
	Put(ctx context.Context, uri string, data []byte) error
}

// Location is a parsed object URI.
type Location struct {
	Scheme string
	Bucket string // empty for file locations
	Key    string
}

func (l Location) String() string {
	switch l.Scheme {
	case SchemeS3:
		return "s3://" + l.Bucket + "/" + l.Key
	default:
		return "file://" + l.Key
	}
}

// Join appends a name to a prefix location.
func (l Location) Join(name string) Location {
	key := l.Key
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	l.Key = key + strings.TrimPrefix(name, "/")
	return l
}

// Parse splits a URI into its location parts.
func Parse(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty object uri")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("invalid object uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("invalid object uri %q: missing bucket", uri)
		}
		return Location{Scheme: SchemeS3, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: u.Path}, nil
	default:
		return Location{}, fmt.Errorf("unsupported object uri scheme %q", u.Scheme)
	}
}
