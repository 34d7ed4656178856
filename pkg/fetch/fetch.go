// Package fetch reads byte ranges from local files, HTTP servers and S3
// compatible object stores.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/imroc/req/v3"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var logger = internal.GetLogger("fetch")

// ErrNotDir is returned by List when the location is a plain object.
var ErrNotDir = errors.New("not a directory")

// ToEnd as length reads from start to the end of the source.
const ToEnd = -1

// Fetcher reads length bytes of source starting at start. length is ToEnd
// or positive. Failures wrap one of internal.ErrInvalidRange,
// internal.ErrNotFound, internal.ErrShortRead or internal.ErrTransport.
type Fetcher interface {
	Get(ctx context.Context, source string, start, length int64) ([]byte, error)
}

// Lister is implemented by fetchers whose locations can be directories.
type Lister interface {
	List(ctx context.Context, location string) ([]string, error)
}

func checkArgs(start, length int64) error {
	if start < 0 {
		return fmt.Errorf("%w: negative start %d", internal.ErrInvalidRange, start)
	}
	if length != ToEnd && length <= 0 {
		return fmt.Errorf("%w: length %d", internal.ErrInvalidRange, length)
	}
	return nil
}

// checkRange validates a request against a source of known size and returns
// the number of bytes it covers.
func checkRange(start, length, size int64) (int64, error) {
	if err := checkArgs(start, length); err != nil {
		return 0, err
	}
	if start == 0 && length == ToEnd {
		return size, nil
	}
	if start >= size {
		return 0, fmt.Errorf("%w: start %d beyond size %d", internal.ErrInvalidRange, start, size)
	}
	if length == ToEnd {
		return size - start, nil
	}
	if start+length > size {
		return 0, fmt.Errorf("%w: [%d, %d) beyond size %d", internal.ErrInvalidRange, start, start+length, size)
	}
	return length, nil
}

// rangeHeader is the HTTP Range value for a request, empty for a full read.
func rangeHeader(start, length int64) string {
	switch {
	case start == 0 && length == ToEnd:
		return ""
	case length == ToEnd:
		return fmt.Sprintf("bytes=%d-", start)
	default:
		return fmt.Sprintf("bytes=%d-%d", start, start+length-1)
	}
}

func checkLength(source string, got int, length int64) error {
	if length != ToEnd && int64(got) != length {
		return fmt.Errorf("%w: %s: got %d of %d bytes", internal.ErrShortRead, source, got, length)
	}
	return nil
}

func scheme(location string) string {
	if i := strings.Index(location, "://"); i > 0 {
		return strings.ToLower(location[:i])
	}
	return ""
}

// Join appends name to a base location.
func Join(base, name string) string {
	switch scheme(base) {
	case "":
		return filepath.Join(base, name)
	case "file":
		return strings.TrimRight(base, "/") + "/" + name
	case "http", "https":
		return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
	default:
		return strings.TrimRight(base, "/") + "/" + name
	}
}

// Dir is the parent location of a file location.
func Dir(location string) string {
	s := scheme(location)
	if s == "" {
		return filepath.Dir(location)
	}
	prefix := s + "://"
	rest := location[len(prefix):]
	if s == "http" || s == "https" {
		if u, err := url.Parse(location); err == nil {
			u.RawQuery, u.Fragment = "", ""
			rest = u.Host + u.EscapedPath()
		}
	}
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		return location
	}
	return prefix + rest[:i]
}

// Base is the last element of a location, unescaped for URLs.
func Base(location string) string {
	switch scheme(location) {
	case "":
		return filepath.Base(location)
	case "http", "https":
		if u, err := url.Parse(location); err == nil {
			return path.Base(u.Path)
		}
	}
	return path.Base(location)
}

type Options struct {
	S3Endpoint  string
	S3Region    string
	S3PathStyle bool

	MinioEndpoint  string
	MinioSecure    bool
	MinioAccessKey string
	MinioSecretKey string

	// HTTPClient replaces the default retrying client.
	HTTPClient *req.Client
}

// Mux routes each location to the fetcher of its scheme. Object store
// clients are created on first use.
type Mux struct {
	opts Options
	file *FileFetcher
	http *HTTPFetcher

	mu    sync.Mutex
	s3    *S3Fetcher
	minio *MinioFetcher
}

func NewMux(opts Options) *Mux {
	return &Mux{
		opts: opts,
		file: NewFileFetcher(),
		http: NewHTTPFetcher(opts.HTTPClient),
	}
}

func (m *Mux) route(ctx context.Context, location string) (Fetcher, error) {
	switch s := scheme(location); s {
	case "", "file":
		return m.file, nil
	case "http", "https":
		return m.http, nil
	case "s3":
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.s3 == nil {
			f, err := NewS3Fetcher(ctx, m.opts.S3Endpoint, m.opts.S3Region, m.opts.S3PathStyle)
			if err != nil {
				return nil, err
			}
			m.s3 = f
		}
		return m.s3, nil
	case "minio":
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.minio == nil {
			f, err := NewMinioFetcher(m.opts.MinioEndpoint, m.opts.MinioAccessKey, m.opts.MinioSecretKey, m.opts.MinioSecure)
			if err != nil {
				return nil, err
			}
			m.minio = f
		}
		return m.minio, nil
	default:
		return nil, fmt.Errorf("unsupported location scheme %q in %s", s, location)
	}
}

func (m *Mux) Get(ctx context.Context, source string, start, length int64) ([]byte, error) {
	f, err := m.route(ctx, source)
	if err != nil {
		return nil, err
	}
	return f.Get(ctx, source, start, length)
}

// List delegates to the routed fetcher, ErrNotDir when it cannot list.
func (m *Mux) List(ctx context.Context, location string) ([]string, error) {
	f, err := m.route(ctx, location)
	if err != nil {
		return nil, err
	}
	l, ok := f.(Lister)
	if !ok {
		return nil, ErrNotDir
	}
	return l.List(ctx, location)
}
