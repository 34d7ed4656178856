package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// FileFetcher serves bare paths and file:// URLs.
type FileFetcher struct{}

func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

func localPath(location string) string {
	if scheme(location) == "file" {
		return strings.TrimPrefix(location[len("file://"):], "localhost")
	}
	return location
}

func (f *FileFetcher) Get(ctx context.Context, source string, start, length int64) ([]byte, error) {
	if err := checkArgs(start, length); err != nil {
		return nil, err
	}
	name := localPath(source)
	fd, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", internal.ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: %v", internal.ErrTransport, err)
	}
	defer fd.Close()

	st, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrTransport, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", internal.ErrInvalidRange, name)
	}
	n, err := checkRange(start, length, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	buf := make([]byte, n)
	got, err := io.ReadFull(io.NewSectionReader(fd, start, n), buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %s: %v", internal.ErrTransport, name, err)
	}
	if err := checkLength(name, got, n); err != nil {
		return nil, err
	}
	logger.Tracef("file get %s [%d, +%d)", name, start, n)
	return buf, nil
}

// List returns the names of the regular files in a directory, sorted.
func (f *FileFetcher) List(ctx context.Context, location string) ([]string, error) {
	name := localPath(location)
	st, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", internal.ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: %v", internal.ErrTransport, err)
	}
	if !st.IsDir() {
		return nil, ErrNotDir
	}
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrTransport, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
