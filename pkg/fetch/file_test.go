package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

func TestFileFetcherGet(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "data.bin")
	content := []byte("abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, os.WriteFile(name, content, 0644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	f := NewFileFetcher()
	ctx := context.Background()

	testCases := []struct {
		name   string
		source string
		start  int64
		length int64
		want   string
		err    error
	}{
		{"whole", name, 0, ToEnd, string(content), nil},
		{"range", name, 3, 4, "defg", nil},
		{"tail", name, 20, ToEnd, "uvwxyz", nil},
		{"file url", "file://" + name, 0, 1, "a", nil},
		{"empty file", empty, 0, ToEnd, "", nil},
		{"missing", filepath.Join(dir, "nope"), 0, ToEnd, "", internal.ErrNotFound},
		{"past end", name, 20, 7, "", internal.ErrInvalidRange},
		{"start at size", name, 26, ToEnd, "", internal.ErrInvalidRange},
		{"zero length", name, 0, 0, "", internal.ErrInvalidRange},
		{"directory", dir, 0, ToEnd, "", internal.ErrInvalidRange},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Get(ctx, tc.source, tc.start, tc.length)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestFileFetcherList(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.fidx", "a.fidx", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	f := NewFileFetcher()
	names, err := f.List(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden", "a.fidx", "b.fidx"}, names)

	_, err = f.List(context.Background(), filepath.Join(dir, "a.fidx"))
	assert.ErrorIs(t, err, ErrNotDir)

	_, err = f.List(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, internal.ErrNotFound)
}
