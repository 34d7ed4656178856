package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// objectStore is a path style S3 endpoint serving objects from memory.
type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte // bucket/key
	short   bool              // serve half of every ranged body
	ranges  []string
}

func newObjectStore(t *testing.T, objects map[string][]byte) (*objectStore, *httptest.Server) {
	t.Helper()
	s := &objectStore{objects: objects}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *objectStore) setShort(short bool) {
	s.mu.Lock()
	s.short = short
	s.mu.Unlock()
}

func (s *objectStore) lastRange() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ranges) == 0 {
		return ""
	}
	return s.ranges[len(s.ranges)-1]
}

func writeS3Error(w http.ResponseWriter, status int, code, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>1</RequestId></Error>`,
		code, code, resource)
}

func (s *objectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	if _, ok := q["location"]; ok {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
		return
	}
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if key == "" {
		s.list(w, bucket, q.Get("prefix"), q.Get("delimiter"))
		return
	}
	if key == "private" {
		writeS3Error(w, http.StatusForbidden, "AccessDenied", r.URL.Path)
		return
	}
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", r.URL.Path)
		return
	}

	h := w.Header()
	h.Set("Last-Modified", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC).Format(http.TimeFormat))
	h.Set("ETag", `"0123456789abcdef"`)
	h.Set("Content-Type", "application/octet-stream")
	rng := r.Header.Get("Range")
	s.ranges = append(s.ranges, rng)
	if rng == "" {
		h.Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	start, end := int64(0), int64(len(data)-1)
	if strings.HasSuffix(rng, "-") {
		_, err := fmt.Sscanf(rng, "bytes=%d-", &start)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "InvalidArgument", r.URL.Path)
			return
		}
	} else if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		writeS3Error(w, http.StatusBadRequest, "InvalidArgument", r.URL.Path)
		return
	}
	if start >= int64(len(data)) {
		writeS3Error(w, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", r.URL.Path)
		return
	}
	if end >= int64(len(data)) {
		end = int64(len(data)) - 1
	}
	body := data[start : end+1]
	if s.short {
		body = body[:len(body)/2]
	}
	h.Set("Content-Length", fmt.Sprint(len(body)))
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(body))-1, len(data)))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(body)
}

// list answers ListObjectsV2, which both the AWS SDK and minio-go use.
func (s *objectStore) list(w http.ResponseWriter, bucket, prefix, delimiter string) {
	var keys []string
	prefixes := internal.NewStringSet()
	for name := range s.objects {
		b, key, _ := strings.Cut(name, "/")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, delimiter); delimiter != "" && i >= 0 {
			prefixes.Add(prefix + rest[:i+1])
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&buf, "<Name>%s</Name><Prefix>%s</Prefix><Delimiter>%s</Delimiter><MaxKeys>1000</MaxKeys><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>",
		bucket, prefix, delimiter, len(keys))
	for _, key := range keys {
		fmt.Fprintf(&buf, `<Contents><Key>%s</Key><LastModified>2024-05-06T07:08:09.000Z</LastModified><ETag>"0123456789abcdef"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
			key, len(s.objects[bucket+"/"+key]))
	}
	for _, p := range prefixes.Elements() {
		fmt.Fprintf(&buf, "<CommonPrefixes><Prefix>%s</Prefix></CommonPrefixes>", p)
	}
	buf.WriteString("</ListBucketResult>")
	w.Header().Set("Content-Type", "application/xml")
	w.Write(buf.Bytes())
}

func testObjects() map[string][]byte {
	return map[string][]byte{
		"bkt/dir/a.img":        bytes.Repeat([]byte("0123456789"), 1000),
		"bkt/dir/a.img.fidx":   []byte("index"),
		"bkt/dir/sub/b.img":    []byte("nested"),
		"bkt/other/c.img.fidx": []byte("elsewhere"),
	}
}

func newTestS3Fetcher(t *testing.T, endpoint string) *S3Fetcher {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	f, err := NewS3Fetcher(context.Background(), endpoint, "us-east-1", true)
	require.NoError(t, err)
	return f
}

func TestS3FetcherGet(t *testing.T) {
	objects := testObjects()
	content := objects["bkt/dir/a.img"]
	store, srv := newObjectStore(t, objects)
	f := newTestS3Fetcher(t, srv.URL)
	ctx := context.Background()

	got, err := f.Get(ctx, "s3://bkt/dir/a.img", 0, ToEnd)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "", store.lastRange())

	got, err = f.Get(ctx, "s3://bkt/dir/a.img", 100, 50)
	require.NoError(t, err)
	assert.Equal(t, content[100:150], got)
	assert.Equal(t, "bytes=100-149", store.lastRange())

	got, err = f.Get(ctx, "s3://bkt/dir/a.img", 9990, ToEnd)
	require.NoError(t, err)
	assert.Equal(t, content[9990:], got)

	_, err = f.Get(ctx, "s3://bkt/dir/missing.img", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	_, err = f.Get(ctx, "s3://bkt/dir/a.img", 20000, 10)
	assert.ErrorIs(t, err, internal.ErrInvalidRange)

	_, err = f.Get(ctx, "s3://bkt/private", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrTransport)

	_, err = f.Get(ctx, "s3://bkt/dir/a.img", -1, 10)
	assert.ErrorIs(t, err, internal.ErrInvalidRange)

	store.setShort(true)
	_, err = f.Get(ctx, "s3://bkt/dir/a.img", 0, 4096)
	assert.ErrorIs(t, err, internal.ErrShortRead)
}

func TestS3FetcherList(t *testing.T) {
	_, srv := newObjectStore(t, testObjects())
	f := newTestS3Fetcher(t, srv.URL)
	ctx := context.Background()

	names, err := f.List(ctx, "s3://bkt/dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.img", "a.img.fidx"}, names)

	_, err = f.List(ctx, "s3://bkt/dir/a.img.fidx")
	assert.ErrorIs(t, err, ErrNotDir)

	names, err = f.List(ctx, "s3://bkt/empty/")
	require.NoError(t, err)
	assert.Empty(t, names)
}
