package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/imroc/req/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

func testClient() *req.Client {
	return HTTPClient.Clone().SetCommonRetryCount(0)
}

func TestHTTPFetcherRanges(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 1000)
	var mu sync.Mutex
	var lastRange string
	seenRange := func() string {
		mu.Lock()
		defer mu.Unlock()
		return lastRange
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastRange = r.Header.Get("Range")
		mu.Unlock()
		switch r.URL.Path {
		case "/data.bin":
			http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(content))
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testClient())
	ctx := context.Background()

	got, err := f.Get(ctx, srv.URL+"/data.bin", 0, ToEnd)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "", seenRange())

	got, err = f.Get(ctx, srv.URL+"/data.bin", 100, 50)
	require.NoError(t, err)
	assert.Equal(t, content[100:150], got)
	assert.Equal(t, "bytes=100-149", seenRange())

	got, err = f.Get(ctx, srv.URL+"/data.bin", 9990, ToEnd)
	require.NoError(t, err)
	assert.Equal(t, content[9990:], got)

	_, err = f.Get(ctx, srv.URL+"/data.bin", 20000, 10)
	assert.ErrorIs(t, err, internal.ErrInvalidRange)

	// ServeContent clamps a range running past the end
	_, err = f.Get(ctx, srv.URL+"/data.bin", 9990, 20)
	assert.ErrorIs(t, err, internal.ErrShortRead)

	_, err = f.Get(ctx, srv.URL+"/missing", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, err = f.Get(ctx, srv.URL+"/gone", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, err = f.Get(ctx, srv.URL+"/broken", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrTransport)

	_, err = f.Get(ctx, srv.URL+"/data.bin", -5, 10)
	assert.ErrorIs(t, err, internal.ErrInvalidRange)
}

func TestHTTPFetcherRejectsIgnoredRange(t *testing.T) {
	client := testClient()
	client.Transport.WrapRoundTripFunc(func(_ http.RoundTripper) req.HttpRoundTripFunc {
		return func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Status:     "200 OK",
				Body:       io.NopCloser(bytes.NewReader([]byte("full body"))),
				Header:     make(http.Header),
				Request:    r,
			}, nil
		}
	})

	f := NewHTTPFetcher(client)
	_, err := f.Get(context.Background(), "http://mirror.example/data.bin", 2, 3)
	assert.ErrorIs(t, err, internal.ErrTransport)

	got, err := f.Get(context.Background(), "http://mirror.example/data.bin", 0, ToEnd)
	require.NoError(t, err)
	assert.Equal(t, "full body", string(got))
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewHTTPFetcher(testClient())
	_, err := f.Get(context.Background(), url+"/x", 0, ToEnd)
	assert.ErrorIs(t, err, internal.ErrTransport)
}
