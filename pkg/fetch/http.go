package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// HTTPClient retries transport errors and 5xx answers.
var HTTPClient = req.C().
	SetCommonRetryCount(3).
	SetCommonRetryFixedInterval(1*time.Second).
	SetCommonRetryCondition(func(resp *req.Response, err error) bool {
		return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
	}).
	SetUserAgent(internal.UserAgent()).
	SetTimeout(10 * time.Minute)

// HTTPFetcher issues one GET with a Range header per request.
type HTTPFetcher struct {
	client *req.Client
}

// NewHTTPFetcher uses HTTPClient when client is nil.
func NewHTTPFetcher(client *req.Client) *HTTPFetcher {
	if client == nil {
		client = HTTPClient
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Get(ctx context.Context, source string, start, length int64) ([]byte, error) {
	if err := checkArgs(start, length); err != nil {
		return nil, err
	}
	r := f.client.R().SetContext(ctx)
	rng := rangeHeader(start, length)
	if rng != "" {
		r.SetHeader("Range", rng)
	}

	resp, err := r.Get(source)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", internal.ErrTransport, source, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if rng != "" {
			return nil, fmt.Errorf("%w: GET %s: server ignored range %s", internal.ErrTransport, source, rng)
		}
	case http.StatusPartialContent:
		if rng == "" {
			return nil, fmt.Errorf("%w: GET %s: unexpected partial content", internal.ErrTransport, source)
		}
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: GET %s: %s", internal.ErrNotFound, source, resp.Status)
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, fmt.Errorf("%w: GET %s %s: %s", internal.ErrInvalidRange, source, rng, resp.Status)
	default:
		return nil, fmt.Errorf("%w: GET %s: %s", internal.ErrTransport, source, resp.Status)
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: reading body: %v", internal.ErrTransport, source, err)
	}
	if err := checkLength(source, len(body), length); err != nil {
		return nil, err
	}
	logger.Tracef("http get %s %s: %d bytes", source, rng, len(body))
	return body, nil
}
