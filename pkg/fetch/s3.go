package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

// splitBucketKey turns scheme://bucket/some/key into bucket and key.
func splitBucketKey(location string) (string, string, error) {
	i := strings.Index(location, "://")
	if i < 0 {
		return "", "", fmt.Errorf("invalid object location %q", location)
	}
	bucket, key, _ := strings.Cut(location[i+3:], "/")
	if bucket == "" {
		return "", "", fmt.Errorf("no bucket in %q", location)
	}
	return bucket, key, nil
}

// S3Fetcher reads s3://bucket/key locations through the AWS SDK.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher loads credentials from the default chain. AWS_ACCESS_KEY_ID
// and AWS_SECRET_ACCESS_KEY take precedence when both are set.
func NewS3Fetcher(ctx context.Context, endpoint, region string, pathStyle bool) (*S3Fetcher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if ak, sk := getenv("AWS_ACCESS_KEY_ID"), getenv("AWS_SECRET_ACCESS_KEY"); ak != "" && sk != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, getenv("AWS_SESSION_TOKEN"))))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	logger.Infof("s3 client ready, region %q endpoint %q path-style %v", cfg.Region, endpoint, pathStyle)
	return &S3Fetcher{client: client}, nil
}

func classifyS3Error(location string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		switch re.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: %v", internal.ErrNotFound, location, err)
		case http.StatusRequestedRangeNotSatisfiable:
			return fmt.Errorf("%w: %s: %v", internal.ErrInvalidRange, location, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", internal.ErrTransport, location, err)
}

func (f *S3Fetcher) Get(ctx context.Context, source string, start, length int64) ([]byte, error) {
	if err := checkArgs(start, length); err != nil {
		return nil, err
	}
	bucket, key, err := splitBucketKey(source)
	if err != nil {
		return nil, err
	}
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if rng := rangeHeader(start, length); rng != "" {
		in.Range = aws.String(rng)
	}
	out, err := f.client.GetObject(ctx, in)
	if err != nil {
		return nil, classifyS3Error(source, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %v", internal.ErrTransport, source, err)
	}
	if err := checkLength(source, len(body), length); err != nil {
		return nil, err
	}
	logger.Tracef("s3 get %s [%d, +%d)", source, start, len(body))
	return body, nil
}

// List returns the object names directly below a prefix. Locations not
// ending in "/" are objects.
func (f *S3Fetcher) List(ctx context.Context, location string) ([]string, error) {
	if !strings.HasSuffix(location, "/") {
		return nil, ErrNotDir
	}
	bucket, prefix, err := splitBucketKey(location)
	if err != nil {
		return nil, err
	}
	var names []string
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error(location, err)
		}
		for _, obj := range page.Contents {
			names = append(names, path.Base(aws.ToString(obj.Key)))
		}
	}
	return names, nil
}
