// Copyright 2025 zhengshuai.xiao@outlook.com
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var getenv = os.Getenv

// MinioFetcher reads minio://bucket/key locations from one MinIO endpoint.
type MinioFetcher struct {
	client *miniogo.Core
}

// NewMinioFetcher falls back to MINIO_ROOT_USER and MINIO_ROOT_PASSWORD
// when no keys are given.
func NewMinioFetcher(endpoint, accessKey, secretKey string, secure bool) (*MinioFetcher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is not set")
	}
	if accessKey == "" {
		accessKey = getenv("MINIO_ROOT_USER")
	}
	if secretKey == "" {
		secretKey = getenv("MINIO_ROOT_PASSWORD")
	}
	core, err := miniogo.NewCore(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return &MinioFetcher{client: core}, nil
}

func classifyMinioError(location string, err error) error {
	switch miniogo.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s: %v", internal.ErrNotFound, location, err)
	case "InvalidRange":
		return fmt.Errorf("%w: %s: %v", internal.ErrInvalidRange, location, err)
	}
	return fmt.Errorf("%w: %s: %v", internal.ErrTransport, location, err)
}

func (f *MinioFetcher) Get(ctx context.Context, source string, start, length int64) ([]byte, error) {
	if err := checkArgs(start, length); err != nil {
		return nil, err
	}
	bucket, key, err := splitBucketKey(source)
	if err != nil {
		return nil, err
	}
	opts := miniogo.GetObjectOptions{}
	switch {
	case start == 0 && length == ToEnd:
	case length == ToEnd:
		err = opts.SetRange(start, 0)
	default:
		err = opts.SetRange(start, start+length-1)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrInvalidRange, err)
	}

	rc, _, _, err := f.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, classifyMinioError(source, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, classifyMinioError(source, err)
	}
	if err := checkLength(source, len(body), length); err != nil {
		return nil, err
	}
	logger.Tracef("minio get %s [%d, +%d)", source, start, len(body))
	return body, nil
}

// List returns the object names directly below a bucket prefix ending in "/".
func (f *MinioFetcher) List(ctx context.Context, location string) ([]string, error) {
	if !strings.HasSuffix(location, "/") {
		return nil, ErrNotDir
	}
	bucket, prefix, err := splitBucketKey(location)
	if err != nil {
		return nil, err
	}
	var names []string
	for obj := range f.client.Client.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, classifyMinioError(location, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		names = append(names, path.Base(obj.Key))
	}
	return names, nil
}
