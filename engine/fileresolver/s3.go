package fileresolver

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewS3Client connects to an S3 compatible object store used for s3://bucket/key references
func NewS3Client(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client for %s: %w", endpoint, err)
	}
	return client, nil
}

// parseS3URL splits s3://bucket/path/to/key
func parseS3URL(u *url.URL) (bucket, key string, ok bool) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	return bucket, key, bucket != "" && key != ""
}

func (r *Resolver) fetchS3(ctx context.Context, source string, u *url.URL) ([]byte, error) {
	if r.s3 == nil {
		return nil, accessError(ReasonInvalidURL, source, "S3 is not configured, s3:// references cannot be resolved", nil)
	}
	bucket, key, ok := parseS3URL(u)
	if !ok {
		return nil, accessError(ReasonInvalidURL, source, "expected s3://bucket/key", nil)
	}

	obj, err := r.s3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyS3Error(ctx, source, err)
	}
	defer obj.Close()

	// GetObject is lazy, Stat surfaces missing keys and denied access
	info, err := obj.Stat()
	if err != nil {
		return nil, classifyS3Error(ctx, source, err)
	}
	if info.Size > r.maxFileSize {
		return nil, accessError(ReasonNotAPDF, source, fmt.Sprintf("object is %d bytes, limit is %d", info.Size, r.maxFileSize), nil)
	}

	data, err := io.ReadAll(io.LimitReader(obj, r.maxFileSize+1))
	if err != nil {
		return nil, classifyS3Error(ctx, source, err)
	}
	if int64(len(data)) > r.maxFileSize {
		return nil, accessError(ReasonNotAPDF, source, fmt.Sprintf("object exceeds the %d byte limit", r.maxFileSize), nil)
	}
	return data, nil
}

func classifyS3Error(ctx context.Context, source string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return accessError(ReasonNotFound, source, "object does not exist", err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return accessError(ReasonPermissionDenied, source, "access to object denied", err)
	}
	return classifyNetError(ctx, source, err)
}
