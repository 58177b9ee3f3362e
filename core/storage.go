package core

import (
	"context"
	"io"
)

// Storage buckets
const (
	BucketThumbnails = "thumbnails"
	BucketVideos     = "course-videos"
)

// FileStorage is any service that can store uploaded files and serve them from a public URL.
type FileStorage interface {
	// Upload stores r under key in bucket and returns the public URL of the stored object.
	Upload(ctx context.Context, bucket, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, bucket, key string) error
	// ObjectKey returns the key of the object behind url when url was issued by this storage for bucket.
	ObjectKey(bucket, url string) (string, bool)
}

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
