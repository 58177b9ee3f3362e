// Package storagesvc provides the core.FileStorage implementations.
package storagesvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/cornelabs/lms/core"
)

// NewFileStorage returns the storage backend selected by conf.Storage.Backend.
func NewFileStorage(ctx context.Context, conf *core.Config, logger core.Logger) (core.FileStorage, error) {
	switch conf.Storage.Backend {
	case core.StorageBackendGCS:
		return NewGCSStorage(ctx, conf, logger)
	case core.StorageBackendLocal, "":
		return NewLocalStorage(conf), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}

func bucketName(conf *core.Config, bucket string) string {
	switch bucket {
	case core.BucketThumbnails:
		if conf.Storage.ThumbnailsBucket != "" {
			return conf.Storage.ThumbnailsBucket
		}
	case core.BucketVideos:
		if conf.Storage.VideosBucket != "" {
			return conf.Storage.VideosBucket
		}
	}
	return bucket
}

func cutKey(url, prefix string) (string, bool) {
	key, ok := strings.CutPrefix(url, prefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
