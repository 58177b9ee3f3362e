package storagesvc

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/cornelabs/lms/core"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

type gcsStorage struct {
	conf          *core.Config
	logger        core.Logger
	client        *storage.Client
	publicBaseURL string
}

var _ core.FileStorage = (*gcsStorage)(nil)

// NewGCSStorage stores files in Google Cloud Storage buckets. When conf.Storage.GCSEndpoint is set,
// the client talks to that emulator without authentication.
func NewGCSStorage(ctx context.Context, conf *core.Config, logger core.Logger) (core.FileStorage, error) {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	client, err := newGCSClient(ctx, conf.Storage.GCSEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}

	base := "https://storage.googleapis.com"
	if conf.Storage.GCSEndpoint != "" {
		base = strings.TrimRight(conf.Storage.GCSEndpoint, "/")
	}

	logger.Info("object storage initialized", map[string]interface{}{
		"endpoint":          conf.Storage.GCSEndpoint,
		"public_base_url":   base,
		"thumbnails_bucket": bucketName(conf, core.BucketThumbnails),
		"videos_bucket":     bucketName(conf, core.BucketVideos),
	})
	return &gcsStorage{conf: conf, logger: logger, client: client, publicBaseURL: base}, nil
}

func newGCSClient(ctx context.Context, endpoint string) (*storage.Client, error) {
	if endpoint == "" {
		return storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	}
	endpoint = strings.TrimRight(endpoint, "/")
	_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
	return storage.NewClient(ctx, option.WithoutAuthentication())
}

func (s *gcsStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := bucketName(s.conf, bucket)
	w := s.client.Bucket(name).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "uploading %s/%s", name, key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "closing writer for %s/%s", name, key)
	}
	return s.publicURL(name, key), nil
}

func (s *gcsStorage) Delete(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	name := bucketName(s.conf, bucket)
	err := s.client.Bucket(name).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "deleting %s/%s", name, key)
	}
	return nil
}

func (s *gcsStorage) ObjectKey(bucket, url string) (string, bool) {
	return cutKey(url, s.publicURL(bucketName(s.conf, bucket), ""))
}

func (s *gcsStorage) publicURL(bucket, key string) string {
	return s.publicBaseURL + "/" + bucket + "/" + key
}
