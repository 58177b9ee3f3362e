package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
)

// MediaPrefix is the URL path the API serves local files from.
const MediaPrefix = "/media"

type localStorage struct {
	conf *core.Config
	root string
}

var _ core.FileStorage = (*localStorage)(nil)

// NewLocalStorage stores files on disk under conf.Storage.LocalDir.
func NewLocalStorage(conf *core.Config) core.FileStorage {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.StringNotEmpty(conf.Storage.LocalDir, "conf.Storage.LocalDir"),
	).CheckAndPanic()

	return &localStorage{conf: conf, root: conf.Storage.LocalDir}
}

func (s *localStorage) path(bucket, key string) (string, error) {
	name := bucketName(s.conf, bucket)
	fp := filepath.Join(s.root, name, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, fp)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.Errorf("invalid key %q", key)
	}
	return fp, nil
}

func (s *localStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, _ string) (string, error) {
	fp, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media directory")
	}

	f, err := os.Create(fp)
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrapf(err, "writing %s", key)
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrapf(err, "closing %s", key)
	}
	if err = ctx.Err(); err != nil {
		_ = os.Remove(fp)
		return "", err
	}
	return s.publicURL(bucket, key), nil
}

func (s *localStorage) publicURL(bucket, key string) string {
	return s.conf.Storage.PublicBaseURL + MediaPrefix + "/" + bucketName(s.conf, bucket) + "/" + key
}

func (s *localStorage) ObjectKey(bucket, url string) (string, bool) {
	return cutKey(url, s.publicURL(bucket, ""))
}

func (s *localStorage) Delete(_ context.Context, bucket, key string) error {
	fp, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting %s", key)
	}
	return nil
}
