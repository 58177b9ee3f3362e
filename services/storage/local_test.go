package storagesvc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornelabs/lms/core"
)

func newTestConf(t *testing.T) *core.Config {
	return &core.Config{Storage: core.StorageConfig{
		Backend:          core.StorageBackendLocal,
		LocalDir:         t.TempDir(),
		PublicBaseURL:    "http://localhost:8000",
		ThumbnailsBucket: "thumbs",
	}}
}

func TestLocalStorage(t *testing.T) {
	conf := newTestConf(t)
	s := NewLocalStorage(conf)
	ctx := context.Background()

	url, err := s.Upload(ctx, core.BucketThumbnails, "c1/cover.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/media/thumbs/c1/cover.png", url)

	data, err := os.ReadFile(filepath.Join(conf.Storage.LocalDir, "thumbs", "c1", "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	// unmapped buckets keep their name
	url, err = s.Upload(ctx, core.BucketVideos, "c1/intro.mp4", strings.NewReader("mp4"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/media/course-videos/c1/intro.mp4", url)

	require.NoError(t, s.Delete(ctx, core.BucketThumbnails, "c1/cover.png"))
	_, err = os.Stat(filepath.Join(conf.Storage.LocalDir, "thumbs", "c1", "cover.png"))
	assert.True(t, os.IsNotExist(err))

	// deleting a missing file is not an error
	assert.NoError(t, s.Delete(ctx, core.BucketThumbnails, "c1/cover.png"))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s := NewLocalStorage(newTestConf(t))

	_, err := s.Upload(context.Background(), "..", "../../etc/passwd", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
	assert.Error(t, s.Delete(context.Background(), core.BucketThumbnails, "../../x"))
}

func TestNewFileStorage(t *testing.T) {
	conf := newTestConf(t)
	s, err := NewFileStorage(context.Background(), conf, nil)
	require.NoError(t, err)
	assert.IsType(t, &localStorage{}, s)

	conf.Storage.Backend = "s3"
	_, err = NewFileStorage(context.Background(), conf, nil)
	assert.Error(t, err)
}

func TestLocalStorage_ObjectKey(t *testing.T) {
	conf := newTestConf(t)
	s := NewLocalStorage(conf)

	url, err := s.Upload(context.Background(), core.BucketThumbnails, "c1/cover.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)

	tests := []struct {
		name    string
		bucket  string
		url     string
		wantKey string
		wantOk  bool
	}{
		{name: "own url", bucket: core.BucketThumbnails, url: url, wantKey: "c1/cover.png", wantOk: true},
		{name: "other bucket", bucket: core.BucketVideos, url: url},
		{name: "external url", bucket: core.BucketThumbnails, url: "https://images.test/cover.png"},
		{name: "bucket root", bucket: core.BucketThumbnails, url: "http://localhost:8000/media/thumbs/"},
		{name: "empty", bucket: core.BucketThumbnails},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := s.ObjectKey(tt.bucket, tt.url)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
