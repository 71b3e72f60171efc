package storagecache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	log := logs.NewTestingLog(t)
	ctx := context.Background()
	upstream, err := storage.NewStorageFS(log, filepath.Join(t.TempDir(), "upstream"))
	require.NoError(t, err)
	for _, name := range []string{"a/1.tif", "a/2.tif", "a/3.tif"} {
		require.NoError(t, storage.WriteFile(ctx, upstream, name, bytes.NewReader(make([]byte, 100))))
	}

	cache, err := NewStorageCache(log, upstream, filepath.Join(t.TempDir(), "cache"), 150)
	require.NoError(t, err)

	r1, err := cache.Open(ctx, "a/1.tif")
	require.NoError(t, err)
	b, err := io.ReadAll(r1)
	require.NoError(t, err)
	require.Len(t, b, 100)
	path1 := r1.Path()
	require.FileExists(t, path1)

	// 1.tif is still open, so it survives even though we exceed the limit
	r2, err := cache.Open(ctx, "a/2.tif")
	require.NoError(t, err)
	require.NoError(t, r2.Close())
	r3, err := cache.Open(ctx, "a/3.tif")
	require.NoError(t, err)
	require.NoError(t, r3.Close())
	require.FileExists(t, path1)
	_, err = os.Stat(r2.Path())
	require.True(t, os.IsNotExist(err))
	require.NoError(t, r1.Close())
	require.EqualValues(t, 200, cache.BytesUsed())

	_, err = cache.Open(ctx, "a/missing.tif")
	require.Error(t, err)
}

// stalledStore never delivers data. It only returns once its context is done.
type stalledStore struct {
	stallInRead bool // Stall inside File.Reader instead of inside ReadFile
}

type stalledReader struct {
	ctx context.Context
}

func (r *stalledReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func (r *stalledReader) Close() error {
	return nil
}

func (s *stalledStore) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stalledStore) ReadFile(ctx context.Context, name string) (*storage.File, error) {
	if s.stallInRead {
		return &storage.File{Reader: &stalledReader{ctx: ctx}, Size: 100}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stalledStore) DeleteFile(ctx context.Context, name string) error {
	return nil
}

func (s *stalledStore) URL(name string) (string, error) {
	return "", storage.ErrNoPublicURL
}

func TestFetchTimeout(t *testing.T) {
	log := logs.NewTestingLog(t)
	for _, stallInRead := range []bool{false, true} {
		cache, err := NewStorageCache(log, &stalledStore{stallInRead: stallInRead}, filepath.Join(t.TempDir(), "cache"), 1024)
		require.NoError(t, err)
		cache.FetchTimeout = 50 * time.Millisecond

		start := time.Now()
		_, err = cache.Open(context.Background(), "scene/B4.tif")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Less(t, time.Since(start), 5*time.Second)
		require.EqualValues(t, 0, cache.BytesUsed())
		_, err = os.Stat(filepath.Join(cache.cacheRoot, "scene", "B4.tif"))
		require.True(t, os.IsNotExist(err))
	}
}
