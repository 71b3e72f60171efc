// Package storagecache keeps local copies of blob store files, so that GDAL can open
// them as ordinary files. Least recently used files are evicted once the cache
// exceeds its size limit.
package storagecache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cyclopcam/landcover/pkg/storage"
	"github.com/cyclopcam/logs"
)

type StorageCache struct {
	// Deadline for a single download from upstream. Zero means no deadline.
	FetchTimeout time.Duration

	log       logs.Log
	upstream  storage.Storage
	cacheRoot string
	maxBytes  int64

	itemsLock sync.Mutex
	bytesUsed int64
	items     map[string]*cacheItem
	tick      int64
}

type cacheItem struct {
	filename string
	size     int64
	lock     int
	lastUsed int64
}

// CacheItemReader holds a cache item open. While any reader is open, the item
// will not be evicted.
type CacheItemReader struct {
	store *StorageCache
	item  *cacheItem
	f     *os.File
}

func (r *CacheItemReader) Read(p []byte) (n int, err error) {
	return r.f.Read(p)
}

func (r *CacheItemReader) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}

func (r *CacheItemReader) Close() error {
	r.store.itemsLock.Lock()
	defer r.store.itemsLock.Unlock()
	r.item.lock--
	return r.f.Close()
}

// Path returns the location of the cached copy on local disk
func (r *CacheItemReader) Path() string {
	return r.f.Name()
}

// NewStorageCache wipes cacheRoot and starts empty
func NewStorageCache(log logs.Log, upstream storage.Storage, cacheRoot string, maxBytes int64) (*StorageCache, error) {
	os.RemoveAll(cacheRoot)
	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		return nil, err
	}
	return &StorageCache{
		log:       log,
		upstream:  upstream,
		cacheRoot: cacheRoot,
		maxBytes:  maxBytes,
		items:     map[string]*cacheItem{},
	}, nil
}

// Open returns a reader over the local copy of a blob, fetching it from upstream if necessary.
// The download happens under the cache lock, so concurrent opens are serialized.
func (s *StorageCache) Open(ctx context.Context, filename string) (*CacheItemReader, error) {
	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()
	item := s.items[filename]
	if item == nil {
		s.purgeStale()
		if err := s.acquire(ctx, filename); err != nil {
			return nil, err
		}
		item = s.items[filename]
	}
	f, err := os.Open(s.localPath(filename))
	if err != nil {
		return nil, err
	}
	item.lock++
	item.lastUsed = s.tick
	s.tick++
	return &CacheItemReader{
		store: s,
		item:  item,
		f:     f,
	}, nil
}

// BytesUsed returns the total size of the cached files
func (s *StorageCache) BytesUsed() int64 {
	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()
	return s.bytesUsed
}

func (s *StorageCache) localPath(filename string) string {
	return filepath.Join(s.cacheRoot, filepath.FromSlash(filename))
}

func (s *StorageCache) acquire(ctx context.Context, filename string) error {
	if s.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.FetchTimeout)
		defer cancel()
	}
	src, err := s.upstream.ReadFile(ctx, filename)
	if err != nil {
		return err
	}
	defer src.Reader.Close()
	ondiskFilename := s.localPath(filename)
	if err := os.MkdirAll(filepath.Dir(ondiskFilename), 0755); err != nil {
		return err
	}
	dst, err := os.Create(ondiskFilename)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src.Reader)
	if err == nil {
		err = dst.Close()
	} else {
		dst.Close()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(dst.Name())
		return err
	}
	s.log.Debugf("Cached %v (%v bytes)", filename, src.Size)
	s.items[filename] = &cacheItem{
		filename: filename,
		size:     src.Size,
		lastUsed: s.tick,
	}
	s.bytesUsed += src.Size
	return nil
}

func (s *StorageCache) purgeStale() {
	if s.bytesUsed <= s.maxBytes {
		return
	}
	unused := []*cacheItem{}
	for _, item := range s.items {
		if item.lock == 0 {
			unused = append(unused, item)
		}
	}
	sort.Slice(unused, func(i, j int) bool {
		return unused[i].lastUsed < unused[j].lastUsed
	})
	for _, item := range unused {
		if s.bytesUsed <= s.maxBytes {
			break
		}
		s.bytesUsed -= item.size
		delete(s.items, item.filename)
		os.Remove(s.localPath(item.filename))
	}
}
