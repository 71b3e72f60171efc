// Package storage is a blob store abstraction for scene archives and exported rasters.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cyclopcam/logs"
)

var ErrNoPublicURL = errors.New("Blob store does not have public URLs")
var ErrNotConfigured = errors.New("No blob store configured. Set either 'filesystem' or 'gcs'")

// Storage is an abstraction of a blob store (eg GCS or a local directory)
type Storage interface {
	// When finished, you must close the WriteCloser.
	// The blob is only complete once Close returns without error.
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error

	// URL returns a public URL for the blob, or ErrNoPublicURL
	URL(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type Config struct {
	Filesystem *ConfigFS  `json:"filesystem"`
	GCS        *ConfigGCS `json:"gcs"`
}

type ConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type ConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Optional prefix for all object names, eg "landsat/"
	Public bool   `json:"public"` // Whether the bucket is public, so that clients can fetch blobs directly
}

// Open creates the blob store described by cfg
func Open(ctx context.Context, log logs.Log, cfg Config) (Storage, error) {
	switch {
	case cfg.Filesystem != nil:
		return NewStorageFS(log, cfg.Filesystem.Root)
	case cfg.GCS != nil:
		return NewStorageGCS(ctx, log, cfg.GCS.Bucket, cfg.GCS.Prefix, cfg.GCS.Public)
	}
	return nil, ErrNotConfigured
}

func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
