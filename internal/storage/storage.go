package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// BlobInfo describes a stored object.
type BlobInfo struct {
	Size    int64
	ModTime time.Time
}

// BlobStore stores and retrieves attachment binaries. Put returns the stored
// location (an absolute path for the local backend, an object key for MinIO);
// that location is what gets recorded on the attachment and later passed to
// Stat/Open when serving.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Stat(ctx context.Context, location string) (BlobInfo, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}
