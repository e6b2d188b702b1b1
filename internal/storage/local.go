package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps attachment files on the local filesystem under a base
// directory. Keys are slash-separated relative paths (e.g. "2026/09/spec.pdf").
type LocalStore struct {
	base string
}

func NewLocalStore(base string) (*LocalStore, error) {
	if base == "" {
		return nil, fmt.Errorf("local storage base dir missing")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local storage mkdir: %w", err)
	}
	return &LocalStore{base: abs}, nil
}

func (s *LocalStore) Base() string { return s.base }

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(s.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (s *LocalStore) Stat(ctx context.Context, location string) (BlobInfo, error) {
	fi, err := os.Stat(location)
	if err != nil {
		if os.IsNotExist(err) {
			return BlobInfo{}, ErrNotFound
		}
		return BlobInfo{}, err
	}
	if fi.IsDir() {
		return BlobInfo{}, ErrNotFound
	}
	return BlobInfo{Size: fi.Size(), ModTime: fi.ModTime().UTC()}, nil
}

func (s *LocalStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}
