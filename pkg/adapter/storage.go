package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// Storage is the interface for transcript archive storage.
type Storage interface {
	// Put returns a writer to save an object under the given key
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an object by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage using Cloud Storage.
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a Cloud Storage backed archive.
func NewStorage(ctx context.Context, bucketName string, opts ...option.ClientOption) (Storage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	return obj.NewWriter(ctx), nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}
	return reader, nil
}

// localStorage implements Storage on a local directory, for deployments
// without a bucket.
type localStorage struct {
	baseDir string
}

// NewLocalStorage creates a filesystem backed archive rooted at baseDir.
func NewLocalStorage(baseDir string) (Storage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("dir", baseDir))
	}
	return &localStorage{baseDir: baseDir}, nil
}

func (s *localStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create object directory", goerr.V("key", key))
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create object file", goerr.V("key", key))
	}
	return f, nil
}

func (s *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open object file", goerr.V("key", key))
	}
	return f, nil
}
