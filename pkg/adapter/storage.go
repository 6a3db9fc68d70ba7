package adapter

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
)

// Storage is the interface for voice transcript archival
type Storage interface {
	// Put returns a writer to save a transcript object
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads a transcript object
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// TranscriptKey builds the object key for one voice turn transcript
func TranscriptKey(userID model.UserID, at time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s.json", userID, at.UTC().Format("20060102T150405.000000000Z"))
}

// storageClient implements Storage using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
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
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.Value("key", key))
	}

	return reader, nil
}
