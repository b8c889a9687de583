// Package gcs stores item content in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// Store implements repository.BlobStore on a single bucket with client retries disabled.
type Store struct {
	client *storage.Client
	bucket string
	owned  bool
}

var _ repository.BlobStore = (*Store)(nil)

// New dials Cloud Storage. credentialsFile may be empty to use application default credentials.
func New(ctx context.Context, bucket, credentialsFile string) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("content bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s := NewWithClient(client, bucket)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The retry policy of client is overwritten.
func NewWithClient(client *storage.Client, bucket string) *Store {
	client.SetRetry(storage.WithPolicy(storage.RetryNever))
	return &Store{client: client, bucket: bucket}
}

// Retries reports zero; the client runs with storage.RetryNever.
func (s *Store) Retries() int { return 0 }

// Close releases the client when New created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, classify("get object "+key, err)
	}
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, classify("read object "+key, err)
	}
	return body, nil
}

func (s *Store) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return classify("put object "+key, err)
	}
	if err := writer.Close(); err != nil {
		return classify("put object "+key, err)
	}
	return nil
}

// classify maps storage failures onto repository sentinels and provider codes.
func classify(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return repository.NewStoreError(op, repository.CodeNoSuchKey, repository.ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden, http.StatusUnauthorized:
			return repository.NewStoreError(op, repository.CodeAccessDenied, fmt.Errorf("%w: %s", repository.ErrAccessDenied, apiErr.Message))
		case http.StatusNotFound:
			return repository.NewStoreError(op, repository.CodeNoSuchKey, repository.ErrNotFound)
		case http.StatusTooManyRequests:
			return repository.NewStoreError(op, repository.CodeThroughputExceeded, repository.ErrThroughputExceeded)
		}
	}
	return repository.NewStoreError(op, "", err)
}
