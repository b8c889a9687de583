package repository

import (
	"context"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
)

// RetryReporter exposes how many times a client retries a failed call internally. Every
// store used by the item service must report zero so throttling and access denials reach the
// caller unmasked.
type RetryReporter interface {
	Retries() int
}

// ItemRepository is the key-value store holding item metadata.
type ItemRepository interface {
	RetryReporter
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	PutItem(ctx context.Context, item *domain.Item) error
	ScanItems(ctx context.Context) ([]domain.Item, error)
}

// BlobStore holds item content addressed by key.
type BlobStore interface {
	RetryReporter
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}
