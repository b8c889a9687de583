// Package memory provides process-local item and blob stores. They back local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// ItemStore keeps items in a map guarded by a mutex. Point reads and writes are atomic.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// NewItemStore constructs an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]domain.Item)}
}

var (
	_ repository.ItemRepository = (*ItemStore)(nil)
	_ repository.BlobStore      = (*BlobStore)(nil)
)

// Retries reports zero; the store never retries.
func (s *ItemStore) Retries() int { return 0 }

// GetItem returns the item stored under id.
func (s *ItemStore) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

// PutItem stores item, replacing any record with the same id.
func (s *ItemStore) PutItem(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

// ScanItems returns every stored item ordered by creation time, then id.
func (s *ItemStore) ScanItems(ctx context.Context) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

type object struct {
	body        []byte
	contentType string
}

// BlobStore keeps objects in memory.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewBlobStore constructs an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]object)}
}

// Retries reports zero; the store never retries.
func (b *BlobStore) Retries() int { return 0 }

// GetObject returns a copy of the object body stored under key.
func (b *BlobStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, repository.NewStoreError("get object "+key, repository.CodeNoSuchKey, repository.ErrNotFound)
	}
	return append([]byte(nil), obj.body...), nil
}

// PutObject stores a copy of body under key.
func (b *BlobStore) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

// ContentType returns the content type recorded for key.
func (b *BlobStore) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj.contentType, ok
}

// Len returns the number of stored objects.
func (b *BlobStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
