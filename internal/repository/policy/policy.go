// Package policy enforces a bucket access policy in front of a blob store.
package policy

import (
	"context"
	"strings"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// Operation names a blob store action covered by a policy.
type Operation string

const (
	OpGet Operation = "get"
	OpPut Operation = "put"
)

// ParseOperations reads a comma separated list such as "get,put". Unknown entries are ignored.
func ParseOperations(raw string) []Operation {
	var ops []Operation
	for _, part := range strings.Split(raw, ",") {
		switch op := Operation(strings.ToLower(strings.TrimSpace(part))); op {
		case OpGet, OpPut:
			ops = append(ops, op)
		}
	}
	return ops
}

// BlobStore denies the configured operations with AccessDenied before they reach the store.
type BlobStore struct {
	next repository.BlobStore
	deny map[Operation]bool
}

var _ repository.BlobStore = (*BlobStore)(nil)

// Deny wraps next. With no operations the wrapper is transparent.
func Deny(next repository.BlobStore, ops ...Operation) *BlobStore {
	deny := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		deny[op] = true
	}
	return &BlobStore{next: next, deny: deny}
}

// Denies reports whether op is blocked.
func (b *BlobStore) Denies(op Operation) bool { return b.deny[op] }

func (b *BlobStore) Retries() int { return b.next.Retries() }

func (b *BlobStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if b.deny[OpGet] {
		return nil, repository.NewStoreError("get object "+key, repository.CodeAccessDenied, repository.ErrAccessDenied)
	}
	return b.next.GetObject(ctx, key)
}

func (b *BlobStore) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if b.deny[OpPut] {
		return repository.NewStoreError("put object "+key, repository.CodeAccessDenied, repository.ErrAccessDenied)
	}
	return b.next.PutObject(ctx, key, body, contentType)
}
