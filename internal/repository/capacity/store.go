// Package capacity simulates provisioned read/write throughput in front of an item store.
package capacity

import (
	"context"
	"time"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// Units is the provisioned capacity of a table, in operations per Window.
type Units struct {
	Read   int
	Write  int
	Window time.Duration
}

// DefaultUnits returns the capacity of the item table. Throttling simulation provisions a
// single unit each way.
func DefaultUnits(simulateThrottling bool) Units {
	if simulateThrottling {
		return Units{Read: 1, Write: 1, Window: time.Second}
	}
	return Units{Read: 10, Write: 5, Window: time.Second}
}

// Store rejects calls that exceed the provisioned units with ErrThroughputExceeded. Rejected
// calls are never forwarded or retried.
type Store struct {
	next    repository.ItemRepository
	limiter Limiter
	table   string
	units   Units
}

var _ repository.ItemRepository = (*Store)(nil)

// Wrap places next behind limiter using table as the counter namespace.
func Wrap(next repository.ItemRepository, limiter Limiter, table string, units Units) *Store {
	if units.Window <= 0 {
		units.Window = time.Second
	}
	if table == "" {
		table = "items"
	}
	return &Store{next: next, limiter: limiter, table: table, units: units}
}

// Units reports the provisioned capacity.
func (s *Store) Units() Units { return s.units }

// Retries delegates to the wrapped store.
func (s *Store) Retries() int { return s.next.Retries() }

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if err := s.consume(ctx, "read", s.units.Read, "get item"); err != nil {
		return nil, err
	}
	return s.next.GetItem(ctx, id)
}

func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	if err := s.consume(ctx, "write", s.units.Write, "put item"); err != nil {
		return err
	}
	return s.next.PutItem(ctx, item)
}

// ScanItems costs one read unit regardless of the number of items returned.
func (s *Store) ScanItems(ctx context.Context) ([]domain.Item, error) {
	if err := s.consume(ctx, "read", s.units.Read, "scan items"); err != nil {
		return nil, err
	}
	return s.next.ScanItems(ctx)
}

func (s *Store) consume(ctx context.Context, op string, limit int, name string) error {
	if s.limiter == nil {
		return nil
	}
	decision := s.limiter.Allow(ctx, s.table+":"+op, limit, s.units.Window)
	if decision.Allowed {
		return nil
	}
	return repository.NewStoreError(name, repository.CodeThroughputExceeded, repository.ErrThroughputExceeded)
}
