package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// Repository implements the item store on PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	table string
}

// New constructs a Repository over table. An empty table name selects "items".
func New(pool *pgxpool.Pool, table string) *Repository {
	if table == "" {
		table = "items"
	}
	return &Repository{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// ensure Repository satisfies interfaces.
var _ repository.ItemRepository = (*Repository)(nil)

// Retries reports zero. Queries are issued once; pgx does not retry failed statements.
func (r *Repository) Retries() int { return 0 }

// Ping checks connectivity for health reporting.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetItem fetches an item by id.
func (r *Repository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	query := fmt.Sprintf(`SELECT id, name, blob_key, created_at FROM %s WHERE id = $1`, r.table)
	row := r.pool.QueryRow(ctx, query, id)
	var item domain.Item
	if err := row.Scan(&item.ID, &item.Name, &item.BlobKey, &item.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.NewStoreError("get item", "", err)
	}
	return &item, nil
}

// PutItem inserts an item, overwriting any record with the same id.
func (r *Repository) PutItem(ctx context.Context, item *domain.Item) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, name, blob_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, blob_key = EXCLUDED.blob_key, created_at = EXCLUDED.created_at`, r.table)
	if _, err := r.pool.Exec(ctx, query, item.ID, item.Name, item.BlobKey, item.CreatedAt); err != nil {
		return repository.NewStoreError("put item", "", err)
	}
	return nil
}

// ScanItems returns all items ordered by creation time.
func (r *Repository) ScanItems(ctx context.Context) ([]domain.Item, error) {
	query := fmt.Sprintf(`SELECT id, name, blob_key, created_at FROM %s ORDER BY created_at, id`, r.table)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, repository.NewStoreError("scan items", "", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.BlobKey, &item.CreatedAt); err != nil {
			return nil, repository.NewStoreError("scan items", "", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.NewStoreError("scan items", "", err)
	}
	return items, nil
}
