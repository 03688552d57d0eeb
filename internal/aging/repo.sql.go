package aging

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/listahan/listahan/internal/ledger"
)

// Repository provides PostgreSQL backed reads for report generation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOpenTabsWithCustomers returns every OPEN tab joined with customer
// identity, oldest tab first.
func (r *Repository) ListOpenTabsWithCustomers(ctx context.Context) ([]OpenTabRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.location, t.id, t.customer_id, t.status, t.total_balance, t.version, t.opened_at, t.closed_at, t.updated_at
FROM debt_tabs t JOIN customers c ON c.id = t.customer_id
WHERE t.status = 'OPEN' ORDER BY t.opened_at, t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpenTabRow
	for rows.Next() {
		var row OpenTabRow
		var tab ledger.DebtTab
		if err := rows.Scan(&row.CustomerID, &row.Name, &row.Location, &tab.ID, &tab.CustomerID, &tab.Status, &tab.TotalBalance, &tab.Version, &tab.OpenedAt, &tab.ClosedAt, &tab.UpdatedAt); err != nil {
			return nil, err
		}
		row.Tab = tab
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
