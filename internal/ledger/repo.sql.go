package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/listahan/listahan/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tabColumns = `id, customer_id, status, total_balance, version, opened_at, closed_at, updated_at`

const txColumns = `id, ref, tab_id, customer_id, tx_type, tx_date, seq, containers, unit_price, amount, reason, balance_after, notes, entered_by, created_at`

func scanTab(row pgx.Row) (*DebtTab, error) {
	var tab DebtTab
	if err := row.Scan(&tab.ID, &tab.CustomerID, &tab.Status, &tab.TotalBalance, &tab.Version, &tab.OpenedAt, &tab.ClosedAt, &tab.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, err
	}
	return &tab, nil
}

func scanTransactions(rows pgx.Rows) ([]DebtTransaction, error) {
	defer rows.Close()
	var txs []DebtTransaction
	for rows.Next() {
		var tx DebtTransaction
		if err := rows.Scan(&tx.ID, &tx.Ref, &tx.TabID, &tx.CustomerID, &tx.Type, &tx.Date, &tx.Seq, &tx.Containers, &tx.UnitPrice, &tx.Amount, &tx.Reason, &tx.BalanceAfter, &tx.Notes, &tx.EnteredBy, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetOpenTab returns the customer's OPEN tab without locking.
func (r *Repository) GetOpenTab(ctx context.Context, customerID int64) (*DebtTab, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tabColumns+` FROM debt_tabs WHERE customer_id=$1 AND status='OPEN'`, customerID)
	return scanTab(row)
}

// ListTabs returns every tab for the customer, oldest first.
func (r *Repository) ListTabs(ctx context.Context, customerID int64) ([]DebtTab, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tabColumns+` FROM debt_tabs WHERE customer_id=$1 ORDER BY opened_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tabs []DebtTab
	for rows.Next() {
		var tab DebtTab
		if err := rows.Scan(&tab.ID, &tab.CustomerID, &tab.Status, &tab.TotalBalance, &tab.Version, &tab.OpenedAt, &tab.ClosedAt, &tab.UpdatedAt); err != nil {
			return nil, err
		}
		tabs = append(tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tabs, nil
}

// ListCustomerTransactions returns the customer's full transaction
// history across tabs in ledger order.
func (r *Repository) ListCustomerTransactions(ctx context.Context, customerID int64) ([]DebtTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txColumns+` FROM debt_transactions WHERE customer_id=$1 ORDER BY tab_id, tx_date, seq`, customerID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListTransactions applies the filter and pagination in SQL.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]DebtTransaction, int, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != 0 {
		add("t.customer_id=$%d", filter.CustomerID)
	}
	if filter.Type != "" {
		add("t.tx_type=$%d", filter.Type)
	}
	if filter.TabStatus != "" {
		add("tab.status=$%d", filter.TabStatus)
	}
	if !filter.DateFrom.IsZero() {
		add("t.tx_date >= $%d", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		add("t.tx_date <= $%d", filter.DateTo)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM debt_transactions t JOIN debt_tabs tab ON tab.id = t.tab_id` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + txColumnsPrefixed + ` FROM debt_transactions t JOIN debt_tabs tab ON tab.id = t.tab_id` + where +
		fmt.Sprintf(" ORDER BY t.tx_date DESC, t.seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

const txColumnsPrefixed = `t.id, t.ref, t.tab_id, t.customer_id, t.tx_type, t.tx_date, t.seq, t.containers, t.unit_price, t.amount, t.reason, t.balance_after, t.notes, t.entered_by, t.created_at`

type txRepo struct {
	tx pgx.Tx
}

// GetOpenTabForUpdate row-locks the customer's OPEN tab for the duration
// of the transaction.
func (r *txRepo) GetOpenTabForUpdate(ctx context.Context, customerID int64) (*DebtTab, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+tabColumns+` FROM debt_tabs WHERE customer_id=$1 AND status='OPEN' FOR UPDATE`, customerID)
	return scanTab(row)
}

// CreateTab inserts a fresh OPEN tab. The partial unique index on
// (customer_id) WHERE status='OPEN' backs the single-open-tab invariant.
func (r *txRepo) CreateTab(ctx context.Context, tab DebtTab) (*DebtTab, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO debt_tabs (customer_id, status, total_balance, version, opened_at, updated_at)
VALUES ($1, 'OPEN', 0, 1, $2, $3) RETURNING `+tabColumns, tab.CustomerID, tab.OpenedAt, tab.UpdatedAt)
	return scanTab(row)
}

// InsertTransaction appends a ledger row, assigning the next per-tab
// sequence number under the tab row lock.
func (r *txRepo) InsertTransaction(ctx context.Context, tx DebtTransaction) (*DebtTransaction, error) {
	var seq int64
	if err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM debt_transactions WHERE tab_id=$1`, tx.TabID).Scan(&seq); err != nil {
		return nil, err
	}
	tx.Seq = seq
	tx.Ref = uuid.NewString()
	tx.CreatedAt = time.Now()
	row := r.tx.QueryRow(ctx, `INSERT INTO debt_transactions (ref, tab_id, customer_id, tx_type, tx_date, seq, containers, unit_price, amount, reason, balance_after, notes, entered_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		tx.Ref, tx.TabID, tx.CustomerID, tx.Type, tx.Date, tx.Seq, tx.Containers, tx.UnitPrice, tx.Amount, tx.Reason, tx.BalanceAfter, tx.Notes, tx.EnteredBy, tx.CreatedAt)
	if err := row.Scan(&tx.ID); err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTabBalance writes the new snapshot balance guarded by the
// version column. Zero rows affected means another writer got there
// first.
func (r *txRepo) UpdateTabBalance(ctx context.Context, tabID, version int64, balance float64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE debt_tabs SET total_balance=$1, version=version+1, updated_at=$2 WHERE id=$3 AND version=$4 AND status='OPEN'`, balance, at, tabID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CloseTab transitions the tab to CLOSED, version-guarded like balance
// updates. Closed tabs are permanent history.
func (r *txRepo) CloseTab(ctx context.Context, tabID, version int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE debt_tabs SET status='CLOSED', total_balance=0, closed_at=$1, version=version+1, updated_at=$1 WHERE id=$2 AND version=$3 AND status='OPEN'`, at, tabID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}
