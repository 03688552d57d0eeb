package ledger

import (
	"context"
	"time"

	"github.com/listahan/listahan/internal/shared"
)

// RepositoryPort defines data access for the debt ledger. Read methods
// never lock; mutations run through WithTx so validation always observes
// the row it is about to change.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetOpenTab(ctx context.Context, customerID int64) (*DebtTab, error)
	ListTabs(ctx context.Context, customerID int64) ([]DebtTab, error)
	ListCustomerTransactions(ctx context.Context, customerID int64) ([]DebtTransaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]DebtTransaction, int, error)
}

// TxRepository exposes the mutating operations available inside a
// transaction. GetOpenTabForUpdate takes the row lock that serialises
// writers per customer at the store level.
type TxRepository interface {
	GetOpenTabForUpdate(ctx context.Context, customerID int64) (*DebtTab, error)
	CreateTab(ctx context.Context, tab DebtTab) (*DebtTab, error)
	InsertTransaction(ctx context.Context, tx DebtTransaction) (*DebtTransaction, error)
	UpdateTabBalance(ctx context.Context, tabID, version int64, balance float64, at time.Time) error
	CloseTab(ctx context.Context, tabID, version int64, at time.Time) error
}

// AuditPort records accepted mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards mutation retries behind client-supplied keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}
