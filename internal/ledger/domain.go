package ledger

import (
	"time"
)

// TabStatus enumerates debt tab statuses.
type TabStatus string

const (
	TabStatusOpen   TabStatus = "OPEN"
	TabStatusClosed TabStatus = "CLOSED"
)

// TransactionType enumerates ledger transaction types.
type TransactionType string

const (
	TxTypeCharge     TransactionType = "CHARGE"
	TxTypePayment    TransactionType = "PAYMENT"
	TxTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Epsilon tolerates floating rounding when comparing money amounts.
const Epsilon = 0.001

// DebtTab is the currently active accumulation period for one customer.
// At most one OPEN tab exists per customer; TotalBalance always equals
// the sum of signed contributions of the tab's transactions in order.
type DebtTab struct {
	ID           int64
	CustomerID   int64
	Status       TabStatus
	TotalBalance float64
	Version      int64
	OpenedAt     time.Time
	ClosedAt     *time.Time
	UpdatedAt    time.Time
}

// Open reports whether the tab is still accumulating transactions.
func (t *DebtTab) Open() bool {
	return t != nil && t.Status == TabStatusOpen
}

// DebtTransaction is one immutable row of the append-only ledger.
// Corrections never update or delete rows; they arrive as new
// ADJUSTMENT transactions.
type DebtTransaction struct {
	ID         int64
	Ref        string
	TabID      int64
	CustomerID int64
	Type       TransactionType
	Date       time.Time
	Seq        int64

	// CHARGE fields.
	Containers int
	UnitPrice  float64

	// PAYMENT and ADJUSTMENT field. Negative adjustments reduce the balance.
	Amount float64

	// ADJUSTMENT field, required.
	Reason string

	BalanceAfter float64
	Notes        string
	EnteredBy    int64
	CreatedAt    time.Time
}

// ChargeInput describes a proposed CHARGE.
type ChargeInput struct {
	CustomerID     int64
	Containers     int
	UnitPrice      float64
	Date           time.Time
	Notes          string
	EnteredBy      int64
	IdempotencyKey string
}

// PaymentInput describes a proposed PAYMENT.
type PaymentInput struct {
	CustomerID     int64
	Amount         float64
	Date           time.Time
	Notes          string
	EnteredBy      int64
	IdempotencyKey string
}

// AdjustmentInput describes a proposed ADJUSTMENT.
type AdjustmentInput struct {
	CustomerID     int64
	Amount         float64
	Reason         string
	Date           time.Time
	Notes          string
	EnteredBy      int64
	IdempotencyKey string
}

// MarkPaidInput settles and closes a customer's open tab. FinalPayment,
// when set, is recorded before closing and must clear the balance; when
// nil the remaining balance is paid off exactly.
type MarkPaidInput struct {
	CustomerID     int64
	FinalPayment   *float64
	Date           time.Time
	Notes          string
	EnteredBy      int64
	IdempotencyKey string
}

// CustomerDebt pairs a customer with their live tab, if any.
type CustomerDebt struct {
	CustomerID int64
	Tab        *DebtTab
}

// CustomerHistory holds every tab and transaction for one customer.
type CustomerHistory struct {
	CustomerID   int64
	Tabs         []DebtTab
	Transactions []DebtTransaction
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	CustomerID int64
	Type       TransactionType
	TabStatus  TabStatus
	DateFrom   time.Time
	DateTo     time.Time
	Page       int
	PerPage    int
}
