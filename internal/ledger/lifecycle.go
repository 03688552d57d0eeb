package ledger

import (
	"time"
)

// Tab lifecycle per customer: no tab -> OPEN on first charge, OPEN stays
// OPEN across charges/payments/adjustments, OPEN -> CLOSED on settlement,
// and the next charge after closure opens a fresh tab. CLOSED tabs are
// retained permanently and never reopened.

// NewTab returns the OPEN tab created by a customer's first charge after
// having no live tab.
func NewTab(customerID int64, openedAt time.Time) DebtTab {
	return DebtTab{
		CustomerID: customerID,
		Status:     TabStatusOpen,
		OpenedAt:   openedAt,
		UpdatedAt:  openedAt,
	}
}

// CanAccept reports whether the tab may take a transaction of the given
// type, or how the caller should proceed when it cannot. A nil or CLOSED
// tab accepts only charges, which open a new tab.
func CanAccept(tab *DebtTab, txType TransactionType) error {
	if tab.Open() {
		return nil
	}
	if txType == TxTypeCharge {
		return nil
	}
	return ErrNoOpenTab
}

// SettlementPayment resolves the final payment recorded before closing a
// tab: the caller-supplied amount when present, otherwise the exact
// remaining balance. A zero-balance tab needs no payment at all.
func SettlementPayment(tab *DebtTab, requested *float64) (amount float64, needed bool, err error) {
	if !tab.Open() {
		return 0, false, ErrNoOpenTab
	}
	if requested != nil {
		if err := ValidatePayment(tab, *requested); err != nil {
			return 0, false, err
		}
		return *requested, true, nil
	}
	if tab.TotalBalance > Epsilon {
		return tab.TotalBalance, true, nil
	}
	return 0, false, nil
}

// Close marks the tab CLOSED. The balance must already be zero; callers
// record the settlement payment first.
func Close(tab *DebtTab, at time.Time) error {
	if !tab.Open() {
		return ErrNoOpenTab
	}
	if tab.TotalBalance > Epsilon || tab.TotalBalance < -Epsilon {
		return ErrValidation
	}
	tab.Status = TabStatusClosed
	tab.TotalBalance = 0
	tab.ClosedAt = &at
	tab.UpdatedAt = at
	return nil
}
