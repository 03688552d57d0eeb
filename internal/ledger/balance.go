package ledger

import (
	"fmt"
	"math"
)

// Contribution returns the signed amount a transaction adds to its tab
// balance. CHARGE and positive ADJUSTMENT increase the balance, PAYMENT
// and negative ADJUSTMENT decrease it.
func Contribution(tx DebtTransaction) float64 {
	switch tx.Type {
	case TxTypeCharge:
		return float64(tx.Containers) * tx.UnitPrice
	case TxTypePayment:
		return -tx.Amount
	case TxTypeAdjustment:
		return tx.Amount
	}
	return 0
}

// ValidateCharge checks a proposed charge. The customer credit limit is
// policy owned by the caller and is not enforced here.
func ValidateCharge(containers int, unitPrice float64) error {
	if containers <= 0 {
		return fmt.Errorf("%w: containers must be positive", ErrValidation)
	}
	if unitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrValidation)
	}
	return nil
}

// ValidatePayment checks a proposed payment against the tab it settles.
// Payments may never drive the balance below zero.
func ValidatePayment(tab *DebtTab, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	if !tab.Open() {
		return ErrNoOpenTab
	}
	if amount > tab.TotalBalance+Epsilon {
		return fmt.Errorf("%w: amount %.2f exceeds balance %.2f", ErrOverpayment, amount, tab.TotalBalance)
	}
	return nil
}

// ValidateAdjustment checks a proposed adjustment. Negative adjustments
// may reduce the balance to zero but never past it; positive adjustments
// are unbounded.
func ValidateAdjustment(tab *DebtTab, amount float64, reason string) error {
	if math.Abs(amount) <= Epsilon {
		return fmt.Errorf("%w: adjustment amount must be non-zero", ErrValidation)
	}
	if reason == "" {
		return ErrMissingReason
	}
	if !tab.Open() {
		return ErrNoOpenTab
	}
	if amount < 0 && -amount > tab.TotalBalance+Epsilon {
		return fmt.Errorf("%w: reduction %.2f exceeds balance %.2f", ErrNegativeBalance, -amount, tab.TotalBalance)
	}
	return nil
}

// Apply computes the tab balance after the transaction. Deterministic
// given the tab snapshot; reads no external state.
func Apply(tab *DebtTab, tx DebtTransaction) float64 {
	balance := 0.0
	if tab != nil {
		balance = tab.TotalBalance
	}
	next := balance + Contribution(tx)
	if math.Abs(next) < Epsilon {
		next = 0
	}
	return next
}

// Reconstruct folds an ordered transaction sequence into the running
// balance, verifying each stored BalanceAfter along the way. It is the
// audit counterpart of Apply.
func Reconstruct(txs []DebtTransaction) (float64, error) {
	balance := 0.0
	for i, tx := range txs {
		balance += Contribution(tx)
		if math.Abs(balance) < Epsilon {
			balance = 0
		}
		if math.Abs(balance-tx.BalanceAfter) > Epsilon {
			return balance, fmt.Errorf("ledger: transaction %d balance_after %.2f disagrees with running balance %.2f", i, tx.BalanceAfter, balance)
		}
	}
	return balance, nil
}
