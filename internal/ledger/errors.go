package ledger

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input, rejected
	// before the ledger is touched.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrOverpayment indicates a payment exceeding the tab balance.
	ErrOverpayment = errors.New("ledger: payment exceeds outstanding balance")
	// ErrNegativeBalance indicates an adjustment that would push the tab
	// balance below zero.
	ErrNegativeBalance = errors.New("ledger: adjustment would drive balance below zero")
	// ErrMissingReason indicates an adjustment without a stated reason.
	ErrMissingReason = errors.New("ledger: adjustment reason required")
	// ErrNoOpenTab indicates a payment, adjustment or settlement with no
	// open tab to apply it to.
	ErrNoOpenTab = errors.New("ledger: customer has no open tab")
	// ErrConcurrentModification indicates the tab changed between read and
	// write, or the per-customer section could not be acquired in time.
	// Safe to retry.
	ErrConcurrentModification = errors.New("ledger: tab modified concurrently")
	// ErrTabNotFound indicates an unknown tab.
	ErrTabNotFound = errors.New("ledger: tab not found")
)
