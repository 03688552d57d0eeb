package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/listahan/listahan/internal/shared"
)

const idempotencyModule = "ledger"

// CacheBumper invalidates derived read-side caches after a mutation.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// ServiceConfig tunes the mutation coordinator.
type ServiceConfig struct {
	// LockWait bounds how long a mutation waits for the per-customer
	// section before failing with ErrConcurrentModification.
	LockWait time.Duration
}

// Service coordinates ledger mutations and serves the read API. Every
// mutation runs validate-then-commit inside a per-customer critical
// section so no two writers ever observe the same prior balance.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	bumper      CacheBumper
	limiter     *shared.KeyedLimiter
	lockWait    time.Duration
}

// NewService builds the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, bumper CacheBumper, cfg ServiceConfig) *Service {
	wait := cfg.LockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		bumper:      bumper,
		limiter:     shared.NewKeyedLimiter(),
		lockWait:    wait,
	}
}

func customerLockKey(customerID int64) string {
	return fmt.Sprintf("customer:%d:tab", customerID)
}

// guardKey reserves the idempotency key before any write. It reports
// whether a key was inserted and therefore must be rolled back when the
// mutation fails to commit.
func (s *Service) guardKey(ctx context.Context, key string) (bool, error) {
	if key == "" || s.idempotency == nil {
		return false, nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return false, fmt.Errorf("%w: idempotency key must be a UUID", ErrValidation)
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return false, err
	}
	return true, nil
}

// mutate wraps fn in the idempotency guard, the bounded per-customer
// section and a store transaction. fn observes a row-locked tab state.
func (s *Service) mutate(ctx context.Context, customerID int64, key string, fn func(context.Context, TxRepository) error) error {
	if customerID == 0 {
		return fmt.Errorf("%w: customer id required", ErrValidation)
	}
	inserted, err := s.guardKey(ctx, key)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	release, err := s.limiter.Acquire(lockCtx, customerLockKey(customerID))
	cancel()
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return fmt.Errorf("%w: lock wait exceeded", ErrConcurrentModification)
	}
	defer release()

	if err := s.repo.WithTx(ctx, fn); err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	if s.bumper != nil {
		_ = s.bumper.Bump(ctx)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, tx *DebtTransaction) {
	if s.audit == nil || tx == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "debt_transaction",
		EntityID: tx.Ref,
		Meta: map[string]any{
			"customer_id":   tx.CustomerID,
			"tab_id":        tx.TabID,
			"type":          string(tx.Type),
			"balance_after": tx.BalanceAfter,
		},
	})
}

// Charge appends a CHARGE to the customer's open tab, opening a fresh
// tab when none exists or the previous one was settled.
func (s *Service) Charge(ctx context.Context, input ChargeInput) (*DebtTransaction, error) {
	if err := ValidateCharge(input.Containers, input.UnitPrice); err != nil {
		return nil, err
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	var created *DebtTransaction
	err := s.mutate(ctx, input.CustomerID, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		tab, err := tx.GetOpenTabForUpdate(ctx, input.CustomerID)
		if err != nil && !errors.Is(err, ErrTabNotFound) {
			return err
		}
		if tab == nil {
			fresh, err := tx.CreateTab(ctx, NewTab(input.CustomerID, date))
			if err != nil {
				return err
			}
			tab = fresh
		}

		entry := DebtTransaction{
			TabID:      tab.ID,
			CustomerID: input.CustomerID,
			Type:       TxTypeCharge,
			Date:       date,
			Containers: input.Containers,
			UnitPrice:  input.UnitPrice,
			Notes:      input.Notes,
			EnteredBy:  input.EnteredBy,
		}
		entry.BalanceAfter = Apply(tab, entry)

		created, err = tx.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		return tx.UpdateTabBalance(ctx, tab.ID, tab.Version, entry.BalanceAfter, date)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.EnteredBy, "ledger:charge", created)
	return created, nil
}

// Pay appends a PAYMENT to the customer's open tab. Payments exceeding
// the outstanding balance are rejected before anything is written.
func (s *Service) Pay(ctx context.Context, input PaymentInput) (*DebtTransaction, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	var created *DebtTransaction
	err := s.mutate(ctx, input.CustomerID, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		tab, err := tx.GetOpenTabForUpdate(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, ErrTabNotFound) {
				return ErrNoOpenTab
			}
			return err
		}
		if err := ValidatePayment(tab, input.Amount); err != nil {
			return err
		}

		entry := DebtTransaction{
			TabID:      tab.ID,
			CustomerID: input.CustomerID,
			Type:       TxTypePayment,
			Date:       date,
			Amount:     input.Amount,
			Notes:      input.Notes,
			EnteredBy:  input.EnteredBy,
		}
		entry.BalanceAfter = Apply(tab, entry)

		created, err = tx.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		return tx.UpdateTabBalance(ctx, tab.ID, tab.Version, entry.BalanceAfter, date)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.EnteredBy, "ledger:payment", created)
	return created, nil
}

// Adjust appends an ADJUSTMENT with a stated reason. Negative amounts
// reduce the balance but may never push it below zero.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (*DebtTransaction, error) {
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	var created *DebtTransaction
	err := s.mutate(ctx, input.CustomerID, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		tab, err := tx.GetOpenTabForUpdate(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, ErrTabNotFound) {
				return ErrNoOpenTab
			}
			return err
		}
		if err := ValidateAdjustment(tab, input.Amount, input.Reason); err != nil {
			return err
		}

		entry := DebtTransaction{
			TabID:      tab.ID,
			CustomerID: input.CustomerID,
			Type:       TxTypeAdjustment,
			Date:       date,
			Amount:     input.Amount,
			Reason:     input.Reason,
			Notes:      input.Notes,
			EnteredBy:  input.EnteredBy,
		}
		entry.BalanceAfter = Apply(tab, entry)

		created, err = tx.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		return tx.UpdateTabBalance(ctx, tab.ID, tab.Version, entry.BalanceAfter, date)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.EnteredBy, "ledger:adjustment", created)
	return created, nil
}

// MarkPaid settles and closes the customer's open tab. A remaining
// balance is cleared by an implicit exact final payment, or by the
// caller-supplied one, which must zero the tab for the closure to stand.
func (s *Service) MarkPaid(ctx context.Context, input MarkPaidInput) (*DebtTab, error) {
	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	var closed *DebtTab
	var finalPayment *DebtTransaction
	err := s.mutate(ctx, input.CustomerID, input.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		tab, err := tx.GetOpenTabForUpdate(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, ErrTabNotFound) {
				return ErrNoOpenTab
			}
			return err
		}

		amount, needed, err := SettlementPayment(tab, input.FinalPayment)
		if err != nil {
			return err
		}
		version := tab.Version
		if needed {
			entry := DebtTransaction{
				TabID:      tab.ID,
				CustomerID: input.CustomerID,
				Type:       TxTypePayment,
				Date:       date,
				Amount:     amount,
				Notes:      input.Notes,
				EnteredBy:  input.EnteredBy,
			}
			entry.BalanceAfter = Apply(tab, entry)
			finalPayment, err = tx.InsertTransaction(ctx, entry)
			if err != nil {
				return err
			}
			tab.TotalBalance = entry.BalanceAfter
			if err := tx.UpdateTabBalance(ctx, tab.ID, version, entry.BalanceAfter, date); err != nil {
				return err
			}
			version++
		}
		if tab.TotalBalance > Epsilon {
			return fmt.Errorf("%w: balance %.2f must be zero to close", ErrValidation, tab.TotalBalance)
		}
		if err := Close(tab, date); err != nil {
			return err
		}
		if err := tx.CloseTab(ctx, tab.ID, version, date); err != nil {
			return err
		}
		closed = tab
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finalPayment != nil {
		s.recordAudit(ctx, input.EnteredBy, "ledger:final-payment", finalPayment)
	}
	if s.audit != nil && closed != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.EnteredBy,
			Action:   "ledger:mark-paid",
			Entity:   "debt_tab",
			EntityID: fmt.Sprintf("%d", closed.ID),
			Meta:     map[string]any{"customer_id": closed.CustomerID},
		})
	}
	return closed, nil
}

// GetCustomerDebt returns the customer's live tab, or nil when every tab
// is settled. Reads never take the per-customer section.
func (s *Service) GetCustomerDebt(ctx context.Context, customerID int64) (*DebtTab, error) {
	tab, err := s.repo.GetOpenTab(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrTabNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return tab, nil
}

// GetCustomerHistory returns every tab and transaction for the customer
// in ledger order.
func (s *Service) GetCustomerHistory(ctx context.Context, customerID int64) (*CustomerHistory, error) {
	tabs, err := s.repo.ListTabs(ctx, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListCustomerTransactions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &CustomerHistory{CustomerID: customerID, Tabs: tabs, Transactions: txs}, nil
}

// ListTransactions returns a filtered, paginated slice of the ledger.
func (s *Service) ListTransactions(ctx context.Context, filter ListFilter) ([]DebtTransaction, shared.Pagination, error) {
	if filter.DateFrom.After(filter.DateTo) && !filter.DateTo.IsZero() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: date range inverted", ErrValidation)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page = page.Page
	filter.PerPage = page.PerPage
	txs, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
