package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/listahan/listahan/internal/shared"
)

// memoryRepo implements RepositoryPort and TxRepository over maps. WithTx
// serialises callers and restores the prior state when fn fails, matching
// the rollback the store gives the service.
type memoryRepo struct {
	mu        sync.Mutex
	tabs      map[int64]DebtTab
	txs       []DebtTransaction
	nextTabID int64
	nextTxID  int64

	// beforeTx, when set, runs inside WithTx while the caller still holds
	// the per-customer section. Tests use it to park one writer.
	beforeTx func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tabs: make(map[int64]DebtTab)}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.beforeTx != nil {
		m.beforeTx()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapTabs := make(map[int64]DebtTab, len(m.tabs))
	for id, tab := range m.tabs {
		snapTabs[id] = tab
	}
	snapTxs := append([]DebtTransaction(nil), m.txs...)
	snapTabID, snapTxID := m.nextTabID, m.nextTxID

	if err := fn(ctx, (*memoryTx)(m)); err != nil {
		m.tabs = snapTabs
		m.txs = snapTxs
		m.nextTabID, m.nextTxID = snapTabID, snapTxID
		return err
	}
	return nil
}

func (m *memoryRepo) openTabLocked(customerID int64) (DebtTab, bool) {
	for _, tab := range m.tabs {
		if tab.CustomerID == customerID && tab.Status == TabStatusOpen {
			return tab, true
		}
	}
	return DebtTab{}, false
}

func (m *memoryRepo) GetOpenTab(_ context.Context, customerID int64) (*DebtTab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, ok := m.openTabLocked(customerID)
	if !ok {
		return nil, ErrTabNotFound
	}
	return &tab, nil
}

func (m *memoryRepo) ListTabs(_ context.Context, customerID int64) ([]DebtTab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DebtTab
	for _, tab := range m.tabs {
		if tab.CustomerID == customerID {
			out = append(out, tab)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListCustomerTransactions(_ context.Context, customerID int64) ([]DebtTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DebtTransaction
	for _, tx := range m.txs {
		if tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListTransactions(_ context.Context, filter ListFilter) ([]DebtTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []DebtTransaction
	for _, tx := range m.txs {
		if filter.CustomerID != 0 && tx.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.TabStatus != "" {
			if tab, ok := m.tabs[tx.TabID]; !ok || tab.Status != filter.TabStatus {
				continue
			}
		}
		if !filter.DateFrom.IsZero() && tx.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && tx.Date.After(filter.DateTo) {
			continue
		}
		matched = append(matched, tx)
	}
	total := len(matched)
	offset := (filter.Page - 1) * filter.PerPage
	if offset >= total {
		return nil, total, nil
	}
	end := offset + filter.PerPage
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// memoryTx is memoryRepo acting as the in-transaction view. The outer
// mutex is already held when its methods run.
type memoryTx memoryRepo

func (m *memoryTx) GetOpenTabForUpdate(_ context.Context, customerID int64) (*DebtTab, error) {
	tab, ok := (*memoryRepo)(m).openTabLocked(customerID)
	if !ok {
		return nil, ErrTabNotFound
	}
	return &tab, nil
}

func (m *memoryTx) CreateTab(_ context.Context, tab DebtTab) (*DebtTab, error) {
	m.nextTabID++
	tab.ID = m.nextTabID
	tab.Version = 1
	m.tabs[tab.ID] = tab
	return &tab, nil
}

func (m *memoryTx) InsertTransaction(_ context.Context, tx DebtTransaction) (*DebtTransaction, error) {
	m.nextTxID++
	tx.ID = m.nextTxID
	tx.Ref = uuid.NewString()
	tx.CreatedAt = time.Now()
	var maxSeq int64
	for _, other := range m.txs {
		if other.TabID == tx.TabID && other.Seq > maxSeq {
			maxSeq = other.Seq
		}
	}
	tx.Seq = maxSeq + 1
	m.txs = append(m.txs, tx)
	return &tx, nil
}

func (m *memoryTx) UpdateTabBalance(_ context.Context, tabID, version int64, balance float64, at time.Time) error {
	tab, ok := m.tabs[tabID]
	if !ok || tab.Version != version {
		return ErrConcurrentModification
	}
	tab.TotalBalance = balance
	tab.Version++
	tab.UpdatedAt = at
	m.tabs[tabID] = tab
	return nil
}

func (m *memoryTx) CloseTab(_ context.Context, tabID, version int64, at time.Time) error {
	tab, ok := m.tabs[tabID]
	if !ok || tab.Version != version {
		return ErrConcurrentModification
	}
	tab.Status = TabStatusClosed
	tab.TotalBalance = 0
	tab.ClosedAt = &at
	tab.Version++
	tab.UpdatedAt = at
	m.tabs[tabID] = tab
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *memoryAudit, *memoryIdempotency) {
	audit := &memoryAudit{}
	idem := newMemoryIdempotency()
	svc := NewService(repo, audit, idem, nil, ServiceConfig{LockWait: time.Second})
	return svc, audit, idem
}

func TestChargeOpensTab(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit, _ := newTestService(repo)
	ctx := context.Background()

	tx, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25, EnteredBy: 1})
	require.NoError(t, err)
	require.Equal(t, 250.0, tx.BalanceAfter)
	require.Equal(t, int64(1), tx.Seq)
	require.NotEmpty(t, tx.Ref)

	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, tab)
	require.Equal(t, TabStatusOpen, tab.Status)
	require.Equal(t, 250.0, tab.TotalBalance)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger:charge", audit.logs[0].Action)
}

func TestChargeAccumulates(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25})
	require.NoError(t, err)
	second, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 4, UnitPrice: 30})
	require.NoError(t, err)

	require.Equal(t, first.TabID, second.TabID)
	require.Equal(t, int64(2), second.Seq)
	require.Equal(t, 370.0, second.BalanceAfter)
}

func TestPaymentReducesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25})
	require.NoError(t, err)

	tx, err := svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)
	require.Equal(t, 150.0, tx.BalanceAfter)

	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 150.0, tab.TotalBalance)
}

func TestOverpaymentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 200})
	require.ErrorIs(t, err, ErrOverpayment)

	// Nothing was written for the rejected payment.
	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 150.0, tab.TotalBalance)
	txs, err := repo.ListCustomerTransactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Len(t, audit.logs, 2)
}

func TestAdjustmentClearsBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	tx, err := svc.Adjust(ctx, AdjustmentInput{CustomerID: 7, Amount: -150, Reason: "goodwill"})
	require.NoError(t, err)
	require.Equal(t, 0.0, tx.BalanceAfter)

	// The tab stays open at zero; only mark-paid closes it.
	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, TabStatusOpen, tab.Status)
	require.Equal(t, 0.0, tab.TotalBalance)
}

func TestAdjustmentRequiresReason(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustmentInput{CustomerID: 7, Amount: -10})
	require.ErrorIs(t, err, ErrMissingReason)

	_, err = svc.Adjust(ctx, AdjustmentInput{CustomerID: 7, Amount: -100, Reason: "recount"})
	require.ErrorIs(t, err, ErrNegativeBalance)
}

func TestPaymentWithoutTab(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.Pay(context.Background(), PaymentInput{CustomerID: 9, Amount: 50})
	require.ErrorIs(t, err, ErrNoOpenTab)
	_, err = svc.Adjust(context.Background(), AdjustmentInput{CustomerID: 9, Amount: -50, Reason: "none"})
	require.ErrorIs(t, err, ErrNoOpenTab)
}

func TestMarkPaidSettlesAndCloses(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 10, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	closed, err := svc.MarkPaid(ctx, MarkPaidInput{CustomerID: 7})
	require.NoError(t, err)
	require.Equal(t, TabStatusClosed, closed.Status)
	require.Equal(t, 0.0, closed.TotalBalance)
	require.NotNil(t, closed.ClosedAt)

	// An implicit settlement payment for the remainder was appended.
	txs, err := repo.ListCustomerTransactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	final := txs[2]
	require.Equal(t, TxTypePayment, final.Type)
	require.Equal(t, 150.0, final.Amount)
	require.Equal(t, 0.0, final.BalanceAfter)

	// No live tab remains; the next charge opens a fresh one.
	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, tab)

	next, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 1, UnitPrice: 25})
	require.NoError(t, err)
	require.NotEqual(t, first.TabID, next.TabID)
	require.Equal(t, int64(1), next.Seq)
	require.Equal(t, 25.0, next.BalanceAfter)
}

func TestMarkPaidZeroBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 4, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	closed, err := svc.MarkPaid(ctx, MarkPaidInput{CustomerID: 7})
	require.NoError(t, err)
	require.Equal(t, TabStatusClosed, closed.Status)

	// Already settled, so no extra payment row.
	txs, err := repo.ListCustomerTransactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestMarkPaidPartialFinalPaymentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 6, UnitPrice: 25})
	require.NoError(t, err)

	partial := 100.0
	_, err = svc.MarkPaid(ctx, MarkPaidInput{CustomerID: 7, FinalPayment: &partial})
	require.ErrorIs(t, err, ErrValidation)

	// The rejected closure rolled back, final payment included.
	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, TabStatusOpen, tab.Status)
	require.Equal(t, 150.0, tab.TotalBalance)
	txs, err := repo.ListCustomerTransactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestMarkPaidWithoutTab(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.MarkPaid(context.Background(), MarkPaidInput{CustomerID: 3})
	require.ErrorIs(t, err, ErrNoOpenTab)
}

func TestConcurrentPaymentsSerialised(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 6, UnitPrice: 25})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 100})
		}(i)
	}
	wg.Wait()

	// The section admits one writer at a time, so the second payment saw
	// the reduced balance and was rejected as an overpayment.
	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrOverpayment)
			failed++
		}
	}
	require.Equal(t, 1, failed)

	tab, err := svc.GetCustomerDebt(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 50.0, tab.TotalBalance)
}

func TestLockWaitExceeded(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, newMemoryIdempotency(), nil, ServiceConfig{LockWait: 50 * time.Millisecond})
	ctx := context.Background()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	repo.beforeTx = func() {
		close(entered)
		<-proceed
		repo.beforeTx = nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 1, UnitPrice: 25})
		done <- err
	}()

	<-entered
	_, err := svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 10})
	require.ErrorIs(t, err, ErrConcurrentModification)

	close(proceed)
	require.NoError(t, <-done)
}

func TestIdempotencyKeyReplayRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	key := uuid.NewString()
	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25, IdempotencyKey: key})
	require.NoError(t, err)

	_, err = svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25, IdempotencyKey: key})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	txs, err := repo.ListCustomerTransactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25})
	require.NoError(t, err)

	key := uuid.NewString()
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 500, IdempotencyKey: key})
	require.ErrorIs(t, err, ErrOverpayment)

	// The failed attempt freed its key, so the corrected retry goes through.
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 50, IdempotencyKey: key})
	require.NoError(t, err)
}

func TestIdempotencyKeyMustBeUUID(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.Charge(context.Background(), ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25, IdempotencyKey: "not-a-uuid"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCustomerHistorySpansTabs(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 4, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, MarkPaidInput{CustomerID: 7})
	require.NoError(t, err)
	_, err = svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 2, UnitPrice: 25})
	require.NoError(t, err)

	history, err := svc.GetCustomerHistory(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history.Tabs, 2)
	require.Len(t, history.Transactions, 3)

	// The stored balance_after chain replays cleanly per tab.
	for _, tab := range history.Tabs {
		var chain []DebtTransaction
		for _, tx := range history.Transactions {
			if tx.TabID == tab.ID {
				chain = append(chain, tx)
			}
		}
		_, err := Reconstruct(chain)
		require.NoError(t, err)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Charge(ctx, ChargeInput{CustomerID: 7, Containers: 4, UnitPrice: 25})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, PaymentInput{CustomerID: 7, Amount: 40})
	require.NoError(t, err)
	_, err = svc.Charge(ctx, ChargeInput{CustomerID: 8, Containers: 1, UnitPrice: 25})
	require.NoError(t, err)

	txs, page, err := svc.ListTransactions(ctx, ListFilter{CustomerID: 7})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, 2, page.Total)

	txs, page, err = svc.ListTransactions(ctx, ListFilter{Type: TxTypePayment})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, TxTypePayment, txs[0].Type)

	txs, page, err = svc.ListTransactions(ctx, ListFilter{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)

	_, _, err = svc.ListTransactions(ctx, ListFilter{
		DateFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrValidation)
}
