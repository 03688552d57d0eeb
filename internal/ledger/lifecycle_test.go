package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanAccept(t *testing.T) {
	open := openTab(100)
	require.NoError(t, CanAccept(open, TxTypeCharge))
	require.NoError(t, CanAccept(open, TxTypePayment))
	require.NoError(t, CanAccept(open, TxTypeAdjustment))

	closed := openTab(0)
	closed.Status = TabStatusClosed
	require.NoError(t, CanAccept(closed, TxTypeCharge))
	require.ErrorIs(t, CanAccept(closed, TxTypePayment), ErrNoOpenTab)

	require.NoError(t, CanAccept(nil, TxTypeCharge))
	require.ErrorIs(t, CanAccept(nil, TxTypeAdjustment), ErrNoOpenTab)
}

func TestSettlementPayment(t *testing.T) {
	tab := openTab(150)

	amount, needed, err := SettlementPayment(tab, nil)
	require.NoError(t, err)
	require.True(t, needed)
	require.Equal(t, 150.0, amount)

	exact := 150.0
	amount, needed, err = SettlementPayment(tab, &exact)
	require.NoError(t, err)
	require.True(t, needed)
	require.Equal(t, 150.0, amount)

	over := 200.0
	_, _, err = SettlementPayment(tab, &over)
	require.ErrorIs(t, err, ErrOverpayment)

	settled := openTab(0)
	_, needed, err = SettlementPayment(settled, nil)
	require.NoError(t, err)
	require.False(t, needed)

	closed := openTab(0)
	closed.Status = TabStatusClosed
	_, _, err = SettlementPayment(closed, nil)
	require.ErrorIs(t, err, ErrNoOpenTab)
}

func TestClose(t *testing.T) {
	now := time.Now()

	tab := openTab(0)
	require.NoError(t, Close(tab, now))
	require.Equal(t, TabStatusClosed, tab.Status)
	require.NotNil(t, tab.ClosedAt)
	require.Equal(t, now, *tab.ClosedAt)

	// Closing is terminal.
	require.ErrorIs(t, Close(tab, now), ErrNoOpenTab)

	outstanding := openTab(25)
	require.ErrorIs(t, Close(outstanding, now), ErrValidation)
	require.Equal(t, TabStatusOpen, outstanding.Status)
}
