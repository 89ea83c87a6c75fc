package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain/shared/money"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func usd(v int64) money.Money { return money.Must(v, "USD") }

func pay(t *testing.T, a *Account, id ID, amount int64, status Status) *Payment {
	t.Helper()
	p, err := a.RecordPayment(RecordParams{ID: id, Amount: usd(amount), Method: MethodCard, Status: status, Now: now})
	require.NoError(t, err)
	return p
}

func TestRecordPaymentExceedsBalance(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	pay(t, a, "p1", 5000, StatusCompleted)
	assert.Equal(t, usd(5000), a.Remaining())

	_, err := a.RecordPayment(RecordParams{ID: "p2", Amount: usd(6000), Method: MethodCard, Now: now})
	assert.ErrorIs(t, err, ErrExceedsBalance)
	assert.Equal(t, usd(5000), a.Collected)

	pay(t, a, "p3", 5000, StatusCompleted)
	assert.True(t, a.FullyPaid())
	assert.True(t, a.Remaining().IsZero())
}

func TestRecordPaymentValidation(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	_, err := a.RecordPayment(RecordParams{ID: "p", Amount: usd(0), Now: now})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = a.RecordPayment(RecordParams{ID: "p", Amount: money.Must(10, "EUR"), Now: now})
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
	_, err = a.RecordPayment(RecordParams{ID: "p", Amount: usd(10), Status: StatusRefunded, Now: now})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPendingPaymentBlocksAnother(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 4000, StatusPending)
	assert.Equal(t, usd(6000), a.Remaining())
	assert.True(t, a.Collected.IsZero())

	_, err := a.RecordPayment(RecordParams{ID: "p2", Amount: usd(1000), Now: now})
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	require.NoError(t, a.Settle(p, true, "tx-1", now))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "tx-1", p.TransactionID)
	assert.Equal(t, usd(4000), a.Collected)
	assert.Empty(t, a.PendingPaymentID)

	assert.ErrorIs(t, a.Settle(p, true, "", now), ErrInvalidTransition)
	pay(t, a, "p2", 1000, StatusCompleted)
}

func TestFailedSettlementFreesBalance(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 10000, StatusPending)
	require.NoError(t, a.Settle(p, false, "", now))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, usd(10000), a.Remaining())
	pay(t, a, "p2", 10000, StatusCompleted)
}

func TestRefundsNeedOpening(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 10000, StatusCompleted)
	_, err := a.RecordRefund(p, RefundParams{ID: "r1", Amount: usd(10000), Kind: RefundFull, Now: now})
	assert.ErrorIs(t, err, ErrRefundsClosed)
}

func refundsDue(a *Account) []money.Money {
	var out []money.Money
	for _, ev := range a.PendingEvents() {
		if due, ok := ev.(RefundDue); ok {
			out = append(out, due.Amount)
		}
	}
	return out
}

func TestOpenRefundsOwesOnlyCollected(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	pay(t, a, "p1", 3000, StatusCompleted)
	require.NoError(t, a.OpenRefunds(usd(10000), now))
	assert.Equal(t, usd(10000), *a.RefundCap)
	assert.Equal(t, usd(3000), a.RefundOwed())
	assert.Equal(t, usd(3000), a.RefundableLeft())
	assert.ErrorIs(t, a.OpenRefunds(usd(1), now), ErrInvalidTransition)
	assert.Equal(t, []money.Money{usd(3000)}, refundsDue(a))
}

func TestSettleAfterRefundsOpenedIsRefundable(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 10000, StatusPending)
	require.NoError(t, a.OpenRefunds(usd(10000), now))
	assert.True(t, a.RefundableLeft().IsZero())
	assert.Empty(t, refundsDue(a))

	require.NoError(t, a.Settle(p, true, "tx-1", now))
	assert.Equal(t, usd(10000), a.RefundableLeft())
	assert.Equal(t, []money.Money{usd(10000)}, refundsDue(a))

	_, err := a.RecordRefund(p, RefundParams{ID: "r1", Amount: usd(10000), Kind: RefundFull, Now: now})
	require.NoError(t, err)
	assert.True(t, a.NetCollected().IsZero())
}

func TestSettleAfterPartialCapOwesFraction(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	pay(t, a, "p1", 2000, StatusCompleted)
	p := pay(t, a, "p2", 8000, StatusPending)
	require.NoError(t, a.OpenRefunds(usd(5000), now))
	assert.Equal(t, usd(2000), a.RefundableLeft())

	require.NoError(t, a.Settle(p, true, "", now))
	assert.Equal(t, usd(5000), a.RefundableLeft())
	assert.Equal(t, []money.Money{usd(2000), usd(3000)}, refundsDue(a))
}

func TestRecordRefundKinds(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 10000, StatusCompleted)
	require.NoError(t, a.OpenRefunds(usd(10000), now))

	_, err := a.RecordRefund(p, RefundParams{ID: "r", Amount: usd(4000), Kind: RefundFull, Now: now})
	assert.ErrorIs(t, err, ErrRefundKindMismatch)
	_, err = a.RecordRefund(p, RefundParams{ID: "r", Amount: usd(10000), Kind: RefundPartial, Now: now})
	assert.ErrorIs(t, err, ErrRefundKindMismatch)

	r, err := a.RecordRefund(p, RefundParams{ID: "r1", Amount: usd(4000), Kind: RefundPartial, Reason: " storm ", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "storm", r.Reason)
	assert.Equal(t, StatusPartiallyRefunded, p.Status)
	assert.Equal(t, usd(6000), p.Unrefunded())

	_, err = a.RecordRefund(p, RefundParams{ID: "r2", Amount: usd(7000), Kind: RefundPartial, Now: now})
	assert.ErrorIs(t, err, ErrExceedsRefundCap)

	_, err = a.RecordRefund(p, RefundParams{ID: "r3", Amount: usd(6000), Kind: RefundPartial, Now: now})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)
	assert.True(t, a.NetCollected().IsZero())

	_, err = a.RecordRefund(p, RefundParams{ID: "r4", Amount: usd(1), Kind: RefundPartial, Now: now})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordRefundBoundedByPolicyCap(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	p := pay(t, a, "p1", 10000, StatusCompleted)
	require.NoError(t, a.OpenRefunds(usd(5000), now))

	_, err := a.RecordRefund(p, RefundParams{ID: "r1", Amount: usd(10000), Kind: RefundFull, Now: now})
	assert.ErrorIs(t, err, ErrExceedsRefundCap)

	_, err = a.RecordRefund(p, RefundParams{ID: "r2", Amount: usd(5000), Kind: RefundPartial, Now: now})
	require.NoError(t, err)
	assert.True(t, a.RefundableLeft().IsZero())
}

func TestLedgerConservation(t *testing.T) {
	a := OpenAccount("res-1", usd(9999), now)
	var payments []*Payment
	for i, amount := range []int64{3333, 3333, 3333, 1} {
		p, err := a.RecordPayment(RecordParams{ID: ID(string(rune('a' + i))), Amount: usd(amount), Now: now})
		if err != nil {
			assert.ErrorIs(t, err, ErrExceedsBalance)
			continue
		}
		payments = append(payments, p)
	}
	require.NoError(t, a.OpenRefunds(usd(9999), now))
	for i, p := range payments {
		_, err := a.RecordRefund(p, RefundParams{ID: RefundID(p.ID), Amount: usd(1000 * int64(i+1)), Kind: RefundPartial, Now: now})
		require.NoError(t, err)
	}

	var paid, refunded int64
	for _, p := range payments {
		paid += p.Amount.Amount
		refunded += p.RefundedAmount.Amount
	}
	assert.LessOrEqual(t, paid-refunded, a.Total.Amount)
	assert.GreaterOrEqual(t, paid-refunded, int64(0))
	assert.Equal(t, a.NetCollected().Amount, paid-refunded)
}

func TestAccountSnapshotRoundTrip(t *testing.T) {
	a := OpenAccount("res-1", usd(10000), now)
	pay(t, a, "p1", 2000, StatusPending)
	require.NoError(t, a.OpenRefunds(usd(0), now))
	a.Version = 7

	got, err := DecodeAccount(EncodeAccount(a))
	require.NoError(t, err)
	assert.Equal(t, a.Pending, got.Pending)
	assert.Equal(t, a.PendingPaymentID, got.PendingPaymentID)
	require.NotNil(t, got.RefundCap)
	assert.True(t, got.RefundCap.IsZero())
	assert.Equal(t, int64(7), got.Version)
}
