package payment

import (
	"fmt"
	"strings"
	"time"

	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
)

// Account is the per-reservation ledger head. Every payment and refund goes through it, so its
// version serializes ledger writes for one reservation.
type Account struct {
	ReservationID    reservation.ID
	Total            money.Money
	Collected        money.Money
	Pending          money.Money
	PendingPaymentID ID
	Refunded         money.Money
	// RefundCap is the policy entitlement fixed when the reservation is retired; nil while refunds
	// are closed. Only the collected part of it can flow back.
	RefundCap *money.Money
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

func OpenAccount(id reservation.ID, total money.Money, now time.Time) *Account {
	zero := money.Zero(total.Currency)
	return &Account{
		ReservationID: id,
		Total:         total,
		Collected:     zero,
		Pending:       zero,
		Refunded:      zero,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

// Remaining is what can still be recorded: total minus settled and in-flight payments.
func (a *Account) Remaining() money.Money {
	out := a.Total.Amount - a.Collected.Amount - a.Pending.Amount
	if out < 0 {
		out = 0
	}
	return money.Money{Amount: out, Currency: a.Total.Currency}
}

// NetCollected is what the guest has paid in after refunds.
func (a *Account) NetCollected() money.Money {
	return money.Money{Amount: a.Collected.Amount - a.Refunded.Amount, Currency: a.Total.Currency}
}

// FullyPaid is true once settled payments cover the total.
func (a *Account) FullyPaid() bool {
	return a.Collected.Amount >= a.Total.Amount
}

// RefundOwed is the total the guest gets back: the refund cap bounded by what was collected.
func (a *Account) RefundOwed() money.Money {
	if a.RefundCap == nil {
		return money.Zero(a.Total.Currency)
	}
	owed := min(a.RefundCap.Amount, a.Collected.Amount)
	return money.Money{Amount: owed, Currency: a.Total.Currency}
}

// RefundableLeft is the part of RefundOwed not yet paid back.
func (a *Account) RefundableLeft() money.Money {
	left := a.RefundOwed().Amount - a.Refunded.Amount
	if left < 0 {
		left = 0
	}
	return money.Money{Amount: left, Currency: a.Total.Currency}
}

type RecordParams struct {
	ID            ID
	Amount        money.Money
	Method        Method
	TransactionID string
	Status        Status
	Now           time.Time
}

// RecordPayment books a payment against the remaining balance. Only PENDING or COMPLETED payments
// can be recorded; a PENDING one blocks further payments until it settles.
func (a *Account) RecordPayment(p RecordParams) (*Payment, error) {
	if p.Status == "" {
		p.Status = StatusCompleted
	}
	if p.Status != StatusPending && p.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: record as %s", ErrInvalidTransition, p.Status)
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.Amount.Currency != a.Total.Currency {
		return nil, money.ErrCurrencyMismatch
	}
	if a.PendingPaymentID != "" {
		return nil, fmt.Errorf("%w: %s", ErrPaymentInProgress, a.PendingPaymentID)
	}
	remaining := a.Remaining()
	if p.Amount.Amount > remaining.Amount {
		return nil, fmt.Errorf("%w: remaining %s, got %s", ErrExceedsBalance, remaining, p.Amount)
	}

	now := p.Now.UTC()
	pay := &Payment{
		ID:             p.ID,
		ReservationID:  a.ReservationID,
		Amount:         p.Amount,
		Method:         p.Method,
		Status:         p.Status,
		TransactionID:  strings.TrimSpace(p.TransactionID),
		RefundedAmount: money.Zero(p.Amount.Currency),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Status == StatusCompleted {
		pay.PaidAt = now
		a.Collected.Amount += p.Amount.Amount
	} else {
		a.Pending = p.Amount
		a.PendingPaymentID = pay.ID
	}
	a.UpdatedAt = now
	a.Record(PaymentRecorded{
		ReservationID: a.ReservationID,
		PaymentID:     pay.ID,
		Amount:        pay.Amount,
		Method:        pay.Method,
		Status:        pay.Status,
		Remaining:     a.Remaining(),
		At:            now,
	})
	return pay, nil
}

// Settle applies the gateway result to the account's pending payment.
func (a *Account) Settle(p *Payment, succeeded bool, transactionID string, now time.Time) error {
	if p.Status != StatusPending || p.ID != a.PendingPaymentID {
		return fmt.Errorf("%w: settle %s from %s", ErrInvalidTransition, p.ID, p.Status)
	}
	now = now.UTC()
	if tx := strings.TrimSpace(transactionID); tx != "" {
		p.TransactionID = tx
	}
	if succeeded {
		before := a.RefundableLeft()
		p.Status = StatusCompleted
		p.PaidAt = now
		a.Collected.Amount += p.Amount.Amount
		// money landing after the reservation was retired is owed back under the same cap.
		if due := a.RefundableLeft().Amount - before.Amount; due > 0 {
			a.Record(RefundDue{ReservationID: a.ReservationID, Amount: money.Money{Amount: due, Currency: a.Total.Currency}, At: now})
		}
	} else {
		p.Status = StatusFailed
	}
	p.UpdatedAt = now
	a.Pending = money.Zero(a.Total.Currency)
	a.PendingPaymentID = ""
	a.UpdatedAt = now
	a.Record(PaymentSettled{
		ReservationID: a.ReservationID,
		PaymentID:     p.ID,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		Remaining:     a.Remaining(),
		At:            now,
	})
	return nil
}

// OpenRefunds fixes how much of the total may flow back once the reservation is retired. A positive
// refundable amount records a refund instruction for the payment collaborator.
func (a *Account) OpenRefunds(refundCap money.Money, now time.Time) error {
	if refundCap.Currency != a.Total.Currency {
		return money.ErrCurrencyMismatch
	}
	if refundCap.Amount < 0 {
		return money.ErrNegativeAmount
	}
	if a.RefundCap != nil {
		return fmt.Errorf("%w: refunds already opened", ErrInvalidTransition)
	}
	if refundCap.Amount > a.Total.Amount {
		refundCap.Amount = a.Total.Amount
	}
	a.RefundCap = &refundCap
	a.UpdatedAt = now.UTC()
	if due := a.RefundableLeft(); due.IsPositive() {
		a.Record(RefundDue{ReservationID: a.ReservationID, Amount: due, At: a.UpdatedAt})
	}
	return nil
}

type RefundParams struct {
	ID     RefundID
	Amount money.Money
	Kind   RefundKind
	Reason string
	Now    time.Time
}

// RecordRefund returns money from one payment, bounded by both the payment's unrefunded amount and
// the cap fixed at cancellation.
func (a *Account) RecordRefund(p *Payment, r RefundParams) (Refund, error) {
	if a.RefundCap == nil {
		return Refund{}, ErrRefundsClosed
	}
	if p.ReservationID != a.ReservationID {
		return Refund{}, fmt.Errorf("%w: %s belongs to another reservation", ErrNotFound, p.ID)
	}
	if !p.Refundable() {
		return Refund{}, fmt.Errorf("%w: refund %s from %s", ErrInvalidTransition, p.ID, p.Status)
	}
	if !r.Amount.IsPositive() {
		return Refund{}, ErrInvalidAmount
	}
	if r.Amount.Currency != p.Amount.Currency {
		return Refund{}, money.ErrCurrencyMismatch
	}
	switch r.Kind {
	case RefundFull:
		if r.Amount.Amount != p.Amount.Amount {
			return Refund{}, fmt.Errorf("%w: full refund of %s must equal %s", ErrRefundKindMismatch, r.Amount, p.Amount)
		}
	case RefundPartial:
		if r.Amount.Amount >= p.Amount.Amount {
			return Refund{}, fmt.Errorf("%w: partial refund of %s must be below %s", ErrRefundKindMismatch, r.Amount, p.Amount)
		}
	default:
		return Refund{}, fmt.Errorf("%w: unknown kind %q", ErrRefundKindMismatch, r.Kind)
	}
	if unrefunded := p.Unrefunded(); r.Amount.Amount > unrefunded.Amount {
		return Refund{}, fmt.Errorf("%w: payment has %s left", ErrExceedsRefundCap, unrefunded)
	}
	if left := a.RefundableLeft(); r.Amount.Amount > left.Amount {
		return Refund{}, fmt.Errorf("%w: policy allows %s more", ErrExceedsRefundCap, left)
	}

	now := r.Now.UTC()
	p.RefundedAmount.Amount += r.Amount.Amount
	p.RefundedAt = now
	p.UpdatedAt = now
	if p.Unrefunded().IsZero() {
		p.Status = StatusRefunded
	} else {
		p.Status = StatusPartiallyRefunded
	}
	a.Refunded.Amount += r.Amount.Amount
	a.UpdatedAt = now

	refund := Refund{
		ID:            r.ID,
		PaymentID:     p.ID,
		ReservationID: a.ReservationID,
		Amount:        r.Amount,
		Kind:          r.Kind,
		Reason:        strings.TrimSpace(r.Reason),
		CreatedAt:     now,
	}
	a.Record(RefundRecorded{
		ReservationID: a.ReservationID,
		PaymentID:     p.ID,
		RefundID:      refund.ID,
		Amount:        refund.Amount,
		Kind:          refund.Kind,
		TotalRefunded: a.Refunded,
		At:            now,
	})
	return refund, nil
}
