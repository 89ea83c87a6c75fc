package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/money"
)

var (
	ErrExceedsBalance     = errors.New("payment: amount exceeds remaining balance")
	ErrExceedsRefundCap   = errors.New("payment: refund exceeds refundable amount")
	ErrPaymentInProgress  = errors.New("payment: another payment is still pending")
	ErrNotFound           = errors.New("payment: not found")
	ErrAccountNotFound    = errors.New("payment: account not found")
	ErrInvalidAmount      = errors.New("payment: amount must be positive")
	ErrInvalidTransition  = errors.New("payment: invalid status transition")
	ErrRefundKindMismatch = errors.New("payment: refund kind does not match amount")
	ErrRefundsClosed      = errors.New("payment: refunds need a cancelled reservation")
)

// Status of a single payment.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

func Statuses() []Status {
	return []Status{StatusPending, StatusCompleted, StatusFailed, StatusRefunded, StatusPartiallyRefunded}
}

func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusRefunded:
		return "Refunded"
	case StatusPartiallyRefunded:
		return "Partially refunded"
	}
	return string(s)
}

func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal payments no longer block a new one.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Method is how the guest paid. The gateway itself lives outside the engine.
type Method string

const (
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodWallet       Method = "WALLET"
	MethodCash         Method = "CASH"
)

func Methods() []Method {
	return []Method{MethodCard, MethodBankTransfer, MethodWallet, MethodCash}
}

func (m Method) Label() string {
	switch m {
	case MethodCard:
		return "Card"
	case MethodBankTransfer:
		return "Bank transfer"
	case MethodWallet:
		return "Wallet"
	case MethodCash:
		return "Cash"
	}
	return string(m)
}

func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Methods() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("payment: unknown method %q", raw)
}

// RefundKind is chosen by the caller; the ledger never infers it from the amount.
type RefundKind string

const (
	RefundFull    RefundKind = "FULL"
	RefundPartial RefundKind = "PARTIAL"
)

func (k RefundKind) Label() string {
	switch k {
	case RefundFull:
		return "Full"
	case RefundPartial:
		return "Partial"
	}
	return string(k)
}

func RefundKinds() []RefundKind {
	return []RefundKind{RefundFull, RefundPartial}
}

type ID string

type RefundID string

type Payment struct {
	ID             ID
	ReservationID  reservation.ID
	Amount         money.Money
	Method         Method
	Status         Status
	TransactionID  string
	PaidAt         time.Time
	RefundedAmount money.Money
	RefundedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

// Unrefunded is what can still be returned from this payment.
func (p *Payment) Unrefunded() money.Money {
	out, err := p.Amount.Sub(p.RefundedAmount)
	if err != nil || out.Amount < 0 {
		return money.Zero(p.Amount.Currency)
	}
	return out
}

// Refundable payments have settled and still hold money.
func (p *Payment) Refundable() bool {
	return p.Status == StatusCompleted || p.Status == StatusPartiallyRefunded
}

// Refund is an append-only ledger entry against one payment.
type Refund struct {
	ID            RefundID
	PaymentID     ID
	ReservationID reservation.ID
	Amount        money.Money
	Kind          RefundKind
	Reason        string
	CreatedAt     time.Time
}

// Repository persists accounts, payments and refunds. SaveAccount and SavePayment compare-and-swap on
// Version and return concurrency.ErrConcurrentUpdate on mismatch.
type Repository interface {
	Account(ctx context.Context, id reservation.ID) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	PaymentByID(ctx context.Context, id ID) (*Payment, error)
	ListPayments(ctx context.Context, id reservation.ID) ([]*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error
	AddRefund(ctx context.Context, r Refund) error
	ListRefunds(ctx context.Context, id reservation.ID) ([]Refund, error)
}
