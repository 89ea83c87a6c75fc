package payment

import (
	"fmt"
	"time"

	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/money"
)

type AccountSnapshot struct {
	ReservationID    string    `json:"reservation_id" bson:"_id"`
	Currency         string    `json:"currency" bson:"currency"`
	Total            int64     `json:"total" bson:"total"`
	Collected        int64     `json:"collected" bson:"collected"`
	Pending          int64     `json:"pending" bson:"pending"`
	PendingPaymentID string    `json:"pending_payment_id,omitempty" bson:"pending_payment_id,omitempty"`
	Refunded         int64     `json:"refunded" bson:"refunded"`
	RefundCap        *int64    `json:"refund_cap,omitempty" bson:"refund_cap,omitempty"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
	Version          int64     `json:"version" bson:"version"`
}

func EncodeAccount(a *Account) AccountSnapshot {
	s := AccountSnapshot{
		ReservationID:    string(a.ReservationID),
		Currency:         a.Total.Currency,
		Total:            a.Total.Amount,
		Collected:        a.Collected.Amount,
		Pending:          a.Pending.Amount,
		PendingPaymentID: string(a.PendingPaymentID),
		Refunded:         a.Refunded.Amount,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
		Version:          a.Version,
	}
	if a.RefundCap != nil {
		v := a.RefundCap.Amount
		s.RefundCap = &v
	}
	return s
}

func DecodeAccount(s AccountSnapshot) (*Account, error) {
	total, err := money.New(s.Total, s.Currency)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", s.ReservationID, err)
	}
	a := &Account{
		ReservationID:    reservation.ID(s.ReservationID),
		Total:            total,
		Collected:        money.Money{Amount: s.Collected, Currency: s.Currency},
		Pending:          money.Money{Amount: s.Pending, Currency: s.Currency},
		PendingPaymentID: ID(s.PendingPaymentID),
		Refunded:         money.Money{Amount: s.Refunded, Currency: s.Currency},
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
		Version:          s.Version,
	}
	if s.RefundCap != nil {
		c := money.Money{Amount: *s.RefundCap, Currency: s.Currency}
		a.RefundCap = &c
	}
	return a, nil
}

type PaymentSnapshot struct {
	ID             string    `json:"id" bson:"_id"`
	ReservationID  string    `json:"reservation_id" bson:"reservation_id"`
	Amount         int64     `json:"amount" bson:"amount"`
	Currency       string    `json:"currency" bson:"currency"`
	Method         string    `json:"method" bson:"method"`
	Status         string    `json:"status" bson:"status"`
	TransactionID  string    `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	PaidAt         time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	RefundedAmount int64     `json:"refunded_amount" bson:"refunded_amount"`
	RefundedAt     time.Time `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
	Version        int64     `json:"version" bson:"version"`
}

func EncodePayment(p *Payment) PaymentSnapshot {
	return PaymentSnapshot{
		ID:             string(p.ID),
		ReservationID:  string(p.ReservationID),
		Amount:         p.Amount.Amount,
		Currency:       p.Amount.Currency,
		Method:         string(p.Method),
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		PaidAt:         p.PaidAt.UTC(),
		RefundedAmount: p.RefundedAmount.Amount,
		RefundedAt:     p.RefundedAt.UTC(),
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
		Version:        p.Version,
	}
}

func DecodePayment(s PaymentSnapshot) (*Payment, error) {
	status := Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("payment %s: unknown status %q", s.ID, s.Status)
	}
	amount, err := money.New(s.Amount, s.Currency)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", s.ID, err)
	}
	return &Payment{
		ID:             ID(s.ID),
		ReservationID:  reservation.ID(s.ReservationID),
		Amount:         amount,
		Method:         Method(s.Method),
		Status:         status,
		TransactionID:  s.TransactionID,
		PaidAt:         s.PaidAt.UTC(),
		RefundedAmount: money.Money{Amount: s.RefundedAmount, Currency: s.Currency},
		RefundedAt:     s.RefundedAt.UTC(),
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
		Version:        s.Version,
	}, nil
}

type RefundSnapshot struct {
	ID            string    `json:"id" bson:"_id"`
	PaymentID     string    `json:"payment_id" bson:"payment_id"`
	ReservationID string    `json:"reservation_id" bson:"reservation_id"`
	Amount        int64     `json:"amount" bson:"amount"`
	Currency      string    `json:"currency" bson:"currency"`
	Kind          string    `json:"kind" bson:"kind"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

func EncodeRefund(r Refund) RefundSnapshot {
	return RefundSnapshot{
		ID:            string(r.ID),
		PaymentID:     string(r.PaymentID),
		ReservationID: string(r.ReservationID),
		Amount:        r.Amount.Amount,
		Currency:      r.Amount.Currency,
		Kind:          string(r.Kind),
		Reason:        r.Reason,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func DecodeRefund(s RefundSnapshot) Refund {
	return Refund{
		ID:            RefundID(s.ID),
		PaymentID:     ID(s.PaymentID),
		ReservationID: reservation.ID(s.ReservationID),
		Amount:        money.Money{Amount: s.Amount, Currency: s.Currency},
		Kind:          RefundKind(s.Kind),
		Reason:        s.Reason,
		CreatedAt:     s.CreatedAt.UTC(),
	}
}
