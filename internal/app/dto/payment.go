package dto

import (
	"time"

	"staybook/internal/domain/payment"
)

type Payment struct {
	ID             string     `json:"id"`
	ReservationID  string     `json:"reservation_id"`
	Amount         MoneyDTO   `json:"amount"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	RefundedAmount MoneyDTO   `json:"refunded_amount"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    MoneyDTO  `json:"amount"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Balance struct {
	ReservationID  string    `json:"reservation_id"`
	Status         string    `json:"status"`
	Total          MoneyDTO  `json:"total"`
	Collected      MoneyDTO  `json:"collected"`
	Pending        MoneyDTO  `json:"pending"`
	Refunded       MoneyDTO  `json:"refunded"`
	Remaining      MoneyDTO  `json:"remaining"`
	NetCollected   MoneyDTO  `json:"net_collected"`
	RefundCap      *MoneyDTO `json:"refund_cap,omitempty"`
	RefundableLeft MoneyDTO  `json:"refundable_left"`
	Payments       []Payment `json:"payments"`
	Refunds        []Refund  `json:"refunds"`
}

func MapPayment(p *payment.Payment) Payment {
	return Payment{
		ID:             string(p.ID),
		ReservationID:  string(p.ReservationID),
		Amount:         MapMoney(p.Amount),
		Method:         string(p.Method),
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		PaidAt:         optionalTime(p.PaidAt),
		RefundedAmount: MapMoney(p.RefundedAmount),
		RefundedAt:     optionalTime(p.RefundedAt),
		CreatedAt:      p.CreatedAt,
	}
}

func MapRefund(r payment.Refund) Refund {
	return Refund{
		ID:        string(r.ID),
		PaymentID: string(r.PaymentID),
		Amount:    MapMoney(r.Amount),
		Kind:      string(r.Kind),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
}

func MapBalance(status string, a *payment.Account, payments []*payment.Payment, refunds []payment.Refund) Balance {
	out := Balance{
		ReservationID:  string(a.ReservationID),
		Status:         status,
		Total:          MapMoney(a.Total),
		Collected:      MapMoney(a.Collected),
		Pending:        MapMoney(a.Pending),
		Refunded:       MapMoney(a.Refunded),
		Remaining:      MapMoney(a.Remaining()),
		NetCollected:   MapMoney(a.NetCollected()),
		RefundCap:      MapMoneyPtr(a.RefundCap),
		RefundableLeft: MapMoney(a.RefundableLeft()),
		Payments:       make([]Payment, 0, len(payments)),
		Refunds:        make([]Refund, 0, len(refunds)),
	}
	for _, p := range payments {
		out.Payments = append(out.Payments, MapPayment(p))
	}
	for _, r := range refunds {
		out.Refunds = append(out.Refunds, MapRefund(r))
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
