package payment

import (
	"time"

	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/money"
)

type PaymentRecorded struct {
	ReservationID reservation.ID
	PaymentID     ID
	Amount        money.Money
	Method        Method
	Status        Status
	Remaining     money.Money
	At            time.Time
}

func (e PaymentRecorded) EventName() string     { return "payment.recorded" }
func (e PaymentRecorded) AggregateID() string   { return string(e.ReservationID) }
func (e PaymentRecorded) OccurredAt() time.Time { return e.At }

type PaymentSettled struct {
	ReservationID reservation.ID
	PaymentID     ID
	Status        Status
	TransactionID string
	Remaining     money.Money
	At            time.Time
}

func (e PaymentSettled) EventName() string     { return "payment.settled" }
func (e PaymentSettled) AggregateID() string   { return string(e.ReservationID) }
func (e PaymentSettled) OccurredAt() time.Time { return e.At }

// RefundDue instructs the payment collaborator to return money after a cancellation.
type RefundDue struct {
	ReservationID reservation.ID
	Amount        money.Money
	At            time.Time
}

func (e RefundDue) EventName() string     { return "payment.refund_due" }
func (e RefundDue) AggregateID() string   { return string(e.ReservationID) }
func (e RefundDue) OccurredAt() time.Time { return e.At }

type RefundRecorded struct {
	ReservationID reservation.ID
	PaymentID     ID
	RefundID      RefundID
	Amount        money.Money
	Kind          RefundKind
	TotalRefunded money.Money
	At            time.Time
}

func (e RefundRecorded) EventName() string     { return "payment.refunded" }
func (e RefundRecorded) AggregateID() string   { return string(e.ReservationID) }
func (e RefundRecorded) OccurredAt() time.Time { return e.At }
