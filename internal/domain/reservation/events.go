package reservation

import (
	"time"

	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/money"
)

type ReservationCreated struct {
	ReservationID ID
	ItemID        inventory.ItemID
	GuestID       string
	HostID        inventory.HostID
	Span          string
	PartySize     int
	TotalPrice    money.Money
	At            time.Time
}

func (e ReservationCreated) EventName() string     { return "reservation.created" }
func (e ReservationCreated) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationCreated) OccurredAt() time.Time { return e.At }

type ReservationConfirmed struct {
	ReservationID ID
	ItemID        inventory.ItemID
	At            time.Time
}

func (e ReservationConfirmed) EventName() string     { return "reservation.confirmed" }
func (e ReservationConfirmed) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationConfirmed) OccurredAt() time.Time { return e.At }

type ReservationPaid struct {
	ReservationID ID
	Total         money.Money
	At            time.Time
}

func (e ReservationPaid) EventName() string     { return "reservation.paid" }
func (e ReservationPaid) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationPaid) OccurredAt() time.Time { return e.At }

type ReservationCancelled struct {
	ReservationID ID
	By            Actor
	Reason        string
	RefundAmount  money.Money
	At            time.Time
}

func (e ReservationCancelled) EventName() string     { return "reservation.cancelled" }
func (e ReservationCancelled) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationCancelled) OccurredAt() time.Time { return e.At }

type ReservationExpired struct {
	ReservationID ID
	Deadline      time.Time
	At            time.Time
}

func (e ReservationExpired) EventName() string     { return "reservation.expired" }
func (e ReservationExpired) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationExpired) OccurredAt() time.Time { return e.At }

type ReservationCompleted struct {
	ReservationID ID
	At            time.Time
}

func (e ReservationCompleted) EventName() string     { return "reservation.completed" }
func (e ReservationCompleted) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationCompleted) OccurredAt() time.Time { return e.At }

type ReservationRefunded struct {
	ReservationID ID
	Status        Status
	Refunded      money.Money
	At            time.Time
}

func (e ReservationRefunded) EventName() string     { return "reservation.refunded" }
func (e ReservationRefunded) AggregateID() string   { return string(e.ReservationID) }
func (e ReservationRefunded) OccurredAt() time.Time { return e.At }
