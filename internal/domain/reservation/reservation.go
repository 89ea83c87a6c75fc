package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
)

var (
	ErrInvalidTransition = errors.New("reservation: invalid state transition")
	ErrExpired           = errors.New("reservation: booking deadline elapsed")
	ErrNotFound          = errors.New("reservation: not found")
	ErrInvalidParty      = errors.New("reservation: party size must be positive")
	ErrGuestRequired     = errors.New("reservation: guest id required")
	ErrNotOwner          = errors.New("reservation: actor does not own this reservation")
	ErrInvalidTotal      = errors.New("reservation: total price must be positive")
)

type ID string

// Reservation is the aggregate driven through the booking lifecycle. It never performs I/O; callers
// feed it the calendar and ledger results it needs and persist it afterwards.
type Reservation struct {
	ID           ID
	GuestID      string
	HostID       inventory.HostID
	ItemID       inventory.ItemID
	ItemType     inventory.ItemType
	Span         daterange.Span
	PartySize    int
	Units        uint32
	TotalPrice   money.Money
	Status       Status
	Policy       cancellation.Policy
	Deadline     time.Duration
	StartsAt     time.Time
	EndsAt       time.Time
	ClaimID      availability.ClaimID
	CancelledBy  Actor
	CancelReason string
	RefundAmount money.Money
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Reservation, error)
	ListByGuest(ctx context.Context, guestID string) ([]*Reservation, error)
}

type CreateParams struct {
	ID         ID
	GuestID    string
	Item       inventory.Bookable
	Terms      inventory.Payable
	Span       daterange.Span
	PartySize  int
	TotalPrice money.Money
	ClaimID    availability.ClaimID
	CreatedAt  time.Time
}

// New builds a pending reservation for a claim that has already succeeded.
func New(p CreateParams) (*Reservation, error) {
	if strings.TrimSpace(p.GuestID) == "" {
		return nil, ErrGuestRequired
	}
	if p.PartySize <= 0 {
		return nil, ErrInvalidParty
	}
	if !p.TotalPrice.IsPositive() {
		return nil, ErrInvalidTotal
	}
	if err := p.Item.Validate(p.Span, p.PartySize); err != nil {
		return nil, err
	}
	starts, err := p.Item.StartsAt(p.Span)
	if err != nil {
		return nil, err
	}
	ends, err := p.Item.EndsAt(p.Span)
	if err != nil {
		return nil, err
	}
	now := p.CreatedAt.UTC()
	r := &Reservation{
		ID:           p.ID,
		GuestID:      p.GuestID,
		HostID:       p.Item.HostID(),
		ItemID:       p.Item.ItemID(),
		ItemType:     p.Item.Kind(),
		Span:         p.Span,
		PartySize:    p.PartySize,
		Units:        p.Item.UnitsFor(p.PartySize),
		TotalPrice:   p.TotalPrice,
		Status:       StatusPending,
		Policy:       p.Terms.Policy(),
		Deadline:     p.Terms.Deadline(),
		StartsAt:     starts,
		EndsAt:       ends,
		ClaimID:      p.ClaimID,
		RefundAmount: money.Zero(p.TotalPrice.Currency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.Record(ReservationCreated{
		ReservationID: r.ID,
		ItemID:        r.ItemID,
		GuestID:       r.GuestID,
		HostID:        r.HostID,
		Span:          r.Span.String(),
		PartySize:     r.PartySize,
		TotalPrice:    r.TotalPrice,
		At:            now,
	})
	return r, nil
}

// ConfirmBy is the latest moment a pending reservation can still be confirmed.
func (r *Reservation) ConfirmBy() time.Time {
	return r.CreatedAt.Add(r.Deadline)
}

func (r *Reservation) DeadlinePassed(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ConfirmBy())
}

// Confirm moves a pending reservation forward. Past the deadline it expires instead and returns
// ErrExpired; the caller must persist the expiry and release the claim.
func (r *Reservation) Confirm(host inventory.HostID, now time.Time) error {
	if host != r.HostID {
		return ErrNotOwner
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, r.Status)
	}
	if r.DeadlinePassed(now) {
		r.expire(now)
		return ErrExpired
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = now.UTC()
	r.Record(ReservationConfirmed{ReservationID: r.ID, ItemID: r.ItemID, At: r.UpdatedAt})
	return nil
}

// Expire is the sweeper's path for pending reservations whose deadline elapsed.
func (r *Reservation) Expire(now time.Time) error {
	if !r.DeadlinePassed(now) {
		return fmt.Errorf("%w: expire from %s before %s", ErrInvalidTransition, r.Status, r.ConfirmBy().Format(time.RFC3339))
	}
	r.expire(now)
	return nil
}

func (r *Reservation) expire(now time.Time) {
	r.Status = StatusExpired
	r.UpdatedAt = now.UTC()
	r.Record(ReservationExpired{ReservationID: r.ID, Deadline: r.ConfirmBy(), At: r.UpdatedAt})
}

// CanAcceptPayment is true while the guest may still pay toward the total.
func (r *Reservation) CanAcceptPayment() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// MarkPaid is called once the ledger balance reaches zero on a confirmed reservation.
func (r *Reservation) MarkPaid(now time.Time) error {
	if r.Status != StatusConfirmed {
		return fmt.Errorf("%w: mark paid from %s", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusPaid
	r.UpdatedAt = now.UTC()
	r.Record(ReservationPaid{ReservationID: r.ID, Total: r.TotalPrice, At: r.UpdatedAt})
	return nil
}

// RefundFor computes what a cancellation by the actor at now would return out of what was collected.
func (r *Reservation) RefundFor(by Actor, collected money.Money, now time.Time) (money.Money, cancellation.Fraction) {
	fraction := cancellation.Full
	if by == ActorGuest {
		fraction = cancellation.RefundableFraction(r.Policy, now, r.StartsAt)
	}
	refund := fraction.Apply(r.TotalPrice)
	if capped, err := money.Min(refund, collected); err == nil {
		refund = capped
	}
	if refund.Amount < 0 {
		refund = money.Zero(r.TotalPrice.Currency)
	}
	return refund, fraction
}

// Cancel retires an active reservation and fixes the refund it is owed. The caller releases the claim.
func (r *Reservation) Cancel(by Actor, actorID string, reason string, collected money.Money, now time.Time) (money.Money, error) {
	var next Status
	switch by {
	case ActorGuest:
		if actorID != r.GuestID {
			return money.Money{}, ErrNotOwner
		}
		if !r.Status.Active() {
			return money.Money{}, fmt.Errorf("%w: guest cancel from %s", ErrInvalidTransition, r.Status)
		}
		next = StatusCancelledByGuest
	case ActorHost:
		if inventory.HostID(actorID) != r.HostID {
			return money.Money{}, ErrNotOwner
		}
		if r.Status != StatusPending && r.Status != StatusConfirmed {
			return money.Money{}, fmt.Errorf("%w: host cancel from %s", ErrInvalidTransition, r.Status)
		}
		next = StatusCancelledByHost
	default:
		return money.Money{}, fmt.Errorf("%w: %s cannot cancel", ErrInvalidTransition, by)
	}

	refund, _ := r.RefundFor(by, collected, now)
	r.Status = next
	r.CancelledBy = by
	r.CancelReason = strings.TrimSpace(reason)
	r.RefundAmount = refund
	r.UpdatedAt = now.UTC()
	r.Record(ReservationCancelled{ReservationID: r.ID, By: by, Reason: r.CancelReason, RefundAmount: refund, At: r.UpdatedAt})
	return refund, nil
}

// Complete finalizes a paid reservation whose stay or slot has ended. Completing twice is a no-op.
func (r *Reservation) Complete(now time.Time) error {
	if r.Status == StatusCompleted {
		return nil
	}
	if r.Status != StatusPaid {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, r.Status)
	}
	if now.Before(r.EndsAt) {
		return fmt.Errorf("%w: ends at %s", ErrInvalidTransition, r.EndsAt.Format(time.RFC3339))
	}
	r.Status = StatusCompleted
	r.UpdatedAt = now.UTC()
	r.Record(ReservationCompleted{ReservationID: r.ID, At: r.UpdatedAt})
	return nil
}

// OweRefund records the refund a retired reservation is owed, which grows when a payment settles
// after cancellation or expiry.
func (r *Reservation) OweRefund(owed money.Money, now time.Time) error {
	if !r.Status.RefundsOpen() {
		return fmt.Errorf("%w: refund owed while %s", ErrInvalidTransition, r.Status)
	}
	if r.RefundAmount == owed {
		return nil
	}
	r.RefundAmount = owed
	r.UpdatedAt = now.UTC()
	return nil
}

// ApplyRefund moves a cancelled reservation into its refund sub-state after the ledger recorded one.
// An expired reservation keeps its status. netCollected is what the guest still has paid in after
// all refunds.
func (r *Reservation) ApplyRefund(totalRefunded, netCollected money.Money, now time.Time) error {
	next := StatusPartiallyRefunded
	switch r.Status {
	case StatusCancelledByGuest, StatusCancelledByHost, StatusPartiallyRefunded:
		if netCollected.IsZero() {
			next = StatusRefunded
		}
	case StatusExpired:
		next = StatusExpired
	default:
		return fmt.Errorf("%w: refund from %s", ErrInvalidTransition, r.Status)
	}
	r.Status = next
	r.UpdatedAt = now.UTC()
	r.Record(ReservationRefunded{ReservationID: r.ID, Status: next, Refunded: totalRefunded, At: r.UpdatedAt})
	return nil
}
