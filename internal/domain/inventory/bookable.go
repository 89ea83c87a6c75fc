package inventory

import (
	"fmt"
	"time"

	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
)

// Bookable is what the availability and reservation flows need from an item.
type Bookable interface {
	ItemID() ItemID
	Kind() ItemType
	HostID() HostID
	Validate(span daterange.Span, party int) error
	// UnitsFor is the capacity a party consumes in each covered window.
	UnitsFor(party int) uint32
	StartsAt(span daterange.Span) (time.Time, error)
	EndsAt(span daterange.Span) (time.Time, error)
}

// Payable is what pricing and the payment flow need from an item.
type Payable interface {
	Rules() pricing.Rules
	Policy() cancellation.Policy
	Deadline() time.Duration
}

// Stay is a nightly rental; one booking takes one unit of the night's capacity.
type Stay struct {
	item *Item
}

func (s Stay) ItemID() ItemID      { return s.item.ID }
func (s Stay) Kind() ItemType      { return TypeStay }
func (s Stay) HostID() HostID      { return s.item.Host }
func (s Stay) UnitsFor(int) uint32 { return 1 }

func (s Stay) Validate(span daterange.Span, party int) error {
	if span.IsSlot() {
		return ErrSlotNotAllowed
	}
	if err := span.Validate(); err != nil {
		return err
	}
	nights := span.Range.Nights()
	if (s.item.MinNights > 0 && nights < s.item.MinNights) || (s.item.MaxNights > 0 && nights > s.item.MaxNights) {
		return fmt.Errorf("%w: %d nights", ErrStayLength, nights)
	}
	return s.item.checkParty(party)
}

func (s Stay) StartsAt(span daterange.Span) (time.Time, error) {
	return atLocalHour(span.Range.CheckIn, s.item.CheckInHour, s.item.Location()), nil
}

func (s Stay) EndsAt(span daterange.Span) (time.Time, error) {
	return atLocalHour(span.Range.CheckOut, s.item.CheckOutHour, s.item.Location()), nil
}

// Experience is a timed activity; each guest takes one seat of the slot's capacity.
type Experience struct {
	item *Item
}

func (e Experience) ItemID() ItemID { return e.item.ID }
func (e Experience) Kind() ItemType { return TypeExperience }
func (e Experience) HostID() HostID { return e.item.Host }

func (e Experience) UnitsFor(party int) uint32 {
	if party <= 0 {
		return 0
	}
	return uint32(party)
}

func (e Experience) Validate(span daterange.Span, party int) error {
	if !span.IsSlot() {
		return ErrSlotRequired
	}
	if err := span.Validate(); err != nil {
		return err
	}
	if _, err := ParseSlot(span.Slot); err != nil {
		return err
	}
	return e.item.checkParty(party)
}

func (e Experience) StartsAt(span daterange.Span) (time.Time, error) {
	offset, err := ParseSlot(span.Slot)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := span.Range.CheckIn.Date()
	local := time.Date(y, m, d, 0, 0, 0, 0, e.item.Location()).Add(offset)
	return local.UTC(), nil
}

func (e Experience) EndsAt(span daterange.Span) (time.Time, error) {
	start, err := e.StartsAt(span)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(e.item.SlotDuration), nil
}

// ParseSlot converts "HH:MM" into an offset from midnight.
func ParseSlot(slot string) (time.Duration, error) {
	t, err := time.Parse(SlotLayout, slot)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

type payable struct {
	item *Item
}

func (p payable) Rules() pricing.Rules        { return p.item.Pricing }
func (p payable) Policy() cancellation.Policy { return p.item.Policy }
func (p payable) Deadline() time.Duration     { return p.item.BookingDeadline }

func atLocalHour(day time.Time, hour int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, loc).UTC()
}

var (
	_ Bookable = Stay{}
	_ Bookable = Experience{}
	_ Payable  = payable{}
)
