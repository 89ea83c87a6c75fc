package daterange

import (
	"errors"
	"time"
)

// DayLayout is the canonical calendar-date format used in keys and payloads.
const DayLayout = "2006-01-02"

var (
	ErrInvalidRange = errors.New("daterange: checkout must be after checkin")
	ErrInvalidDay   = errors.New("daterange: invalid calendar day")
)

// DateRange represents a half-open interval [checkIn, checkOut) of calendar days.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// New truncates both ends to calendar days and validates the range.
func New(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseDay(checkIn)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDay(checkOut)
	if err != nil {
		return DateRange{}, err
	}
	return New(in, out)
}

// Day normalizes t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidDay, err)
	}
	return t, nil
}

func (dr DateRange) Validate() error {
	if dr.CheckOut.IsZero() || dr.CheckIn.IsZero() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return int(dr.CheckOut.Sub(dr.CheckIn).Hours() / 24)
}

// Days lists every calendar day covered by the range; checkout is excluded.
func (dr DateRange) Days() []time.Time {
	n := dr.Nights()
	if n <= 0 {
		return nil
	}
	days := make([]time.Time, 0, n)
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

func (dr DateRange) Contains(other DateRange) bool {
	return !other.CheckIn.Before(dr.CheckIn) && !other.CheckOut.After(dr.CheckOut)
}

func (dr DateRange) ContainsDate(t time.Time) bool {
	t = t.UTC()
	return !t.Before(dr.CheckIn) && t.Before(dr.CheckOut)
}

func (dr DateRange) String() string {
	return dr.CheckIn.Format(DayLayout) + ".." + dr.CheckOut.Format(DayLayout)
}

// Span is what a reservation occupies: a stay range, or one day plus a named time slot.
type Span struct {
	Range DateRange
	Slot  string
}

// StaySpan covers every night of the range.
func StaySpan(dr DateRange) Span {
	return Span{Range: dr}
}

// SlotSpan covers one discrete time slot on one day.
func SlotSpan(day time.Time, slot string) Span {
	d := Day(day)
	return Span{Range: DateRange{CheckIn: d, CheckOut: d.AddDate(0, 0, 1)}, Slot: slot}
}

func (s Span) IsSlot() bool { return s.Slot != "" }

func (s Span) Validate() error {
	if err := s.Range.Validate(); err != nil {
		return err
	}
	if s.IsSlot() && s.Range.Nights() != 1 {
		return ErrInvalidRange
	}
	return nil
}

func (s Span) String() string {
	if s.IsSlot() {
		return s.Range.CheckIn.Format(DayLayout) + "@" + s.Slot
	}
	return s.Range.String()
}
