package availability

import (
	"time"

	"staybook/internal/domain/shared/daterange"
)

// Recurrence opens the given weekdays inside a date span. Weekdays are taken from the calendar date
// itself, which is already expressed in the item's local calendar.
type Recurrence struct {
	Weekdays []time.Weekday
	Range    daterange.DateRange
}

// Selector names the windows a host wants to upsert: explicit dates, a contiguous range, a
// recurring pattern, or any union of them. Slots, when set, multiply every date by each slot.
type Selector struct {
	Dates     []time.Time
	Range     *daterange.DateRange
	Recurring *Recurrence
	Slots     []string
}

func (s Selector) Keys() ([]WindowKey, error) {
	seen := make(map[time.Time]struct{})
	days := make([]time.Time, 0)
	add := func(d time.Time) {
		d = daterange.Day(d)
		if d.IsZero() {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}

	for _, d := range s.Dates {
		add(d)
	}
	if s.Range != nil {
		if err := s.Range.Validate(); err != nil {
			return nil, err
		}
		for _, d := range s.Range.Days() {
			add(d)
		}
	}
	if s.Recurring != nil {
		if err := s.Recurring.Range.Validate(); err != nil {
			return nil, err
		}
		wanted := make(map[time.Weekday]bool, len(s.Recurring.Weekdays))
		for _, wd := range s.Recurring.Weekdays {
			wanted[wd] = true
		}
		for _, d := range s.Recurring.Range.Days() {
			if wanted[d.Weekday()] {
				add(d)
			}
		}
	}
	if len(days) == 0 {
		return nil, ErrEmptySelector
	}

	slots := uniqueSlots(s.Slots)
	if len(days)*len(slots) > MaxWindowsPerRequest {
		return nil, ErrSelectorTooLarge
	}
	keys := make([]WindowKey, 0, len(days)*len(slots))
	for _, d := range days {
		for _, slot := range slots {
			keys = append(keys, WindowKey{Date: d, Slot: slot})
		}
	}
	SortKeys(keys)
	return keys, nil
}

func uniqueSlots(in []string) []string {
	if len(in) == 0 {
		return []string{""}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, slot := range in {
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}
