package availability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/shared/daterange"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := daterange.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestSelectorUnionIsDeduplicatedAndSorted(t *testing.T) {
	dr, err := daterange.Parse("2024-06-10", "2024-06-12")
	require.NoError(t, err)
	sel := availability.Selector{
		Dates: []time.Time{day(t, "2024-06-20"), day(t, "2024-06-11")},
		Range: &dr,
	}
	keys, err := sel.Keys()
	require.NoError(t, err)
	got := make([]string, 0, len(keys))
	for _, k := range keys {
		got = append(got, k.String())
	}
	assert.Equal(t, []string{"2024-06-10", "2024-06-11", "2024-06-20"}, got)
}

func TestSelectorRecurringWeekdays(t *testing.T) {
	dr, err := daterange.Parse("2024-06-01", "2024-06-15")
	require.NoError(t, err)
	sel := availability.Selector{
		Recurring: &availability.Recurrence{Weekdays: []time.Weekday{time.Monday, time.Friday}, Range: dr},
		Slots:     []string{"10:00", "10:00", "15:00"},
	}
	keys, err := sel.Keys()
	require.NoError(t, err)
	// Mondays 3 and 10, Fridays 7 and 14, two slots each
	require.Len(t, keys, 8)
	assert.Equal(t, "2024-06-03@10:00", keys[0].String())
	assert.Equal(t, "2024-06-14@15:00", keys[7].String())
}

func TestSelectorErrors(t *testing.T) {
	_, err := availability.Selector{}.Keys()
	assert.ErrorIs(t, err, availability.ErrEmptySelector)

	dr, err := daterange.Parse("2024-01-01", "2026-01-01")
	require.NoError(t, err)
	_, err = availability.Selector{Range: &dr, Slots: []string{"09:00", "12:00"}}.Keys()
	assert.ErrorIs(t, err, availability.ErrSelectorTooLarge)
}

func TestKeysFor(t *testing.T) {
	dr, err := daterange.Parse("2024-06-10", "2024-06-13")
	require.NoError(t, err)
	assert.Len(t, availability.KeysFor(daterange.StaySpan(dr)), 3)

	keys := availability.KeysFor(daterange.SlotSpan(day(t, "2024-06-10"), "09:30"))
	require.Len(t, keys, 1)
	assert.Equal(t, "2024-06-10@09:30", keys[0].String())
}

func TestWindowCodec(t *testing.T) {
	w := availability.Window{ItemID: "item-1", Date: day(t, "2024-06-10"), Slot: "09:30", Capacity: 4, Claimed: 1, IsAvailable: true, Version: 3}
	back, err := availability.DecodeWindow(availability.EncodeWindow(w))
	require.NoError(t, err)
	assert.Equal(t, w, back)

	bad := availability.EncodeWindow(w)
	bad.Claimed = 9
	_, err = availability.DecodeWindow(bad)
	assert.ErrorIs(t, err, availability.ErrCorruptClaim)

	k, err := availability.ParseWindowKey("2024-06-10@09:30")
	require.NoError(t, err)
	assert.Equal(t, w.Key(), k)
}
