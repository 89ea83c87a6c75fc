package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
)

var (
	ErrConflict             = errors.New("availability: requested capacity is not available")
	ErrClaimNotFound        = errors.New("availability: claim not found")
	ErrCapacityBelowClaimed = errors.New("availability: capacity cannot drop below claimed units")
	ErrInvalidUnits         = errors.New("availability: units must be positive")
	ErrEmptySelector        = errors.New("availability: selector matches no dates")
	ErrSelectorTooLarge     = errors.New("availability: selector spans too many windows")
	ErrCorruptClaim         = errors.New("availability: claim exceeds claimed units of a window")
)

// MaxWindowsPerRequest bounds a single upsert or claim.
const MaxWindowsPerRequest = 2 * 366

// WindowKey addresses one bookable day (Slot empty) or one slot of a day.
type WindowKey struct {
	Date time.Time
	Slot string
}

func (k WindowKey) String() string {
	if k.Slot == "" {
		return k.Date.Format(daterange.DayLayout)
	}
	return k.Date.Format(daterange.DayLayout) + "@" + k.Slot
}

func (k WindowKey) Less(other WindowKey) bool {
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	return k.Slot < other.Slot
}

// SortKeys orders keys by date then slot so multi-window work always runs in the same order.
func SortKeys(keys []WindowKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// KeysFor lists the windows a span covers: one per night for stays, exactly one for a slot.
func KeysFor(span daterange.Span) []WindowKey {
	days := span.Range.Days()
	keys := make([]WindowKey, 0, len(days))
	for _, d := range days {
		keys = append(keys, WindowKey{Date: d, Slot: span.Slot})
	}
	if span.IsSlot() && len(keys) > 1 {
		keys = keys[:1]
	}
	return keys
}

// Window is one day's or slot's capacity record for an item.
type Window struct {
	ItemID        inventory.ItemID
	Date          time.Time
	Slot          string
	Capacity      uint32
	Claimed       uint32
	PriceOverride *money.Money
	IsAvailable   bool
	Version       int64
}

func (w Window) Key() WindowKey {
	return WindowKey{Date: w.Date, Slot: w.Slot}
}

// Free is the number of units still claimable; closed windows have none.
func (w Window) Free() uint32 {
	if !w.IsAvailable || w.Claimed >= w.Capacity {
		return 0
	}
	return w.Capacity - w.Claimed
}

type ClaimID string

// Claim is a reservation's hold on units across one or more windows.
type Claim struct {
	ID         ClaimID
	ItemID     inventory.ItemID
	Keys       []WindowKey
	Units      uint32
	Released   bool
	CreatedAt  time.Time
	ReleasedAt time.Time
	Version    int64
	events.EventRecorder
}

// Store persists windows and claims. Implementations must reject writes whose Version does not match
// the stored one with concurrency.ErrConcurrentUpdate, and apply SaveClaim all-or-nothing.
type Store interface {
	Windows(ctx context.Context, itemID inventory.ItemID, keys []WindowKey) ([]Window, error)
	WindowsBetween(ctx context.Context, itemID inventory.ItemID, from, to time.Time) ([]Window, error)
	SaveWindows(ctx context.Context, windows []Window) error
	ClaimByID(ctx context.Context, id ClaimID) (*Claim, error)
	SaveClaim(ctx context.Context, claim *Claim, windows []Window) error
}

func SortWindows(ws []Window) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Key().Less(ws[j].Key()) })
}
