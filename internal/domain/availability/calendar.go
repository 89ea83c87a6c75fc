package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

const defaultMaxAttempts = 5

// Calendar claims and releases capacity. It keeps no state of its own: every call works against the
// store it is handed, which is the caller's unit of work.
type Calendar struct {
	MaxAttempts int
	NewClaimID  func() ClaimID
}

func NewCalendar() *Calendar {
	return &Calendar{MaxAttempts: defaultMaxAttempts}
}

// SetRequest upserts windows for an item.
type SetRequest struct {
	ItemID        inventory.ItemID
	Selector      Selector
	Capacity      uint32
	PriceOverride *money.Money
	IsAvailable   bool
}

// Check reports the units still free across every window the span covers. Missing windows count as
// closed, so the result is zero whenever the host has not opened one of the dates.
func (c *Calendar) Check(ctx context.Context, store Store, itemID inventory.ItemID, span daterange.Span) (uint32, []Window, error) {
	keys := KeysFor(span)
	if len(keys) == 0 {
		return 0, nil, daterange.ErrInvalidRange
	}
	windows, err := store.Windows(ctx, itemID, keys)
	if err != nil {
		return 0, nil, err
	}
	if len(windows) != len(keys) {
		return 0, windows, nil
	}
	free := windows[0].Free()
	for _, w := range windows[1:] {
		if f := w.Free(); f < free {
			free = f
		}
	}
	return free, windows, nil
}

// IsFree reports whether every covered window is open and has at least units free.
func (c *Calendar) IsFree(ctx context.Context, store Store, itemID inventory.ItemID, span daterange.Span, units uint32) (bool, error) {
	if units == 0 {
		return false, ErrInvalidUnits
	}
	free, _, err := c.Check(ctx, store, itemID, span)
	if err != nil {
		return false, err
	}
	return free >= units, nil
}

// Claim takes units on every covered window or on none of them.
func (c *Calendar) Claim(ctx context.Context, store Store, itemID inventory.ItemID, span daterange.Span, units uint32, now time.Time) (*Claim, error) {
	if units == 0 {
		return nil, ErrInvalidUnits
	}
	keys := KeysFor(span)
	if len(keys) == 0 {
		return nil, daterange.ErrInvalidRange
	}
	if len(keys) > MaxWindowsPerRequest {
		return nil, ErrSelectorTooLarge
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		windows, err := store.Windows(ctx, itemID, keys)
		if err != nil {
			return nil, err
		}
		if err := verifyClaimable(keys, windows, units); err != nil {
			return nil, err
		}
		for i := range windows {
			windows[i].Claimed += units
		}
		claim := &Claim{
			ID:        c.newClaimID(),
			ItemID:    itemID,
			Keys:      append([]WindowKey(nil), keys...),
			Units:     units,
			CreatedAt: now.UTC(),
		}
		err = store.SaveClaim(ctx, claim, windows)
		if errors.Is(err, concurrency.ErrConcurrentUpdate) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		claim.Record(CapacityClaimed{ClaimID: claim.ID, ItemID: itemID, Windows: keyStrings(keys), Units: units, At: now.UTC()})
		return claim, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrConflict, lastErr)
}

// Release gives back a claim's units. Releasing an already released claim is a no-op.
func (c *Calendar) Release(ctx context.Context, store Store, id ClaimID, now time.Time) (*Claim, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		claim, err := store.ClaimByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if claim.Released {
			return claim, nil
		}
		windows, err := store.Windows(ctx, claim.ItemID, claim.Keys)
		if err != nil {
			return nil, err
		}
		if len(windows) != len(claim.Keys) {
			return nil, fmt.Errorf("%w: %s lost windows", ErrCorruptClaim, claim.ID)
		}
		for i := range windows {
			if windows[i].Claimed < claim.Units {
				return nil, fmt.Errorf("%w: %s on %s", ErrCorruptClaim, claim.ID, windows[i].Key())
			}
			windows[i].Claimed -= claim.Units
		}
		claim.Released = true
		claim.ReleasedAt = now.UTC()
		err = store.SaveClaim(ctx, claim, windows)
		if errors.Is(err, concurrency.ErrConcurrentUpdate) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		claim.Record(CapacityReleased{ClaimID: claim.ID, ItemID: claim.ItemID, Windows: keyStrings(claim.Keys), Units: claim.Units, At: now.UTC()})
		return claim, nil
	}
	return nil, lastErr
}

// SetWindows upserts every selected window. Existing claims are preserved and the whole request
// fails if it would shrink a window below what is already claimed.
func (c *Calendar) SetWindows(ctx context.Context, store Store, req SetRequest, now time.Time) ([]Window, WindowsUpdated, error) {
	keys, err := req.Selector.Keys()
	if err != nil {
		return nil, WindowsUpdated{}, err
	}
	if req.PriceOverride != nil && req.PriceOverride.Amount < 0 {
		return nil, WindowsUpdated{}, fmt.Errorf("availability: negative price override %s", req.PriceOverride)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		existing, err := store.Windows(ctx, req.ItemID, keys)
		if err != nil {
			return nil, WindowsUpdated{}, err
		}
		byKey := make(map[WindowKey]Window, len(existing))
		for _, w := range existing {
			byKey[w.Key()] = w
		}
		out := make([]Window, 0, len(keys))
		for _, k := range keys {
			w, ok := byKey[k]
			if !ok {
				w = Window{ItemID: req.ItemID, Date: k.Date, Slot: k.Slot}
			}
			if req.Capacity < w.Claimed {
				return nil, WindowsUpdated{}, fmt.Errorf("%w: %s has %d claimed", ErrCapacityBelowClaimed, k, w.Claimed)
			}
			w.Capacity = req.Capacity
			w.IsAvailable = req.IsAvailable
			w.PriceOverride = cloneMoney(req.PriceOverride)
			out = append(out, w)
		}
		err = store.SaveWindows(ctx, out)
		if errors.Is(err, concurrency.ErrConcurrentUpdate) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, WindowsUpdated{}, err
		}
		ev := WindowsUpdated{ItemID: req.ItemID, Windows: keyStrings(keys), Capacity: req.Capacity, IsAvailable: req.IsAvailable, At: now.UTC()}
		return out, ev, nil
	}
	return nil, WindowsUpdated{}, lastErr
}

func verifyClaimable(keys []WindowKey, windows []Window, units uint32) error {
	byKey := make(map[WindowKey]Window, len(windows))
	for _, w := range windows {
		byKey[w.Key()] = w
	}
	for _, k := range keys {
		w, ok := byKey[k]
		if !ok {
			return fmt.Errorf("%w: %s is not open for booking", ErrConflict, k)
		}
		if free := w.Free(); free < units {
			return fmt.Errorf("%w: %s has %d free, %d requested", ErrConflict, k, free, units)
		}
	}
	return nil
}

func (c *Calendar) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Calendar) newClaimID() ClaimID {
	if c.NewClaimID != nil {
		return c.NewClaimID()
	}
	return ClaimID(uuid.NewString())
}

func cloneMoney(m *money.Money) *money.Money {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}
