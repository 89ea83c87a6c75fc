package availability

import (
	"time"

	"staybook/internal/domain/inventory"
)

type CapacityClaimed struct {
	ClaimID ClaimID
	ItemID  inventory.ItemID
	Windows []string
	Units   uint32
	At      time.Time
}

func (e CapacityClaimed) EventName() string     { return "availability.claimed" }
func (e CapacityClaimed) AggregateID() string   { return string(e.ItemID) }
func (e CapacityClaimed) OccurredAt() time.Time { return e.At }

type CapacityReleased struct {
	ClaimID ClaimID
	ItemID  inventory.ItemID
	Windows []string
	Units   uint32
	At      time.Time
}

func (e CapacityReleased) EventName() string     { return "availability.released" }
func (e CapacityReleased) AggregateID() string   { return string(e.ItemID) }
func (e CapacityReleased) OccurredAt() time.Time { return e.At }

type WindowsUpdated struct {
	ItemID      inventory.ItemID
	Windows     []string
	Capacity    uint32
	IsAvailable bool
	At          time.Time
}

func (e WindowsUpdated) EventName() string     { return "availability.windows_updated" }
func (e WindowsUpdated) AggregateID() string   { return string(e.ItemID) }
func (e WindowsUpdated) OccurredAt() time.Time { return e.At }

func keyStrings(keys []WindowKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
