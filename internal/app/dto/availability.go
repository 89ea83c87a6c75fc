package dto

import (
	"staybook/internal/domain/availability"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
)

type Window struct {
	Date          string    `json:"date"`
	Slot          string    `json:"slot,omitempty"`
	Capacity      uint32    `json:"capacity"`
	Claimed       uint32    `json:"claimed"`
	Free          uint32    `json:"free"`
	PriceOverride *MoneyDTO `json:"price_override,omitempty"`
	IsAvailable   bool      `json:"is_available"`
}

type Calendar struct {
	ItemID  string   `json:"item_id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Windows []Window `json:"windows"`
}

type AvailabilityCheck struct {
	ItemID    string `json:"item_id"`
	Span      string `json:"span"`
	Requested uint32 `json:"requested_units"`
	Free      uint32 `json:"free_units"`
	Available bool   `json:"available"`
}

type WindowsUpdate struct {
	ItemID  string   `json:"item_id"`
	Updated int      `json:"updated"`
	Windows []Window `json:"windows"`
}

type DiscountDTO struct {
	Name    string   `json:"name"`
	Percent int      `json:"percent"`
	Amount  MoneyDTO `json:"amount"`
}

type Quote struct {
	ItemID    string       `json:"item_id"`
	Span      string       `json:"span"`
	PartySize int          `json:"party_size"`
	Units     int          `json:"units"`
	Subtotal  MoneyDTO     `json:"subtotal"`
	Discount  *DiscountDTO `json:"discount,omitempty"`
	Total     MoneyDTO     `json:"total"`
}

func MapWindow(w availability.Window) Window {
	return Window{
		Date:          w.Date.Format(daterange.DayLayout),
		Slot:          w.Slot,
		Capacity:      w.Capacity,
		Claimed:       w.Claimed,
		Free:          w.Free(),
		PriceOverride: MapMoneyPtr(w.PriceOverride),
		IsAvailable:   w.IsAvailable,
	}
}

func MapWindows(ws []availability.Window) []Window {
	out := make([]Window, 0, len(ws))
	for _, w := range ws {
		out = append(out, MapWindow(w))
	}
	return out
}

func MapQuote(itemID string, span daterange.Span, party int, q pricing.Quote) Quote {
	out := Quote{
		ItemID:    itemID,
		Span:      span.String(),
		PartySize: party,
		Units:     q.Units,
		Subtotal:  MapMoney(q.Subtotal),
		Total:     MapMoney(q.Total),
	}
	if q.Discount != nil {
		out.Discount = &DiscountDTO{Name: q.Discount.Name, Percent: q.Discount.Percent, Amount: MapMoney(q.Discount.Amount)}
	}
	return out
}
