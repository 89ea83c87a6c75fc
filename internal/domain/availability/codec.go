package availability

import (
	"fmt"
	"time"

	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

type WindowSnapshot struct {
	ItemID        string    `json:"item_id" bson:"item_id"`
	Date          string    `json:"date" bson:"date"`
	Slot          string    `json:"slot" bson:"slot"`
	Capacity      uint32    `json:"capacity" bson:"capacity"`
	Claimed       uint32    `json:"claimed" bson:"claimed"`
	PriceAmount   *int64    `json:"price_override_amount,omitempty" bson:"price_override_amount,omitempty"`
	PriceCurrency string    `json:"price_override_currency,omitempty" bson:"price_override_currency,omitempty"`
	IsAvailable   bool      `json:"is_available" bson:"is_available"`
	Version       int64     `json:"version" bson:"version"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

func EncodeWindow(w Window) WindowSnapshot {
	s := WindowSnapshot{
		ItemID:      string(w.ItemID),
		Date:        w.Date.Format(daterange.DayLayout),
		Slot:        w.Slot,
		Capacity:    w.Capacity,
		Claimed:     w.Claimed,
		IsAvailable: w.IsAvailable,
		Version:     w.Version,
	}
	if w.PriceOverride != nil {
		amount := w.PriceOverride.Amount
		s.PriceAmount = &amount
		s.PriceCurrency = w.PriceOverride.Currency
	}
	return s
}

func DecodeWindow(s WindowSnapshot) (Window, error) {
	day, err := daterange.ParseDay(s.Date)
	if err != nil {
		return Window{}, fmt.Errorf("window %s/%s: %w", s.ItemID, s.Date, err)
	}
	if s.Claimed > s.Capacity {
		return Window{}, fmt.Errorf("%w: %s/%s", ErrCorruptClaim, s.ItemID, s.Date)
	}
	w := Window{
		ItemID:      inventory.ItemID(s.ItemID),
		Date:        day,
		Slot:        s.Slot,
		Capacity:    s.Capacity,
		Claimed:     s.Claimed,
		IsAvailable: s.IsAvailable,
		Version:     s.Version,
	}
	if s.PriceAmount != nil {
		price, err := money.New(*s.PriceAmount, s.PriceCurrency)
		if err != nil {
			return Window{}, fmt.Errorf("window %s/%s: %w", s.ItemID, s.Date, err)
		}
		w.PriceOverride = &price
	}
	return w, nil
}

type ClaimSnapshot struct {
	ID         string    `json:"id" bson:"_id"`
	ItemID     string    `json:"item_id" bson:"item_id"`
	Windows    []string  `json:"windows" bson:"windows"`
	Units      uint32    `json:"units" bson:"units"`
	Released   bool      `json:"released" bson:"released"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	ReleasedAt time.Time `json:"released_at,omitempty" bson:"released_at,omitempty"`
	Version    int64     `json:"version" bson:"version"`
}

func EncodeClaim(c *Claim) ClaimSnapshot {
	return ClaimSnapshot{
		ID:         string(c.ID),
		ItemID:     string(c.ItemID),
		Windows:    keyStrings(c.Keys),
		Units:      c.Units,
		Released:   c.Released,
		CreatedAt:  c.CreatedAt.UTC(),
		ReleasedAt: c.ReleasedAt.UTC(),
		Version:    c.Version,
	}
}

func DecodeClaim(s ClaimSnapshot) (*Claim, error) {
	keys := make([]WindowKey, 0, len(s.Windows))
	for _, raw := range s.Windows {
		k, err := ParseWindowKey(raw)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", s.ID, err)
		}
		keys = append(keys, k)
	}
	return &Claim{
		ID:         ClaimID(s.ID),
		ItemID:     inventory.ItemID(s.ItemID),
		Keys:       keys,
		Units:      s.Units,
		Released:   s.Released,
		CreatedAt:  s.CreatedAt.UTC(),
		ReleasedAt: s.ReleasedAt.UTC(),
		Version:    s.Version,
	}, nil
}

// ParseWindowKey reads the "YYYY-MM-DD" or "YYYY-MM-DD@HH:MM" form produced by WindowKey.String.
func ParseWindowKey(raw string) (WindowKey, error) {
	date, slot := raw, ""
	if len(raw) > len(daterange.DayLayout) && raw[len(daterange.DayLayout)] == '@' {
		date, slot = raw[:len(daterange.DayLayout)], raw[len(daterange.DayLayout)+1:]
	}
	day, err := daterange.ParseDay(date)
	if err != nil {
		return WindowKey{}, err
	}
	return WindowKey{Date: day, Slot: slot}, nil
}
