package reservation

import (
	"fmt"
	"time"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

// Snapshot is the flat persisted form of a reservation. Storage adapters map it to documents or rows;
// the aggregate never depends on their tags.
type Snapshot struct {
	ID           string              `json:"id" bson:"_id"`
	GuestID      string              `json:"guest_id" bson:"guest_id"`
	HostID       string              `json:"host_id" bson:"host_id"`
	ItemID       string              `json:"item_id" bson:"item_id"`
	ItemType     string              `json:"item_type" bson:"item_type"`
	CheckIn      string              `json:"check_in" bson:"check_in"`
	CheckOut     string              `json:"check_out" bson:"check_out"`
	Slot         string              `json:"slot,omitempty" bson:"slot,omitempty"`
	PartySize    int                 `json:"party_size" bson:"party_size"`
	Units        uint32              `json:"units" bson:"units"`
	TotalAmount  int64               `json:"total_price_amount" bson:"total_price_amount"`
	Currency     string              `json:"total_price_currency" bson:"total_price_currency"`
	Status       string              `json:"status" bson:"status"`
	Policy       cancellation.Policy `json:"policy" bson:"policy"`
	DeadlineSecs int64               `json:"deadline_seconds" bson:"deadline_seconds"`
	StartsAt     time.Time           `json:"starts_at" bson:"starts_at"`
	EndsAt       time.Time           `json:"ends_at" bson:"ends_at"`
	ClaimID      string              `json:"claim_id" bson:"claim_id"`
	CancelledBy  string              `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	RefundAmount int64               `json:"refund_amount" bson:"refund_amount"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" bson:"updated_at"`
	Version      int64               `json:"version" bson:"version"`
}

func Encode(r *Reservation) Snapshot {
	return Snapshot{
		ID:           string(r.ID),
		GuestID:      r.GuestID,
		HostID:       string(r.HostID),
		ItemID:       string(r.ItemID),
		ItemType:     string(r.ItemType),
		CheckIn:      r.Span.Range.CheckIn.Format(daterange.DayLayout),
		CheckOut:     r.Span.Range.CheckOut.Format(daterange.DayLayout),
		Slot:         r.Span.Slot,
		PartySize:    r.PartySize,
		Units:        r.Units,
		TotalAmount:  r.TotalPrice.Amount,
		Currency:     r.TotalPrice.Currency,
		Status:       string(r.Status),
		Policy:       r.Policy,
		DeadlineSecs: int64(r.Deadline / time.Second),
		StartsAt:     r.StartsAt.UTC(),
		EndsAt:       r.EndsAt.UTC(),
		ClaimID:      string(r.ClaimID),
		CancelledBy:  string(r.CancelledBy),
		CancelReason: r.CancelReason,
		RefundAmount: r.RefundAmount.Amount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		Version:      r.Version,
	}
}

func Decode(s Snapshot) (*Reservation, error) {
	dr, err := daterange.Parse(s.CheckIn, s.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", s.ID, err)
	}
	status := Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("reservation %s: unknown status %q", s.ID, s.Status)
	}
	total, err := money.New(s.TotalAmount, s.Currency)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", s.ID, err)
	}
	return &Reservation{
		ID:           ID(s.ID),
		GuestID:      s.GuestID,
		HostID:       inventory.HostID(s.HostID),
		ItemID:       inventory.ItemID(s.ItemID),
		ItemType:     inventory.ItemType(s.ItemType),
		Span:         daterange.Span{Range: dr, Slot: s.Slot},
		PartySize:    s.PartySize,
		Units:        s.Units,
		TotalPrice:   total,
		Status:       status,
		Policy:       s.Policy,
		Deadline:     time.Duration(s.DeadlineSecs) * time.Second,
		StartsAt:     s.StartsAt.UTC(),
		EndsAt:       s.EndsAt.UTC(),
		ClaimID:      availability.ClaimID(s.ClaimID),
		CancelledBy:  Actor(s.CancelledBy),
		CancelReason: s.CancelReason,
		RefundAmount: money.Money{Amount: s.RefundAmount, Currency: total.Currency},
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
		Version:      s.Version,
	}, nil
}
