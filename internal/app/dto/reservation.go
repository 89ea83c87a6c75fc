package dto

import (
	"time"

	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/daterange"
)

type PolicyDTO struct {
	FullRefundBeforeHours    uint32 `json:"full_refund_before_hours"`
	PartialRefundWindowHours uint32 `json:"partial_refund_window_hours"`
	AllowPartialRefund       bool   `json:"allow_partial_refund"`
	PartialRefundPercent     uint8  `json:"partial_refund_percent,omitempty"`
}

type Reservation struct {
	ID           string       `json:"id"`
	GuestID      string       `json:"guest_id"`
	HostID       string       `json:"host_id"`
	ItemID       string       `json:"item_id"`
	ItemType     string       `json:"item_type"`
	CheckIn      string       `json:"check_in"`
	CheckOut     string       `json:"check_out"`
	Slot         string       `json:"slot,omitempty"`
	PartySize    int          `json:"party_size"`
	Units        uint32       `json:"units"`
	TotalPrice   MoneyDTO     `json:"total_price"`
	Status       string       `json:"status"`
	StatusLabel  string       `json:"status_label"`
	Policy       PolicyDTO    `json:"policy"`
	ConfirmBy    time.Time    `json:"confirm_by"`
	StartsAt     time.Time    `json:"starts_at"`
	EndsAt       time.Time    `json:"ends_at"`
	CancelledBy  string       `json:"cancelled_by,omitempty"`
	CancelReason string       `json:"cancel_reason,omitempty"`
	RefundAmount *MoneyDTO    `json:"refund_amount,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Balance      *BalanceLine `json:"balance,omitempty"`
}

type ReservationCollection struct {
	Items []Reservation `json:"items"`
}

// BalanceLine is the short ledger view attached to a reservation.
type BalanceLine struct {
	Collected MoneyDTO `json:"collected"`
	Remaining MoneyDTO `json:"remaining"`
}

func MapReservation(r *reservation.Reservation) Reservation {
	out := Reservation{
		ID:          string(r.ID),
		GuestID:     r.GuestID,
		HostID:      string(r.HostID),
		ItemID:      string(r.ItemID),
		ItemType:    string(r.ItemType),
		CheckIn:     r.Span.Range.CheckIn.Format(daterange.DayLayout),
		CheckOut:    r.Span.Range.CheckOut.Format(daterange.DayLayout),
		Slot:        r.Span.Slot,
		PartySize:   r.PartySize,
		Units:       r.Units,
		TotalPrice:  MapMoney(r.TotalPrice),
		Status:      string(r.Status),
		StatusLabel: r.Status.Label(),
		Policy: PolicyDTO{
			FullRefundBeforeHours:    r.Policy.FullRefundIfCancelledBeforeHours,
			PartialRefundWindowHours: r.Policy.PartialRefundWindowHours,
			AllowPartialRefund:       r.Policy.AllowPartialRefund,
			PartialRefundPercent:     r.Policy.PartialRefundPercent,
		},
		ConfirmBy:    r.ConfirmBy(),
		StartsAt:     r.StartsAt,
		EndsAt:       r.EndsAt,
		CancelledBy:  string(r.CancelledBy),
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Status.RefundsOpen() {
		refund := MapMoney(r.RefundAmount)
		out.RefundAmount = &refund
	}
	return out
}
