package inventory

import (
	"time"

	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/money"
)

// ItemSnapshot is the persisted form of an item; durations are stored in whole seconds.
type ItemSnapshot struct {
	ID                     string              `json:"id" bson:"_id"`
	HostID                 string              `json:"host_id" bson:"host_id"`
	Type                   string              `json:"type" bson:"type"`
	Title                  string              `json:"title" bson:"title"`
	Timezone               string              `json:"timezone" bson:"timezone"`
	BaseRateAmount         int64               `json:"base_rate_amount" bson:"base_rate_amount"`
	BaseRateCurrency       string              `json:"base_rate_currency" bson:"base_rate_currency"`
	RateUnit               string              `json:"rate_unit" bson:"rate_unit"`
	WeeklyDiscountPercent  int                 `json:"weekly_discount_percent" bson:"weekly_discount_percent"`
	MonthlyDiscountPercent int                 `json:"monthly_discount_percent" bson:"monthly_discount_percent"`
	GroupTiers             []pricing.GroupTier `json:"group_tiers,omitempty" bson:"group_tiers,omitempty"`
	Policy                 cancellation.Policy `json:"policy" bson:"policy"`
	MinParty               int                 `json:"min_party" bson:"min_party"`
	MaxParty               int                 `json:"max_party" bson:"max_party"`
	MinNights              int                 `json:"min_nights" bson:"min_nights"`
	MaxNights              int                 `json:"max_nights" bson:"max_nights"`
	CheckInHour            int                 `json:"check_in_hour" bson:"check_in_hour"`
	CheckOutHour           int                 `json:"check_out_hour" bson:"check_out_hour"`
	SlotSeconds            int64               `json:"slot_seconds" bson:"slot_seconds"`
	DeadlineSeconds        int64               `json:"deadline_seconds" bson:"deadline_seconds"`
	CreatedAt              time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at" bson:"updated_at"`
}

func EncodeItem(i *Item) ItemSnapshot {
	return ItemSnapshot{
		ID:                     string(i.ID),
		HostID:                 string(i.Host),
		Type:                   string(i.Type),
		Title:                  i.Title,
		Timezone:               i.Timezone,
		BaseRateAmount:         i.Pricing.BaseRate.Amount,
		BaseRateCurrency:       i.Pricing.BaseRate.Currency,
		RateUnit:               string(i.Pricing.Unit),
		WeeklyDiscountPercent:  i.Pricing.WeeklyDiscountPercent,
		MonthlyDiscountPercent: i.Pricing.MonthlyDiscountPercent,
		GroupTiers:             append([]pricing.GroupTier(nil), i.Pricing.GroupTiers...),
		Policy:                 i.Policy,
		MinParty:               i.MinParty,
		MaxParty:               i.MaxParty,
		MinNights:              i.MinNights,
		MaxNights:              i.MaxNights,
		CheckInHour:            i.CheckInHour,
		CheckOutHour:           i.CheckOutHour,
		SlotSeconds:            int64(i.SlotDuration / time.Second),
		DeadlineSeconds:        int64(i.BookingDeadline / time.Second),
		CreatedAt:              i.CreatedAt.UTC(),
		UpdatedAt:              i.UpdatedAt.UTC(),
	}
}

// DecodeItem rebuilds an item, running the same validation as NewItem.
func DecodeItem(s ItemSnapshot) (*Item, error) {
	rate, err := money.New(s.BaseRateAmount, s.BaseRateCurrency)
	if err != nil {
		return nil, err
	}
	item, err := NewItem(CreateParams{
		ID:       ItemID(s.ID),
		Host:     HostID(s.HostID),
		Type:     ItemType(s.Type),
		Title:    s.Title,
		Timezone: s.Timezone,
		Pricing: pricing.Rules{
			BaseRate:               rate,
			Unit:                   pricing.RateUnit(s.RateUnit),
			WeeklyDiscountPercent:  s.WeeklyDiscountPercent,
			MonthlyDiscountPercent: s.MonthlyDiscountPercent,
			GroupTiers:             append([]pricing.GroupTier(nil), s.GroupTiers...),
		},
		Policy:          s.Policy,
		MinParty:        s.MinParty,
		MaxParty:        s.MaxParty,
		MinNights:       s.MinNights,
		MaxNights:       s.MaxNights,
		CheckInHour:     &s.CheckInHour,
		CheckOutHour:    &s.CheckOutHour,
		SlotDuration:    time.Duration(s.SlotSeconds) * time.Second,
		BookingDeadline: time.Duration(s.DeadlineSeconds) * time.Second,
		Now:             s.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	item.UpdatedAt = s.UpdatedAt.UTC()
	return item, nil
}
