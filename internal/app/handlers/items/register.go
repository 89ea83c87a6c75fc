package items

import (
	"context"
	"errors"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/uow"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/money"
)

const registerKey = "items.register"

// RegisterItemCommand upserts the booking projection of a listing or experience. The listing layer
// owns everything else about the item.
type RegisterItemCommand struct {
	ID                     string              `json:"id" validate:"required"`
	HostID                 string              `json:"host_id" validate:"required"`
	Type                   string              `json:"type" validate:"required,oneof=STAY EXPERIENCE stay experience"`
	Title                  string              `json:"title"`
	Timezone               string              `json:"timezone" validate:"omitempty,timezone"`
	BaseRate               int64               `json:"base_rate" validate:"gte=0"`
	Currency               string              `json:"currency" validate:"required,len=3"`
	RateUnit               string              `json:"rate_unit" validate:"omitempty,oneof=PER_NIGHT PER_PERSON"`
	WeeklyDiscountPercent  int                 `json:"weekly_discount_percent" validate:"gte=0,lte=100"`
	MonthlyDiscountPercent int                 `json:"monthly_discount_percent" validate:"gte=0,lte=100"`
	GroupTiers             []pricing.GroupTier `json:"group_tiers"`
	Policy                 cancellation.Policy `json:"policy"`
	MinParty               int                 `json:"min_party" validate:"gte=0"`
	MaxParty               int                 `json:"max_party" validate:"gte=0"`
	MinNights              int                 `json:"min_nights" validate:"gte=0"`
	MaxNights              int                 `json:"max_nights" validate:"gte=0"`
	CheckInHour            *int                `json:"check_in_hour" validate:"omitempty,gte=0,lte=23"`
	CheckOutHour           *int                `json:"check_out_hour" validate:"omitempty,gte=0,lte=23"`
	SlotMinutes            int                 `json:"slot_minutes" validate:"gte=0"`
	DeadlineMinutes        int                 `json:"booking_deadline_minutes" validate:"gte=0"`
}

func (c RegisterItemCommand) Key() string { return registerKey }

func (c RegisterItemCommand) LockKeys() []string { return []string{support.ItemLock(c.ID)} }

type RegisterItemHandler struct {
	support.Deps
	// DefaultDeadline replaces an unset booking deadline; zero keeps the domain default.
	DefaultDeadline time.Duration
}

func (h *RegisterItemHandler) Handle(ctx context.Context, cmd RegisterItemCommand) (*inventory.Item, error) {
	typ, err := inventory.ParseItemType(cmd.Type)
	if err != nil {
		return nil, err
	}
	rate, err := money.New(cmd.BaseRate, cmd.Currency)
	if err != nil {
		return nil, err
	}
	unit := pricing.RateUnit(cmd.RateUnit)
	if unit == "" {
		unit = pricing.PerNight
		if typ == inventory.TypeExperience {
			unit = pricing.PerPerson
		}
	}
	deadline := time.Duration(cmd.DeadlineMinutes) * time.Minute
	if deadline == 0 {
		deadline = h.DefaultDeadline
	}
	var out *inventory.Item
	err = h.Write(ctx, func(ctx context.Context, tx uow.UnitOfWork) error {
		now := h.Now()
		existing, err := tx.Items().ByID(ctx, inventory.ItemID(cmd.ID))
		switch {
		case errors.Is(err, inventory.ErrItemNotFound):
		case err != nil:
			return err
		default:
			if !existing.OwnedBy(inventory.HostID(cmd.HostID)) {
				return inventory.ErrNotOwner
			}
		}
		item, err := inventory.NewItem(inventory.CreateParams{
			ID:       inventory.ItemID(cmd.ID),
			Host:     inventory.HostID(cmd.HostID),
			Type:     typ,
			Title:    cmd.Title,
			Timezone: cmd.Timezone,
			Pricing: pricing.Rules{
				BaseRate:               rate,
				Unit:                   unit,
				WeeklyDiscountPercent:  cmd.WeeklyDiscountPercent,
				MonthlyDiscountPercent: cmd.MonthlyDiscountPercent,
				GroupTiers:             cmd.GroupTiers,
			},
			Policy:          cmd.Policy,
			MinParty:        cmd.MinParty,
			MaxParty:        cmd.MaxParty,
			MinNights:       cmd.MinNights,
			MaxNights:       cmd.MaxNights,
			CheckInHour:     cmd.CheckInHour,
			CheckOutHour:    cmd.CheckOutHour,
			SlotDuration:    time.Duration(cmd.SlotMinutes) * time.Minute,
			BookingDeadline: deadline,
			Now:             now,
		})
		if err != nil {
			return err
		}
		if existing != nil {
			item.CreatedAt = existing.CreatedAt
		}
		if err := tx.Items().Save(ctx, item); err != nil {
			return err
		}
		out = item
		h.Log().InfoContext(ctx, "item registered", "item_id", item.ID, "type", item.Type, "host_id", item.Host)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *RegisterItemHandler) Register(reg *commands.Registry) {
	commands.Register[RegisterItemCommand, *inventory.Item](reg, h)
}
