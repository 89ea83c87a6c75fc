package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/uow"
	domain "staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
)

const setKey = "availability.set"

// SetAvailabilityCommand upserts windows. Dates, From/To and the recurring pattern may be combined;
// weekdays are english names or three-letter abbreviations.
type SetAvailabilityCommand struct {
	ItemID        string   `json:"item_id" validate:"required"`
	HostID        string   `json:"host_id" validate:"required"`
	Dates         []string `json:"dates" validate:"omitempty,dive,datetime=2006-01-02"`
	From          string   `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To            string   `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Weekdays      []string `json:"weekdays" validate:"omitempty,dive,required"`
	RecurFrom     string   `json:"recur_from" validate:"omitempty,datetime=2006-01-02"`
	RecurTo       string   `json:"recur_to" validate:"omitempty,datetime=2006-01-02"`
	Slots         []string `json:"slots" validate:"omitempty,dive,datetime=15:04"`
	Capacity      uint32   `json:"capacity" validate:"lte=100000"`
	PriceOverride *int64   `json:"price_override" validate:"omitempty,gte=0"`
	IsAvailable   *bool    `json:"is_available"`
}

func (c SetAvailabilityCommand) Key() string { return setKey }

func (c SetAvailabilityCommand) LockKeys() []string { return []string{support.ItemLock(c.ItemID)} }

type SetAvailabilityHandler struct {
	support.Deps
	Calendar *domain.Calendar
}

func (h *SetAvailabilityHandler) Handle(ctx context.Context, cmd SetAvailabilityCommand) (*dto.WindowsUpdate, error) {
	selector, err := buildSelector(cmd)
	if err != nil {
		return nil, err
	}
	var out dto.WindowsUpdate
	err = h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		item, err := unit.Items().ByID(ctx, inventory.ItemID(cmd.ItemID))
		if err != nil {
			return err
		}
		if !item.OwnedBy(inventory.HostID(strings.TrimSpace(cmd.HostID))) {
			return inventory.ErrNotOwner
		}
		switch item.Type {
		case inventory.TypeExperience:
			if len(selector.Slots) == 0 {
				return inventory.ErrSlotRequired
			}
		case inventory.TypeStay:
			if len(selector.Slots) > 0 {
				return inventory.ErrSlotNotAllowed
			}
		}
		req := domain.SetRequest{
			ItemID:      item.ID,
			Selector:    selector,
			Capacity:    cmd.Capacity,
			IsAvailable: cmd.IsAvailable == nil || *cmd.IsAvailable,
		}
		if cmd.PriceOverride != nil {
			price, err := money.New(*cmd.PriceOverride, item.Pricing.BaseRate.Currency)
			if err != nil {
				return err
			}
			req.PriceOverride = &price
		}
		windows, updated, err := h.Calendar.SetWindows(ctx, unit.Availability(), req, h.Now())
		if err != nil {
			return err
		}
		if err := h.Publish(ctx, unit, eventSource{updated}); err != nil {
			return err
		}
		out = dto.WindowsUpdate{ItemID: string(item.ID), Updated: len(windows), Windows: dto.MapWindows(windows)}
		h.Log().InfoContext(ctx, "availability updated", "item_id", item.ID, "windows", len(windows), "capacity", cmd.Capacity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *SetAvailabilityHandler) Register(reg *commands.Registry) {
	commands.Register[SetAvailabilityCommand, *dto.WindowsUpdate](reg, h)
}

func buildSelector(cmd SetAvailabilityCommand) (domain.Selector, error) {
	var sel domain.Selector
	for _, raw := range cmd.Dates {
		d, err := daterange.ParseDay(raw)
		if err != nil {
			return sel, err
		}
		sel.Dates = append(sel.Dates, d)
	}
	if cmd.From != "" {
		dr, err := daterange.Parse(cmd.From, cmd.To)
		if err != nil {
			return sel, err
		}
		sel.Range = &dr
	}
	if len(cmd.Weekdays) > 0 {
		dr, err := daterange.Parse(cmd.RecurFrom, cmd.RecurTo)
		if err != nil {
			return sel, err
		}
		rec := &domain.Recurrence{Range: dr}
		for _, raw := range cmd.Weekdays {
			wd, err := parseWeekday(raw)
			if err != nil {
				return sel, err
			}
			rec.Weekdays = append(rec.Weekdays, wd)
		}
		sel.Recurring = rec
	}
	for _, slot := range cmd.Slots {
		if _, err := inventory.ParseSlot(slot); err != nil {
			return sel, err
		}
		sel.Slots = append(sel.Slots, slot)
	}
	return sel, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: weekday %q", middleware.ErrInvalidInput, raw)
}

// eventSource adapts a single event returned by the calendar to the outbox drainer.
type eventSource struct {
	ev domain.WindowsUpdated
}

func (s eventSource) Drain() []events.DomainEvent {
	return []events.DomainEvent{s.ev}
}
