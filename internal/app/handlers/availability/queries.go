package availability

import (
	"context"
	"fmt"

	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	domain "staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
)

const (
	checkKey    = "availability.check"
	quoteKey    = "availability.quote"
	calendarKey = "availability.calendar"
)

type CheckAvailabilityQuery struct {
	ItemID    string `json:"item_id" validate:"required"`
	CheckIn   string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut  string `json:"check_out" validate:"omitempty,datetime=2006-01-02"`
	Slot      string `json:"slot" validate:"omitempty,datetime=15:04"`
	PartySize int    `json:"party_size" validate:"gt=0"`
}

func (q CheckAvailabilityQuery) Key() string { return checkKey }

type QuotePriceQuery struct {
	ItemID    string `json:"item_id" validate:"required"`
	CheckIn   string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut  string `json:"check_out" validate:"omitempty,datetime=2006-01-02"`
	Slot      string `json:"slot" validate:"omitempty,datetime=15:04"`
	PartySize int    `json:"party_size" validate:"gt=0"`
}

func (q QuotePriceQuery) Key() string { return quoteKey }

type GetCalendarQuery struct {
	ItemID string `json:"item_id" validate:"required"`
	From   string `json:"from" validate:"required,datetime=2006-01-02"`
	To     string `json:"to" validate:"required,datetime=2006-01-02"`
}

func (q GetCalendarQuery) Key() string { return calendarKey }

type QueryHandler struct {
	support.Deps
	Calendar *domain.Calendar
	Pricing  pricing.Calculator
}

func (h *QueryHandler) Check(ctx context.Context, q CheckAvailabilityQuery) (dto.AvailabilityCheck, error) {
	var out dto.AvailabilityCheck
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		item, bookable, span, err := h.resolve(ctx, unit, q.ItemID, q.CheckIn, q.CheckOut, q.Slot)
		if err != nil {
			return err
		}
		if err := bookable.Validate(span, q.PartySize); err != nil {
			return err
		}
		units := bookable.UnitsFor(q.PartySize)
		free, _, err := h.Calendar.Check(ctx, unit.Availability(), item.ID, span)
		if err != nil {
			return err
		}
		out = dto.AvailabilityCheck{
			ItemID:    string(item.ID),
			Span:      span.String(),
			Requested: units,
			Free:      free,
			Available: free >= units,
		}
		return nil
	})
	return out, err
}

func (h *QueryHandler) Quote(ctx context.Context, q QuotePriceQuery) (dto.Quote, error) {
	var out dto.Quote
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		item, bookable, span, err := h.resolve(ctx, unit, q.ItemID, q.CheckIn, q.CheckOut, q.Slot)
		if err != nil {
			return err
		}
		if err := bookable.Validate(span, q.PartySize); err != nil {
			return err
		}
		_, windows, err := h.Calendar.Check(ctx, unit.Availability(), item.ID, span)
		if err != nil {
			return err
		}
		quote, err := support.Quote(ctx, h.Pricing, item, span, q.PartySize, windows)
		if err != nil {
			return err
		}
		out = dto.MapQuote(string(item.ID), span, q.PartySize, quote)
		return nil
	})
	return out, err
}

func (h *QueryHandler) GetCalendar(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	dr, err := daterange.Parse(q.From, q.To)
	if err != nil {
		return dto.Calendar{}, err
	}
	if dr.Nights() > domain.MaxWindowsPerRequest {
		return dto.Calendar{}, fmt.Errorf("%w: %d days", domain.ErrSelectorTooLarge, dr.Nights())
	}
	var out dto.Calendar
	err = h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		if _, err := unit.Items().ByID(ctx, inventory.ItemID(q.ItemID)); err != nil {
			return err
		}
		windows, err := unit.Availability().WindowsBetween(ctx, inventory.ItemID(q.ItemID), dr.CheckIn, dr.CheckOut)
		if err != nil {
			return err
		}
		domain.SortWindows(windows)
		out = dto.Calendar{
			ItemID:  q.ItemID,
			From:    q.From,
			To:      q.To,
			Windows: dto.MapWindows(windows),
		}
		return nil
	})
	return out, err
}

func (h *QueryHandler) resolve(ctx context.Context, unit uow.UnitOfWork, itemID, checkIn, checkOut, slot string) (*inventory.Item, inventory.Bookable, daterange.Span, error) {
	item, err := unit.Items().ByID(ctx, inventory.ItemID(itemID))
	if err != nil {
		return nil, nil, daterange.Span{}, err
	}
	bookable, err := item.Bookable()
	if err != nil {
		return nil, nil, daterange.Span{}, err
	}
	span, err := support.Span(bookable.Kind(), checkIn, checkOut, slot)
	if err != nil {
		return nil, nil, daterange.Span{}, err
	}
	return item, bookable, span, nil
}

func (h *QueryHandler) Register(reg *queries.Registry) {
	queries.Register[CheckAvailabilityQuery, dto.AvailabilityCheck](reg, queries.HandlerFunc[CheckAvailabilityQuery, dto.AvailabilityCheck](h.Check))
	queries.Register[QuotePriceQuery, dto.Quote](reg, queries.HandlerFunc[QuotePriceQuery, dto.Quote](h.Quote))
	queries.Register[GetCalendarQuery, dto.Calendar](reg, queries.HandlerFunc[GetCalendarQuery, dto.Calendar](h.GetCalendar))
}
