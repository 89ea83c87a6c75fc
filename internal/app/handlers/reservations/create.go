package reservations

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/reservation"
)

const createKey = "reservation.create"

type CreateReservationCommand struct {
	ReservationID   string `json:"reservation_id" validate:"omitempty,max=64"`
	GuestID         string `json:"guest_id" validate:"required,max=64"`
	ItemID          string `json:"item_id" validate:"required,max=64"`
	CheckIn         string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut        string `json:"check_out" validate:"omitempty,datetime=2006-01-02"`
	Slot            string `json:"slot" validate:"omitempty,datetime=15:04"`
	PartySize       int    `json:"party_size" validate:"gt=0,lte=1000"`
	IdempotencyKeyV string `json:"-"`
}

func (c CreateReservationCommand) Key() string { return createKey }

func (c CreateReservationCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateReservationCommand) ResultPrototype() any { return &dto.Reservation{} }

func (c CreateReservationCommand) LockKeys() []string { return []string{support.ItemLock(c.ItemID)} }

type CreateReservationHandler struct {
	support.Deps
	Calendar *availability.Calendar
	Pricing  pricing.Calculator
}

// Handle prices the span, claims capacity and stores a pending reservation with an empty ledger
// account. Any failure leaves nothing behind.
func (h *CreateReservationHandler) Handle(ctx context.Context, cmd CreateReservationCommand) (*dto.Reservation, error) {
	var out dto.Reservation
	err := h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		item, err := unit.Items().ByID(ctx, inventory.ItemID(cmd.ItemID))
		if err != nil {
			return err
		}
		bookable, err := item.Bookable()
		if err != nil {
			return err
		}
		span, err := support.Span(bookable.Kind(), cmd.CheckIn, cmd.CheckOut, cmd.Slot)
		if err != nil {
			return err
		}
		if err := bookable.Validate(span, cmd.PartySize); err != nil {
			return err
		}

		units := bookable.UnitsFor(cmd.PartySize)
		_, windows, err := h.Calendar.Check(ctx, unit.Availability(), item.ID, span)
		if err != nil {
			return err
		}
		quote, err := support.Quote(ctx, h.Pricing, item, span, cmd.PartySize, windows)
		if err != nil {
			return err
		}

		now := h.Now()
		claim, err := h.Calendar.Claim(ctx, unit.Availability(), item.ID, span, units, now)
		if err != nil {
			return err
		}

		id := strings.TrimSpace(cmd.ReservationID)
		if id == "" {
			id = uuid.NewString()
		}
		res, err := reservation.New(reservation.CreateParams{
			ID:         reservation.ID(id),
			GuestID:    strings.TrimSpace(cmd.GuestID),
			Item:       bookable,
			Terms:      item.Payable(),
			Span:       span,
			PartySize:  cmd.PartySize,
			TotalPrice: quote.Total,
			ClaimID:    claim.ID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := unit.Reservations().Save(ctx, res); err != nil {
			return err
		}
		account := payment.OpenAccount(res.ID, res.TotalPrice, now)
		if err := unit.Payments().SaveAccount(ctx, account); err != nil {
			return err
		}
		out = dto.MapReservation(res)
		if err := h.Publish(ctx, unit, claim, res, account); err != nil {
			return err
		}
		h.Log().InfoContext(ctx, "reservation created",
			"reservation_id", res.ID, "item_id", res.ItemID, "span", res.Span.String(),
			"units", res.Units, "total", res.TotalPrice.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *CreateReservationHandler) Register(reg *commands.Registry) {
	commands.Register[CreateReservationCommand, *dto.Reservation](reg, h)
}

var (
	_ commands.Handler[CreateReservationCommand, *dto.Reservation] = (*CreateReservationHandler)(nil)
	_ middleware.IdempotentCommand                                 = CreateReservationCommand{}
	_ middleware.LockedCommand                                     = CreateReservationCommand{}
)
