package reservations

import (
	"context"
	"errors"
	"strings"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/reservation"
)

const (
	confirmKey  = "reservation.confirm"
	cancelKey   = "reservation.cancel"
	completeKey = "reservation.complete"
	expireKey   = "reservation.expire"
)

type ConfirmReservationCommand struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	HostID        string `json:"host_id" validate:"required"`
}

func (c ConfirmReservationCommand) Key() string { return confirmKey }

func (c ConfirmReservationCommand) LockKeys() []string {
	return []string{support.ReservationLock(c.ReservationID)}
}

type CancelReservationCommand struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	Actor         string `json:"actor" validate:"required,oneof=GUEST HOST"`
	ActorID       string `json:"actor_id" validate:"required"`
	Reason        string `json:"reason" validate:"max=500"`
}

func (c CancelReservationCommand) Key() string { return cancelKey }

func (c CancelReservationCommand) LockKeys() []string {
	return []string{support.ReservationLock(c.ReservationID)}
}

type CompleteReservationCommand struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

func (c CompleteReservationCommand) Key() string { return completeKey }

func (c CompleteReservationCommand) LockKeys() []string {
	return []string{support.ReservationLock(c.ReservationID)}
}

// ExpireReservationCommand is issued by the sweeper for pending reservations past their deadline.
type ExpireReservationCommand struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

func (c ExpireReservationCommand) Key() string { return expireKey }

func (c ExpireReservationCommand) LockKeys() []string {
	return []string{support.ReservationLock(c.ReservationID)}
}

// LifecycleHandler drives every transition after creation. Each one that retires the reservation
// gives its capacity back and opens its refunds in the same unit of work.
type LifecycleHandler struct {
	support.Deps
	Calendar *availability.Calendar
}

func (h *LifecycleHandler) Confirm(ctx context.Context, cmd ConfirmReservationCommand) (*dto.Reservation, error) {
	return h.transition(ctx, cmd.ReservationID, func(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
		now := h.Now()
		err := res.Confirm(inventory.HostID(strings.TrimSpace(cmd.HostID)), now)
		if errors.Is(err, reservation.ErrExpired) {
			if retErr := h.expired(ctx, unit, res); retErr != nil {
				return retErr
			}
			return uow.KeepChanges(err)
		}
		if err != nil {
			return err
		}
		account, err := unit.Payments().Account(ctx, res.ID)
		if err != nil {
			return err
		}
		if account.FullyPaid() {
			return res.MarkPaid(now)
		}
		return nil
	})
}

func (h *LifecycleHandler) Cancel(ctx context.Context, cmd CancelReservationCommand) (*dto.Reservation, error) {
	return h.transition(ctx, cmd.ReservationID, func(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
		now := h.Now()
		account, err := unit.Payments().Account(ctx, res.ID)
		if err != nil {
			return err
		}
		actor := reservation.Actor(cmd.Actor)
		_, fraction := res.RefundFor(actor, account.NetCollected(), now)
		if _, err := res.Cancel(actor, strings.TrimSpace(cmd.ActorID), cmd.Reason, account.NetCollected(), now); err != nil {
			return err
		}
		return h.Retire(ctx, unit, h.Calendar, res, fraction.Apply(res.TotalPrice))
	})
}

func (h *LifecycleHandler) Complete(ctx context.Context, cmd CompleteReservationCommand) (*dto.Reservation, error) {
	return h.transition(ctx, cmd.ReservationID, func(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
		now := h.Now()
		if res.DeadlinePassed(now) {
			if err := res.Expire(now); err != nil {
				return err
			}
			if err := h.expired(ctx, unit, res); err != nil {
				return err
			}
			return uow.KeepChanges(reservation.ErrExpired)
		}
		return res.Complete(now)
	})
}

func (h *LifecycleHandler) Expire(ctx context.Context, cmd ExpireReservationCommand) (*dto.Reservation, error) {
	return h.transition(ctx, cmd.ReservationID, func(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
		if err := res.Expire(h.Now()); err != nil {
			return err
		}
		return h.expired(ctx, unit, res)
	})
}

// transition loads the reservation, applies fn and stores the result with its events. fn may return
// a KeepChanges error, in which case the reservation is still saved.
func (h *LifecycleHandler) transition(ctx context.Context, id string, fn func(context.Context, uow.UnitOfWork, *reservation.Reservation) error) (*dto.Reservation, error) {
	var out dto.Reservation
	err := h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := unit.Reservations().ByID(ctx, reservation.ID(id))
		if err != nil {
			return err
		}
		from := res.Status
		fnErr := fn(ctx, unit, res)
		if fnErr != nil && !uow.ChangesKept(fnErr) {
			return fnErr
		}
		if err := unit.Reservations().Save(ctx, res); err != nil {
			return err
		}
		if err := h.Publish(ctx, unit, res); err != nil {
			return err
		}
		if from != res.Status {
			h.Log().InfoContext(ctx, "reservation transition",
				"reservation_id", res.ID, "item_id", res.ItemID, "from", from, "status", res.Status)
		}
		out = dto.MapReservation(res)
		return fnErr
	})
	if err != nil && !uow.ChangesKept(err) {
		return nil, err
	}
	return &out, err
}

// expired retires a reservation the host never confirmed. Whatever the guest paid is owed back in full.
func (h *LifecycleHandler) expired(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
	return h.Retire(ctx, unit, h.Calendar, res, res.TotalPrice)
}

func (h *LifecycleHandler) Register(reg *commands.Registry) {
	commands.Register[ConfirmReservationCommand, *dto.Reservation](reg, commands.HandlerFunc[ConfirmReservationCommand, *dto.Reservation](h.Confirm))
	commands.Register[CancelReservationCommand, *dto.Reservation](reg, commands.HandlerFunc[CancelReservationCommand, *dto.Reservation](h.Cancel))
	commands.Register[CompleteReservationCommand, *dto.Reservation](reg, commands.HandlerFunc[CompleteReservationCommand, *dto.Reservation](h.Complete))
	commands.Register[ExpireReservationCommand, *dto.Reservation](reg, commands.HandlerFunc[ExpireReservationCommand, *dto.Reservation](h.Expire))
}

var (
	_ middleware.LockedCommand = ConfirmReservationCommand{}
	_ middleware.LockedCommand = CancelReservationCommand{}
	_ middleware.LockedCommand = CompleteReservationCommand{}
	_ middleware.LockedCommand = ExpireReservationCommand{}
)
