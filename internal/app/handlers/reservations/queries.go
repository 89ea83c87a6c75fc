package reservations

import (
	"context"
	"errors"
	"fmt"

	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
)

const (
	getKey        = "reservation.get"
	listGuestKey  = "reservation.list_guest"
	listStatusKey = "reservation.list_status"
)

type GetReservationQuery struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

func (q GetReservationQuery) Key() string { return getKey }

type ListGuestReservationsQuery struct {
	GuestID string `json:"guest_id" validate:"required"`
}

func (q ListGuestReservationsQuery) Key() string { return listGuestKey }

// ListByStatusQuery feeds the sweeper; Limit 0 means the store default.
type ListByStatusQuery struct {
	Status string `json:"status" validate:"required"`
	Limit  int    `json:"limit" validate:"gte=0,lte=1000"`
}

func (q ListByStatusQuery) Key() string { return listStatusKey }

type QueryHandler struct {
	support.Deps
}

func (h *QueryHandler) Get(ctx context.Context, q GetReservationQuery) (dto.Reservation, error) {
	var out dto.Reservation
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := unit.Reservations().ByID(ctx, reservation.ID(q.ReservationID))
		if err != nil {
			return err
		}
		out = dto.MapReservation(res)
		account, err := unit.Payments().Account(ctx, res.ID)
		if errors.Is(err, payment.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Balance = &dto.BalanceLine{
			Collected: dto.MapMoney(account.NetCollected()),
			Remaining: dto.MapMoney(account.Remaining()),
		}
		return nil
	})
	return out, err
}

func (h *QueryHandler) ListGuest(ctx context.Context, q ListGuestReservationsQuery) (dto.ReservationCollection, error) {
	out := dto.ReservationCollection{Items: []dto.Reservation{}}
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		list, err := unit.Reservations().ListByGuest(ctx, q.GuestID)
		if err != nil {
			return err
		}
		for _, res := range list {
			out.Items = append(out.Items, dto.MapReservation(res))
		}
		return nil
	})
	return out, err
}

func (h *QueryHandler) ListByStatus(ctx context.Context, q ListByStatusQuery) (dto.ReservationCollection, error) {
	out := dto.ReservationCollection{Items: []dto.Reservation{}}
	status := reservation.Status(q.Status)
	if !status.Valid() {
		return out, fmt.Errorf("%w: unknown status %q", middleware.ErrInvalidInput, q.Status)
	}
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		list, err := unit.Reservations().ListByStatus(ctx, status, q.Limit)
		if err != nil {
			return err
		}
		for _, res := range list {
			out.Items = append(out.Items, dto.MapReservation(res))
		}
		return nil
	})
	return out, err
}

func (h *QueryHandler) Register(reg *queries.Registry) {
	queries.Register[GetReservationQuery, dto.Reservation](reg, queries.HandlerFunc[GetReservationQuery, dto.Reservation](h.Get))
	queries.Register[ListGuestReservationsQuery, dto.ReservationCollection](reg, queries.HandlerFunc[ListGuestReservationsQuery, dto.ReservationCollection](h.ListGuest))
	queries.Register[ListByStatusQuery, dto.ReservationCollection](reg, queries.HandlerFunc[ListByStatusQuery, dto.ReservationCollection](h.ListByStatus))
}
