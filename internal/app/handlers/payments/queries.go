package payments

import (
	"context"

	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	"staybook/internal/domain/reservation"
)

const balanceKey = "payment.balance"

type GetBalanceQuery struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

func (q GetBalanceQuery) Key() string { return balanceKey }

type BalanceHandler struct {
	support.Deps
}

func (h *BalanceHandler) Handle(ctx context.Context, q GetBalanceQuery) (dto.Balance, error) {
	var out dto.Balance
	err := h.Read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		id := reservation.ID(q.ReservationID)
		res, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		account, err := unit.Payments().Account(ctx, id)
		if err != nil {
			return err
		}
		payments, err := unit.Payments().ListPayments(ctx, id)
		if err != nil {
			return err
		}
		refunds, err := unit.Payments().ListRefunds(ctx, id)
		if err != nil {
			return err
		}
		out = dto.MapBalance(string(res.Status), account, payments, refunds)
		return nil
	})
	return out, err
}

func (h *BalanceHandler) Register(reg *queries.Registry) {
	queries.Register[GetBalanceQuery, dto.Balance](reg, h)
}

var _ queries.Handler[GetBalanceQuery, dto.Balance] = (*BalanceHandler)(nil)
