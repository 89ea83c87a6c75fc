package support

import (
	"context"

	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/money"
)

// Retire gives a cancelled or expired reservation's capacity back and opens its ledger for refunds
// of up to entitled. The caller saves the reservation.
func (d Deps) Retire(ctx context.Context, unit uow.UnitOfWork, cal *availability.Calendar, res *reservation.Reservation, entitled money.Money) error {
	now := d.Now()
	claim, err := cal.Release(ctx, unit.Availability(), res.ClaimID, now)
	if err != nil {
		return err
	}
	account, err := unit.Payments().Account(ctx, res.ID)
	if err != nil {
		return err
	}
	if err := account.OpenRefunds(entitled, now); err != nil {
		return err
	}
	if err := res.OweRefund(account.RefundOwed(), now); err != nil {
		return err
	}
	if err := unit.Payments().SaveAccount(ctx, account); err != nil {
		return err
	}
	return d.Publish(ctx, unit, claim, account)
}
