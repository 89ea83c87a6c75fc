package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/money"
)

const (
	recordKey = "payment.record"
	settleKey = "payment.settle"
	refundKey = "payment.refund"
)

type RecordPaymentCommand struct {
	ReservationID   string `json:"reservation_id" validate:"required"`
	PaymentID       string `json:"payment_id" validate:"omitempty,max=64"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	Currency        string `json:"currency" validate:"required,len=3"`
	Method          string `json:"method" validate:"required"`
	TransactionID   string `json:"transaction_id" validate:"max=128"`
	Status          string `json:"status" validate:"omitempty,oneof=PENDING COMPLETED"`
	IdempotencyKeyV string `json:"-"`
}

func (c RecordPaymentCommand) Key() string { return recordKey }

func (c RecordPaymentCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c RecordPaymentCommand) ResultPrototype() any { return &dto.Payment{} }

func (c RecordPaymentCommand) LockKeys() []string {
	return []string{support.ReservationLock(c.ReservationID)}
}

type SettlePaymentCommand struct {
	PaymentID     string `json:"payment_id" validate:"required"`
	Succeeded     bool   `json:"succeeded"`
	TransactionID string `json:"transaction_id" validate:"max=128"`
}

func (c SettlePaymentCommand) Key() string { return settleKey }

func (c SettlePaymentCommand) LockKeys() []string { return []string{support.PaymentLock(c.PaymentID)} }

type RecordRefundCommand struct {
	PaymentID       string `json:"payment_id" validate:"required"`
	RefundID        string `json:"refund_id" validate:"omitempty,max=64"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	Kind            string `json:"kind" validate:"required,oneof=FULL PARTIAL"`
	Reason          string `json:"reason" validate:"max=500"`
	IdempotencyKeyV string `json:"-"`
}

func (c RecordRefundCommand) Key() string { return refundKey }

func (c RecordRefundCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c RecordRefundCommand) ResultPrototype() any { return &dto.Refund{} }

func (c RecordRefundCommand) LockKeys() []string { return []string{support.PaymentLock(c.PaymentID)} }

// LedgerHandler writes payments and refunds. The reservation's account is read and saved in every
// command, so its version orders concurrent ledger writes.
type LedgerHandler struct {
	support.Deps
	Calendar *availability.Calendar
}

func (h *LedgerHandler) Record(ctx context.Context, cmd RecordPaymentCommand) (*dto.Payment, error) {
	method, err := payment.ParseMethod(cmd.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", middleware.ErrInvalidInput, err)
	}
	amount, err := money.New(cmd.Amount, cmd.Currency)
	if err != nil {
		return nil, err
	}
	var out dto.Payment
	err = h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.Now()
		res, err := unit.Reservations().ByID(ctx, reservation.ID(cmd.ReservationID))
		if err != nil {
			return err
		}
		if res.DeadlinePassed(now) {
			return h.expire(ctx, unit, res)
		}
		if !res.CanAcceptPayment() {
			return fmt.Errorf("%w: payment while %s", reservation.ErrInvalidTransition, res.Status)
		}
		account, err := unit.Payments().Account(ctx, res.ID)
		if err != nil {
			return err
		}
		id := strings.TrimSpace(cmd.PaymentID)
		if id == "" {
			id = uuid.NewString()
		}
		p, err := account.RecordPayment(payment.RecordParams{
			ID:            payment.ID(id),
			Amount:        amount,
			Method:        method,
			TransactionID: cmd.TransactionID,
			Status:        payment.Status(strings.ToUpper(cmd.Status)),
			Now:           now,
		})
		if err != nil {
			return err
		}
		if err := unit.Payments().SavePayment(ctx, p); err != nil {
			return err
		}
		if err := h.settleReservation(ctx, unit, res, account); err != nil {
			return err
		}
		out = dto.MapPayment(p)
		h.Log().InfoContext(ctx, "payment recorded",
			"reservation_id", res.ID, "payment_id", p.ID, "amount", p.Amount.String(), "status", p.Status,
			"remaining", account.Remaining().String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *LedgerHandler) Settle(ctx context.Context, cmd SettlePaymentCommand) (*dto.Payment, error) {
	var out dto.Payment
	err := h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.Now()
		p, err := unit.Payments().PaymentByID(ctx, payment.ID(cmd.PaymentID))
		if err != nil {
			return err
		}
		res, err := unit.Reservations().ByID(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		account, err := unit.Payments().Account(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		if err := account.Settle(p, cmd.Succeeded, cmd.TransactionID, now); err != nil {
			return err
		}
		if err := unit.Payments().SavePayment(ctx, p); err != nil {
			return err
		}
		if err := h.settleReservation(ctx, unit, res, account); err != nil {
			return err
		}
		out = dto.MapPayment(p)
		h.Log().InfoContext(ctx, "payment settled", "reservation_id", res.ID, "payment_id", p.ID, "status", p.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *LedgerHandler) Refund(ctx context.Context, cmd RecordRefundCommand) (*dto.Refund, error) {
	var out dto.Refund
	err := h.Write(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.Now()
		p, err := unit.Payments().PaymentByID(ctx, payment.ID(cmd.PaymentID))
		if err != nil {
			return err
		}
		amount := money.Money{Amount: cmd.Amount, Currency: p.Amount.Currency}
		res, err := unit.Reservations().ByID(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.RefundsOpen() {
			return fmt.Errorf("%w: reservation is %s", payment.ErrRefundsClosed, res.Status)
		}
		account, err := unit.Payments().Account(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		id := strings.TrimSpace(cmd.RefundID)
		if id == "" {
			id = uuid.NewString()
		}
		refund, err := account.RecordRefund(p, payment.RefundParams{
			ID:     payment.RefundID(id),
			Amount: amount,
			Kind:   payment.RefundKind(strings.ToUpper(cmd.Kind)),
			Reason: cmd.Reason,
			Now:    now,
		})
		if err != nil {
			return err
		}
		if err := unit.Payments().SavePayment(ctx, p); err != nil {
			return err
		}
		if err := unit.Payments().AddRefund(ctx, refund); err != nil {
			return err
		}
		if err := unit.Payments().SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := res.ApplyRefund(account.Refunded, account.NetCollected(), now); err != nil {
			return err
		}
		if err := unit.Reservations().Save(ctx, res); err != nil {
			return err
		}
		if err := h.Publish(ctx, unit, account, res); err != nil {
			return err
		}
		out = dto.MapRefund(refund)
		h.Log().InfoContext(ctx, "refund recorded",
			"reservation_id", res.ID, "payment_id", p.ID, "amount", refund.Amount.String(), "kind", refund.Kind, "status", res.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// settleReservation saves the account and brings the reservation in line with it: a confirmed
// reservation whose total is covered becomes paid, and a retired one owes back what settled late.
func (h *LedgerHandler) settleReservation(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation, account *payment.Account) error {
	if err := unit.Payments().SaveAccount(ctx, account); err != nil {
		return err
	}
	changed := false
	switch {
	case account.FullyPaid() && res.Status == reservation.StatusConfirmed:
		if err := res.MarkPaid(h.Now()); err != nil {
			return err
		}
		changed = true
	case res.Status.RefundsOpen() && res.RefundAmount != account.RefundOwed():
		if err := res.OweRefund(account.RefundOwed(), h.Now()); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		if err := unit.Reservations().Save(ctx, res); err != nil {
			return err
		}
	}
	return h.Publish(ctx, unit, account, res)
}

// expire retires a pending reservation found past its deadline while taking a payment.
func (h *LedgerHandler) expire(ctx context.Context, unit uow.UnitOfWork, res *reservation.Reservation) error {
	if err := res.Expire(h.Now()); err != nil {
		return err
	}
	if err := h.Retire(ctx, unit, h.Calendar, res, res.TotalPrice); err != nil {
		return err
	}
	if err := unit.Reservations().Save(ctx, res); err != nil {
		return err
	}
	if err := h.Publish(ctx, unit, res); err != nil {
		return err
	}
	return uow.KeepChanges(reservation.ErrExpired)
}

func (h *LedgerHandler) Register(reg *commands.Registry) {
	commands.Register[RecordPaymentCommand, *dto.Payment](reg, commands.HandlerFunc[RecordPaymentCommand, *dto.Payment](h.Record))
	commands.Register[SettlePaymentCommand, *dto.Payment](reg, commands.HandlerFunc[SettlePaymentCommand, *dto.Payment](h.Settle))
	commands.Register[RecordRefundCommand, *dto.Refund](reg, commands.HandlerFunc[RecordRefundCommand, *dto.Refund](h.Refund))
}

var (
	_ middleware.IdempotentCommand = RecordPaymentCommand{}
	_ middleware.IdempotentCommand = RecordRefundCommand{}
	_ middleware.LockedCommand     = SettlePaymentCommand{}
)
