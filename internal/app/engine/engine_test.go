package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	"staybook/internal/app/engine"
	availabilityapp "staybook/internal/app/handlers/availability"
	itemsapp "staybook/internal/app/handlers/items"
	paymentsapp "staybook/internal/app/handlers/payments"
	reservationsapp "staybook/internal/app/handlers/reservations"
	"staybook/internal/app/middleware"
	"staybook/internal/app/policies"
	"staybook/internal/app/queries"
	"staybook/internal/app/sweeper"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/infra/storage/memory"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *policies.FixedClock
	db     *memory.DB
	engine *engine.Engine
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	db := memory.NewDB()
	clock := &policies.FixedClock{T: now}
	eng := engine.New(engine.Options{
		UoWFactory:  memory.NewFactory(db),
		Locker:      memory.NewLocker(),
		Idempotency: memory.NewIdempotencyStore(time.Hour),
		Flusher:     db,
		Clock:       clock,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &harness{t: t, ctx: context.Background(), clock: clock, db: db, engine: eng}
}

func (h *harness) stay(id string, rate int64, policy cancellation.Policy, weekly int) {
	h.t.Helper()
	_, err := h.engine.Commands.Dispatch(h.ctx, itemsapp.RegisterItemCommand{
		ID: id, HostID: "host-1", Type: "STAY", Currency: "USD", BaseRate: rate,
		WeeklyDiscountPercent: weekly, Policy: policy, MaxParty: 4,
	})
	require.NoError(h.t, err)
}

func (h *harness) open(id string, capacity uint32, from, to string, slots ...string) {
	h.t.Helper()
	_, err := commands.Dispatch[availabilityapp.SetAvailabilityCommand, *dto.WindowsUpdate](h.ctx, h.engine.Commands, availabilityapp.SetAvailabilityCommand{
		ItemID: id, HostID: "host-1", From: from, To: to, Slots: slots, Capacity: capacity,
	})
	require.NoError(h.t, err)
}

func (h *harness) book(item, in, out string, party int) (*dto.Reservation, error) {
	return commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CreateReservationCommand{
		GuestID: "guest-1", ItemID: item, CheckIn: in, CheckOut: out, PartySize: party,
	})
}

func (h *harness) pay(resID string, amount int64) (*dto.Payment, error) {
	return commands.Dispatch[paymentsapp.RecordPaymentCommand, *dto.Payment](h.ctx, h.engine.Commands, paymentsapp.RecordPaymentCommand{
		ReservationID: resID, Amount: amount, Currency: "USD", Method: "CARD",
	})
}

func (h *harness) get(resID string) dto.Reservation {
	h.t.Helper()
	res, err := queries.Ask[reservationsapp.GetReservationQuery, dto.Reservation](h.ctx, h.engine.Queries, reservationsapp.GetReservationQuery{ReservationID: resID})
	require.NoError(h.t, err)
	return res
}

func (h *harness) free(item, in, out string) uint32 {
	h.t.Helper()
	res, err := queries.Ask[availabilityapp.CheckAvailabilityQuery, dto.AvailabilityCheck](h.ctx, h.engine.Queries, availabilityapp.CheckAvailabilityQuery{
		ItemID: item, CheckIn: in, CheckOut: out, PartySize: 1,
	})
	require.NoError(h.t, err)
	return res.Free
}

func TestConcurrentBookingsOfLastUnit(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 1, "2024-06-15", "2024-06-16")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        []*dto.Reservation
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok = append(ok, res)
			case errors.Is(err, availability.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Len(t, ok, 1)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, string(reservation.StatusPending), ok[0].Status)
	assert.Zero(t, h.free("item-1", "2024-06-15", "2024-06-16"))
}

func TestNoDoubleBookingUnderLoad(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 3, "2024-06-10", "2024-06-20")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// overlapping spans all cover 06-14
			in := fmt.Sprintf("2024-06-%02d", 11+i%4)
			_, err := h.book("item-1", in, "2024-06-15", 1)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, availability.ErrConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, success)
	cal, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](h.ctx, h.engine.Queries, availabilityapp.GetCalendarQuery{
		ItemID: "item-1", From: "2024-06-10", To: "2024-06-20",
	})
	require.NoError(t, err)
	for _, w := range cal.Windows {
		assert.LessOrEqual(t, w.Claimed, w.Capacity, w.Date)
	}
}

func TestPaymentCannotExceedBalance(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 1, "2024-06-15", "2024-06-16")
	res, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.TotalPrice.Amount)

	_, err = h.pay(res.ID, 5000)
	require.NoError(t, err)
	_, err = h.pay(res.ID, 6000)
	assert.ErrorIs(t, err, payment.ErrExceedsBalance)

	bal, err := queries.Ask[paymentsapp.GetBalanceQuery, dto.Balance](h.ctx, h.engine.Queries, paymentsapp.GetBalanceQuery{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.Remaining.Amount)
	assert.Len(t, bal.Payments, 1)
}

func TestEarlyGuestCancelRefundsEverything(t *testing.T) {
	start := time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)
	h := newHarness(t, start.Add(-200*time.Hour))
	h.stay("item-1", 10000, cancellation.Policy{FullRefundIfCancelledBeforeHours: 168}, 0)
	h.open("item-1", 1, "2024-07-01", "2024-07-03")
	res, err := h.book("item-1", "2024-07-01", "2024-07-03", 2)
	require.NoError(t, err)

	p1, err := h.pay(res.ID, 12000)
	require.NoError(t, err)
	p2, err := h.pay(res.ID, 8000)
	require.NoError(t, err)

	confirmed, err := commands.Dispatch[reservationsapp.ConfirmReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.ConfirmReservationCommand{ReservationID: res.ID, HostID: "host-1"})
	require.NoError(t, err)
	assert.Equal(t, string(reservation.StatusPaid), confirmed.Status)

	cancelled, err := commands.Dispatch[reservationsapp.CancelReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CancelReservationCommand{
		ReservationID: res.ID, Actor: "GUEST", ActorID: "guest-1", Reason: "plans changed",
	})
	require.NoError(t, err)
	assert.Equal(t, string(reservation.StatusCancelledByGuest), cancelled.Status)
	require.NotNil(t, cancelled.RefundAmount)
	assert.Equal(t, int64(20000), cancelled.RefundAmount.Amount)
	assert.EqualValues(t, 1, h.free("item-1", "2024-07-01", "2024-07-03"))

	for _, p := range []*dto.Payment{p1, p2} {
		_, err := commands.Dispatch[paymentsapp.RecordRefundCommand, *dto.Refund](h.ctx, h.engine.Commands, paymentsapp.RecordRefundCommand{
			PaymentID: p.ID, Amount: p.Amount.Amount, Kind: "FULL",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, string(reservation.StatusRefunded), h.get(res.ID).Status)

	_, err = commands.Dispatch[paymentsapp.RecordRefundCommand, *dto.Refund](h.ctx, h.engine.Commands, paymentsapp.RecordRefundCommand{
		PaymentID: p1.ID, Amount: 1, Kind: "PARTIAL",
	})
	assert.Error(t, err)
}

func (h *harness) payPending(resID string, amount int64) *dto.Payment {
	h.t.Helper()
	p, err := commands.Dispatch[paymentsapp.RecordPaymentCommand, *dto.Payment](h.ctx, h.engine.Commands, paymentsapp.RecordPaymentCommand{
		ReservationID: resID, Amount: amount, Currency: "USD", Method: "CARD", Status: "PENDING",
	})
	require.NoError(h.t, err)
	return p
}

func (h *harness) settle(paymentID string) {
	h.t.Helper()
	p, err := commands.Dispatch[paymentsapp.SettlePaymentCommand, *dto.Payment](h.ctx, h.engine.Commands, paymentsapp.SettlePaymentCommand{
		PaymentID: paymentID, Succeeded: true, TransactionID: "tx-" + paymentID,
	})
	require.NoError(h.t, err)
	require.Equal(h.t, string(payment.StatusCompleted), p.Status)
}

func (h *harness) refund(paymentID string, amount int64, kind string) error {
	_, err := commands.Dispatch[paymentsapp.RecordRefundCommand, *dto.Refund](h.ctx, h.engine.Commands, paymentsapp.RecordRefundCommand{
		PaymentID: paymentID, Amount: amount, Kind: kind,
	})
	return err
}

func (h *harness) balance(resID string) dto.Balance {
	h.t.Helper()
	b, err := queries.Ask[paymentsapp.GetBalanceQuery, dto.Balance](h.ctx, h.engine.Queries, paymentsapp.GetBalanceQuery{ReservationID: resID})
	require.NoError(h.t, err)
	return b
}

func TestPaymentSettledAfterCancelIsRefundable(t *testing.T) {
	start := time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)
	h := newHarness(t, start.Add(-14*24*time.Hour))
	h.stay("item-1", 10000, cancellation.Policy{FullRefundIfCancelledBeforeHours: 168}, 0)
	h.open("item-1", 1, "2024-07-01", "2024-07-02")
	res, err := h.book("item-1", "2024-07-01", "2024-07-02", 1)
	require.NoError(t, err)
	p := h.payPending(res.ID, 10000)

	cancelled, err := commands.Dispatch[reservationsapp.CancelReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CancelReservationCommand{
		ReservationID: res.ID, Actor: "GUEST", ActorID: "guest-1",
	})
	require.NoError(t, err)
	require.NotNil(t, cancelled.RefundAmount)
	assert.Zero(t, cancelled.RefundAmount.Amount)
	assert.Zero(t, h.balance(res.ID).RefundableLeft.Amount)

	h.settle(p.ID)
	got := h.get(res.ID)
	require.NotNil(t, got.RefundAmount)
	assert.Equal(t, int64(10000), got.RefundAmount.Amount)
	assert.Equal(t, int64(10000), h.balance(res.ID).RefundableLeft.Amount)

	require.NoError(t, h.refund(p.ID, 10000, "FULL"))
	assert.Equal(t, string(reservation.StatusRefunded), h.get(res.ID).Status)
	assert.Zero(t, h.balance(res.ID).NetCollected.Amount)
}

func TestPaymentSettledAfterExpiryIsRefundable(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 1, "2024-06-15", "2024-06-16")
	res, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)
	early, err := h.pay(res.ID, 4000)
	require.NoError(t, err)
	late := h.payPending(res.ID, 6000)

	h.clock.Advance(25 * time.Hour)
	expired, err := commands.Dispatch[reservationsapp.ExpireReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.ExpireReservationCommand{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, string(reservation.StatusExpired), expired.Status)
	assert.Equal(t, int64(4000), h.balance(res.ID).RefundableLeft.Amount)

	h.settle(late.ID)
	b := h.balance(res.ID)
	assert.Equal(t, int64(10000), b.Collected.Amount)
	assert.Equal(t, int64(10000), b.RefundableLeft.Amount)

	require.NoError(t, h.refund(early.ID, 4000, "FULL"))
	require.NoError(t, h.refund(late.ID, 6000, "FULL"))
	got := h.get(res.ID)
	assert.Equal(t, string(reservation.StatusExpired), got.Status)
	require.NotNil(t, got.RefundAmount)
	assert.Equal(t, int64(10000), got.RefundAmount.Amount)
	assert.Zero(t, h.balance(res.ID).NetCollected.Amount)
	assert.ErrorIs(t, h.refund(late.ID, 1, "PARTIAL"), payment.ErrInvalidTransition)
}

func TestConfirmAfterDeadlineExpiresAndReleases(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 1, "2024-06-15", "2024-06-16")
	res, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)
	assert.Zero(t, h.free("item-1", "2024-06-15", "2024-06-16"))

	h.clock.Advance(25 * time.Hour)
	_, err = commands.Dispatch[reservationsapp.ConfirmReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.ConfirmReservationCommand{ReservationID: res.ID, HostID: "host-1"})
	assert.ErrorIs(t, err, reservation.ErrExpired)

	assert.Equal(t, string(reservation.StatusExpired), h.get(res.ID).Status)
	assert.EqualValues(t, 1, h.free("item-1", "2024-06-15", "2024-06-16"))

	_, err = h.book("item-1", "2024-06-15", "2024-06-16", 1)
	assert.NoError(t, err)
}

func TestWeeklyDiscountIsPercentage(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 10)
	h.open("item-1", 1, "2024-06-10", "2024-06-20")

	q, err := queries.Ask[availabilityapp.QuotePriceQuery, dto.Quote](h.ctx, h.engine.Queries, availabilityapp.QuotePriceQuery{
		ItemID: "item-1", CheckIn: "2024-06-10", CheckOut: "2024-06-17", PartySize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(70000), q.Subtotal.Amount)
	assert.Equal(t, int64(63000), q.Total.Amount)

	res, err := h.book("item-1", "2024-06-10", "2024-06-17", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(63000), res.TotalPrice.Amount)
}

func TestExperienceClaimsSeatsPerGuest(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	_, err := h.engine.Commands.Dispatch(h.ctx, itemsapp.RegisterItemCommand{
		ID: "tour-1", HostID: "host-1", Type: "EXPERIENCE", Currency: "EUR", BaseRate: 2500, MaxParty: 8,
	})
	require.NoError(t, err)
	h.open("tour-1", 5, "2024-06-15", "2024-06-16", "10:00", "14:00")

	res, err := commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CreateReservationCommand{
		GuestID: "guest-1", ItemID: "tour-1", CheckIn: "2024-06-15", Slot: "10:00", PartySize: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Units)
	assert.Equal(t, int64(7500), res.TotalPrice.Amount)

	_, err = commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CreateReservationCommand{
		GuestID: "guest-2", ItemID: "tour-1", CheckIn: "2024-06-15", Slot: "10:00", PartySize: 3,
	})
	assert.ErrorIs(t, err, availability.ErrConflict)

	_, err = commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, reservationsapp.CreateReservationCommand{
		GuestID: "guest-2", ItemID: "tour-1", CheckIn: "2024-06-15", Slot: "14:00", PartySize: 3,
	})
	assert.NoError(t, err)
}

func TestSetAvailabilityGuards(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 2, "2024-06-15", "2024-06-16")
	_, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)
	_, err = h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)

	_, err = h.engine.Commands.Dispatch(h.ctx, availabilityapp.SetAvailabilityCommand{
		ItemID: "item-1", HostID: "host-1", Dates: []string{"2024-06-15"}, Capacity: 1,
	})
	assert.ErrorIs(t, err, availability.ErrCapacityBelowClaimed)

	_, err = h.engine.Commands.Dispatch(h.ctx, availabilityapp.SetAvailabilityCommand{
		ItemID: "item-1", HostID: "intruder", Dates: []string{"2024-06-20"}, Capacity: 1,
	})
	assert.ErrorIs(t, err, inventory.ErrNotOwner)

	_, err = h.engine.Commands.Dispatch(h.ctx, availabilityapp.SetAvailabilityCommand{
		ItemID: "item-1", HostID: "host-1", Dates: []string{"2024-06-20"}, Slots: []string{"10:00"}, Capacity: 1,
	})
	assert.ErrorIs(t, err, inventory.ErrSlotNotAllowed)

	upd, err := commands.Dispatch[availabilityapp.SetAvailabilityCommand, *dto.WindowsUpdate](h.ctx, h.engine.Commands, availabilityapp.SetAvailabilityCommand{
		ItemID: "item-1", HostID: "host-1", Weekdays: []string{"sat", "Sunday"},
		RecurFrom: "2024-07-01", RecurTo: "2024-08-01", Capacity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, upd.Updated)
}

func TestInvalidCommandRejectedBeforeHandler(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	_, err := h.book("", "2024-06-15", "2024-06-16", 0)
	assert.ErrorIs(t, err, middleware.ErrInvalidInput)
}

func TestIdempotentCreateReplaysResult(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 2, "2024-06-15", "2024-06-16")
	cmd := reservationsapp.CreateReservationCommand{
		GuestID: "guest-1", ItemID: "item-1", CheckIn: "2024-06-15", CheckOut: "2024-06-16", PartySize: 1,
		IdempotencyKeyV: "req-42",
	}
	first, err := commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, cmd)
	require.NoError(t, err)
	second, err := commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](h.ctx, h.engine.Commands, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, h.free("item-1", "2024-06-15", "2024-06-16"))
}

func TestSweeperExpiresAndCompletes(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 2, "2024-06-02", "2024-06-04")

	stale, err := h.book("item-1", "2024-06-02", "2024-06-03", 1)
	require.NoError(t, err)
	paid, err := h.book("item-1", "2024-06-02", "2024-06-03", 1)
	require.NoError(t, err)
	_, err = h.pay(paid.ID, 10000)
	require.NoError(t, err)
	_, err = h.engine.Commands.Dispatch(h.ctx, reservationsapp.ConfirmReservationCommand{ReservationID: paid.ID, HostID: "host-1"})
	require.NoError(t, err)

	h.clock.Advance(3 * 24 * time.Hour)
	sw := &sweeper.Sweeper{Bus: h.engine.Commands, UoWFactory: memory.NewFactory(h.db), Clock: h.clock}
	result, err := sw.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Result{Expired: 1, Completed: 1}, result)
	assert.Equal(t, string(reservation.StatusExpired), h.get(stale.ID).Status)
	assert.Equal(t, string(reservation.StatusCompleted), h.get(paid.ID).Status)

	// completed stays keep their claim; only the expired one gave its unit back
	assert.EqualValues(t, 1, h.free("item-1", "2024-06-02", "2024-06-03"))
}

func TestEventsReachOutbox(t *testing.T) {
	h := newHarness(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	h.stay("item-1", 10000, cancellation.Policy{}, 0)
	h.open("item-1", 1, "2024-06-15", "2024-06-16")
	_, err := h.book("item-1", "2024-06-15", "2024-06-16", 1)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, rec := range h.db.OutboxRecords() {
		names[rec.Name] = true
	}
	assert.True(t, names["availability.windows_updated"])
	assert.True(t, names["availability.claimed"])
	assert.True(t, names["reservation.created"])
}
