package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

var created = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func stayItem(t *testing.T, policy cancellation.Policy) *inventory.Item {
	t.Helper()
	item, err := inventory.NewItem(inventory.CreateParams{
		ID:      "stay-1",
		Host:    "host-1",
		Type:    inventory.TypeStay,
		Title:   "Loft",
		Pricing: pricing.Rules{BaseRate: money.Must(10000, "USD"), Unit: pricing.PerNight},
		Policy:  policy,
		Now:     created,
	})
	require.NoError(t, err)
	return item
}

func newStay(t *testing.T, policy cancellation.Policy) *Reservation {
	t.Helper()
	item := stayItem(t, policy)
	bookable, err := item.Bookable()
	require.NoError(t, err)
	dr, err := daterange.Parse("2024-06-15", "2024-06-18")
	require.NoError(t, err)
	r, err := New(CreateParams{
		ID:         "res-1",
		GuestID:    "guest-1",
		Item:       bookable,
		Terms:      item.Payable(),
		Span:       daterange.StaySpan(dr),
		PartySize:  2,
		TotalPrice: money.Must(30000, "USD"),
		ClaimID:    "claim-1",
		CreatedAt:  created,
	})
	require.NoError(t, err)
	return r
}

func TestNewReservationIsPending(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, uint32(1), r.Units)
	assert.Equal(t, inventory.HostID("host-1"), r.HostID)
	assert.Equal(t, time.Date(2024, 6, 15, 15, 0, 0, 0, time.UTC), r.StartsAt)
	assert.Equal(t, time.Date(2024, 6, 18, 11, 0, 0, 0, time.UTC), r.EndsAt)
	assert.Equal(t, created.Add(24*time.Hour), r.ConfirmBy())
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, "reservation.created", r.PendingEvents()[0].EventName())
}

func TestNewRejectsBadInput(t *testing.T) {
	item := stayItem(t, cancellation.Policy{})
	bookable, err := item.Bookable()
	require.NoError(t, err)
	dr, err := daterange.Parse("2024-06-15", "2024-06-16")
	require.NoError(t, err)
	base := CreateParams{
		ID: "r", GuestID: "g", Item: bookable, Terms: item.Payable(),
		Span: daterange.StaySpan(dr), PartySize: 1, TotalPrice: money.Must(100, "USD"), CreatedAt: created,
	}

	p := base
	p.GuestID = " "
	_, err = New(p)
	assert.ErrorIs(t, err, ErrGuestRequired)

	p = base
	p.PartySize = 0
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidParty)

	p = base
	p.TotalPrice = money.Zero("USD")
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	p = base
	p.Span = daterange.SlotSpan(dr.CheckIn, "10:00")
	_, err = New(p)
	assert.ErrorIs(t, err, inventory.ErrSlotNotAllowed)
}

func TestConfirmWithinDeadline(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	r.ClearEvents()
	require.NoError(t, r.Confirm("host-1", created.Add(23*time.Hour)))
	assert.Equal(t, StatusConfirmed, r.Status)
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, "reservation.confirmed", r.PendingEvents()[0].EventName())
}

func TestConfirmAtExactDeadlineSucceeds(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	require.NoError(t, r.Confirm("host-1", r.ConfirmBy()))
	assert.Equal(t, StatusConfirmed, r.Status)
}

func TestConfirmAfterDeadlineExpires(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	r.ClearEvents()
	err := r.Confirm("host-1", created.Add(25*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, StatusExpired, r.Status)
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, "reservation.expired", r.PendingEvents()[0].EventName())
}

func TestConfirmGuards(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.ErrorIs(t, r.Confirm("someone-else", created), ErrNotOwner)
	require.NoError(t, r.Confirm("host-1", created))
	assert.ErrorIs(t, r.Confirm("host-1", created), ErrInvalidTransition)
}

func TestExpireBeforeDeadlineRejected(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.ErrorIs(t, r.Expire(created.Add(time.Hour)), ErrInvalidTransition)
	require.NoError(t, r.Expire(created.Add(48*time.Hour)))
	assert.Equal(t, StatusExpired, r.Status)
	assert.ErrorIs(t, r.Expire(created.Add(72*time.Hour)), ErrInvalidTransition)
}

func TestMarkPaidRequiresConfirmed(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.True(t, r.CanAcceptPayment())
	assert.ErrorIs(t, r.MarkPaid(created), ErrInvalidTransition)
	require.NoError(t, r.Confirm("host-1", created))
	require.NoError(t, r.MarkPaid(created))
	assert.Equal(t, StatusPaid, r.Status)
	assert.False(t, r.CanAcceptPayment())
}

func TestGuestCancelPartialRefund(t *testing.T) {
	policy := cancellation.Policy{
		FullRefundIfCancelledBeforeHours: 168,
		PartialRefundWindowHours:         48,
		AllowPartialRefund:               true,
		PartialRefundPercent:             50,
	}
	r := newStay(t, policy)
	require.NoError(t, r.Confirm("host-1", created))
	require.NoError(t, r.MarkPaid(created))

	now := r.StartsAt.Add(-72 * time.Hour)
	refund, err := r.Cancel(ActorGuest, "guest-1", " changed plans ", money.Must(30000, "USD"), now)
	require.NoError(t, err)
	assert.Equal(t, money.Must(15000, "USD"), refund)
	assert.Equal(t, StatusCancelledByGuest, r.Status)
	assert.Equal(t, ActorGuest, r.CancelledBy)
	assert.Equal(t, "changed plans", r.CancelReason)
	assert.Equal(t, refund, r.RefundAmount)
}

func TestGuestCancelRefundCappedByCollected(t *testing.T) {
	r := newStay(t, cancellation.Policy{FullRefundIfCancelledBeforeHours: 24})
	refund, err := r.Cancel(ActorGuest, "guest-1", "", money.Zero("USD"), created)
	require.NoError(t, err)
	assert.True(t, refund.IsZero())
}

func TestHostCancelRefundsEverythingCollected(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	require.NoError(t, r.Confirm("host-1", created))
	refund, err := r.Cancel(ActorHost, "host-1", "double booked elsewhere", money.Must(12000, "USD"), r.StartsAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, money.Must(12000, "USD"), refund)
	assert.Equal(t, StatusCancelledByHost, r.Status)
}

func TestCancelGuards(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	_, err := r.Cancel(ActorGuest, "other-guest", "", money.Zero("USD"), created)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = r.Cancel(ActorHost, "other-host", "", money.Zero("USD"), created)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = r.Cancel(ActorSystem, "sweeper", "", money.Zero("USD"), created)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, r.Confirm("host-1", created))
	require.NoError(t, r.MarkPaid(created))
	_, err = r.Cancel(ActorHost, "host-1", "", money.Zero("USD"), created)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.Cancel(ActorGuest, "guest-1", "", money.Zero("USD"), created)
	require.NoError(t, err)
	_, err = r.Cancel(ActorGuest, "guest-1", "", money.Zero("USD"), created)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteIsIdempotent(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.ErrorIs(t, r.Complete(r.EndsAt), ErrInvalidTransition)
	require.NoError(t, r.Confirm("host-1", created))
	require.NoError(t, r.MarkPaid(created))
	assert.ErrorIs(t, r.Complete(r.EndsAt.Add(-time.Minute)), ErrInvalidTransition)

	require.NoError(t, r.Complete(r.EndsAt))
	assert.Equal(t, StatusCompleted, r.Status)
	r.ClearEvents()
	require.NoError(t, r.Complete(r.EndsAt.Add(time.Hour)))
	assert.Empty(t, r.PendingEvents())
}

func TestApplyRefundSubStates(t *testing.T) {
	r := newStay(t, cancellation.Policy{FullRefundIfCancelledBeforeHours: 24})
	assert.ErrorIs(t, r.ApplyRefund(money.Must(1, "USD"), money.Zero("USD"), created), ErrInvalidTransition)

	_, err := r.Cancel(ActorGuest, "guest-1", "", money.Must(30000, "USD"), created)
	require.NoError(t, err)

	require.NoError(t, r.ApplyRefund(money.Must(10000, "USD"), money.Must(20000, "USD"), created))
	assert.Equal(t, StatusPartiallyRefunded, r.Status)

	require.NoError(t, r.ApplyRefund(money.Must(30000, "USD"), money.Zero("USD"), created))
	assert.Equal(t, StatusRefunded, r.Status)

	assert.ErrorIs(t, r.ApplyRefund(money.Must(30000, "USD"), money.Zero("USD"), created), ErrInvalidTransition)
}

func TestExpiredReservationTakesRefunds(t *testing.T) {
	r := newStay(t, cancellation.Policy{})
	assert.False(t, r.Status.RefundsOpen())
	assert.ErrorIs(t, r.OweRefund(money.Must(5000, "USD"), created), ErrInvalidTransition)

	require.NoError(t, r.Expire(created.Add(48*time.Hour)))
	assert.True(t, r.Status.RefundsOpen())
	require.NoError(t, r.OweRefund(money.Must(5000, "USD"), created.Add(49*time.Hour)))
	assert.Equal(t, money.Must(5000, "USD"), r.RefundAmount)

	r.ClearEvents()
	require.NoError(t, r.ApplyRefund(money.Must(5000, "USD"), money.Zero("USD"), created.Add(50*time.Hour)))
	assert.Equal(t, StatusExpired, r.Status)
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, "reservation.refunded", r.PendingEvents()[0].EventName())
}

func TestSnapshotRoundTripKeepsLifecycleFields(t *testing.T) {
	r := newStay(t, cancellation.Policy{FullRefundIfCancelledBeforeHours: 24, PartialRefundWindowHours: 12, AllowPartialRefund: true})
	require.NoError(t, r.Confirm("host-1", created))
	r.Version = 3

	decoded, err := Decode(Encode(r))
	require.NoError(t, err)
	assert.Equal(t, r.Span, decoded.Span)
	assert.Equal(t, r.Status, decoded.Status)
	assert.Equal(t, r.Policy, decoded.Policy)
	assert.Equal(t, r.Deadline, decoded.Deadline)
	assert.Equal(t, r.TotalPrice, decoded.TotalPrice)
	assert.Equal(t, int64(3), decoded.Version)
	assert.Empty(t, decoded.PendingEvents())
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	s := Encode(newStay(t, cancellation.Policy{}))
	s.Status = "LOST"
	_, err := Decode(s)
	assert.Error(t, err)
}
