package cancellation

import (
	"errors"
	"time"

	"staybook/internal/domain/shared/money"
)

// DefaultPartialRefundPercent applies when a policy allows partial refunds without naming a percent.
const DefaultPartialRefundPercent = 50

var ErrInvalidPolicy = errors.New("cancellation: invalid policy")

// Policy is snapshotted onto a reservation at booking time.
type Policy struct {
	FullRefundIfCancelledBeforeHours uint32 `json:"full_refund_before_hours" bson:"full_refund_before_hours"`
	PartialRefundWindowHours         uint32 `json:"partial_refund_window_hours" bson:"partial_refund_window_hours"`
	AllowPartialRefund               bool   `json:"allow_partial_refund" bson:"allow_partial_refund"`
	PartialRefundPercent             uint8  `json:"partial_refund_percent,omitempty" bson:"partial_refund_percent,omitempty"`
}

// Validate rejects a partial window that ends before the full-refund threshold starts.
func (p Policy) Validate() error {
	if p.PartialRefundPercent > 100 {
		return ErrInvalidPolicy
	}
	if p.AllowPartialRefund && p.PartialRefundWindowHours > p.FullRefundIfCancelledBeforeHours {
		return ErrInvalidPolicy
	}
	return nil
}

func (p Policy) partialPercent() int64 {
	if p.PartialRefundPercent == 0 {
		return DefaultPartialRefundPercent
	}
	return int64(p.PartialRefundPercent)
}

// Fraction is an exact rational refund share in [0, 1].
type Fraction struct {
	Num int64
	Den int64
}

var (
	None = Fraction{Num: 0, Den: 1}
	Full = Fraction{Num: 1, Den: 1}
)

// Percent builds a fraction from an integer percentage.
func Percent(p int64) Fraction {
	if p <= 0 {
		return None
	}
	if p >= 100 {
		return Full
	}
	return Fraction{Num: p, Den: 100}
}

func (f Fraction) IsZero() bool { return f.Num == 0 }

func (f Fraction) IsFull() bool { return f.Den != 0 && f.Num == f.Den }

// Less reports f < other.
func (f Fraction) Less(other Fraction) bool {
	return f.Num*other.Den < other.Num*f.Den
}

// Float is for display only; money math uses Apply.
func (f Fraction) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// Apply returns floor(amount * f).
func (f Fraction) Apply(m money.Money) money.Money {
	return m.MulDivFloor(f.Num, f.Den)
}

// RefundableFraction decides the refund share from the time left before the reservation starts.
// It never reads the clock.
func RefundableFraction(p Policy, now, start time.Time) Fraction {
	left := start.Sub(now)
	if left >= hours(p.FullRefundIfCancelledBeforeHours) {
		return Full
	}
	if p.AllowPartialRefund && left >= hours(p.PartialRefundWindowHours) {
		return Percent(p.partialPercent())
	}
	return None
}

func hours(h uint32) time.Duration {
	return time.Duration(h) * time.Hour
}
