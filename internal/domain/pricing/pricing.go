package pricing

import (
	"context"
	"errors"
	"fmt"

	"staybook/internal/domain/shared/money"
)

var (
	ErrCurrencyUnset   = errors.New("pricing: currency must be defined")
	ErrNoUnits         = errors.New("pricing: nothing to price")
	ErrInvalidParty    = errors.New("pricing: party size must be positive")
	ErrInvalidDiscount = errors.New("pricing: discount percent must be within 0..100")
	ErrNegativeRate    = errors.New("pricing: rates cannot be negative")
)

// RateUnit says what the base rate is charged for.
type RateUnit string

const (
	PerNight  RateUnit = "PER_NIGHT"
	PerPerson RateUnit = "PER_PERSON"
)

const (
	WeeklyMinNights  = 7
	MonthlyMinNights = 28
)

// GroupTier discounts parties whose size falls within [MinParty, MaxParty]. MaxParty 0 means unbounded.
type GroupTier struct {
	MinParty int `json:"min_party" bson:"min_party"`
	MaxParty int `json:"max_party" bson:"max_party"`
	Percent  int `json:"percent" bson:"percent"`
}

func (g GroupTier) matches(party int) bool {
	if party < g.MinParty {
		return false
	}
	return g.MaxParty == 0 || party <= g.MaxParty
}

// Rules is the host-owned pricing configuration of an item.
type Rules struct {
	BaseRate               money.Money `json:"base_rate" bson:"base_rate"`
	Unit                   RateUnit    `json:"unit" bson:"unit"`
	WeeklyDiscountPercent  int         `json:"weekly_discount_percent" bson:"weekly_discount_percent"`
	MonthlyDiscountPercent int         `json:"monthly_discount_percent" bson:"monthly_discount_percent"`
	GroupTiers             []GroupTier `json:"group_tiers,omitempty" bson:"group_tiers,omitempty"`
}

func (r Rules) Validate() error {
	if r.BaseRate.Currency == "" {
		return ErrCurrencyUnset
	}
	if r.BaseRate.Amount < 0 {
		return ErrNegativeRate
	}
	for _, p := range []int{r.WeeklyDiscountPercent, r.MonthlyDiscountPercent} {
		if p < 0 || p > 100 {
			return ErrInvalidDiscount
		}
	}
	for _, tier := range r.GroupTiers {
		if tier.Percent < 0 || tier.Percent > 100 {
			return ErrInvalidDiscount
		}
	}
	return nil
}

// Line is one priced night (stays) or slot (experiences). Override replaces the base rate.
type Line struct {
	Key      string
	Override *money.Money
}

type Request struct {
	Rules     Rules
	Lines     []Line
	PartySize int
}

type Discount struct {
	Name    string      `json:"name"`
	Percent int         `json:"percent"`
	Amount  money.Money `json:"amount"`
}

// Quote is the priced breakdown of a request.
type Quote struct {
	Units    int         `json:"units"`
	Subtotal money.Money `json:"subtotal"`
	Discount *Discount   `json:"discount,omitempty"`
	Total    money.Money `json:"total"`
}

type Calculator interface {
	Quote(ctx context.Context, req Request) (Quote, error)
}

// Engine prices requests from the item's rules; it keeps no state.
type Engine struct{}

func NewEngine() Engine { return Engine{} }

func (Engine) Quote(_ context.Context, req Request) (Quote, error) {
	return Price(req)
}

// Price sums the lines and applies the single largest matching discount, flooring the result.
func Price(req Request) (Quote, error) {
	if err := req.Rules.Validate(); err != nil {
		return Quote{}, err
	}
	if len(req.Lines) == 0 {
		return Quote{}, ErrNoUnits
	}
	if req.PartySize <= 0 {
		return Quote{}, ErrInvalidParty
	}
	currency := req.Rules.BaseRate.Currency
	subtotal := money.Zero(currency)
	for _, line := range req.Lines {
		rate := req.Rules.BaseRate
		if line.Override != nil {
			rate = *line.Override
		}
		if rate.Amount < 0 {
			return Quote{}, ErrNegativeRate
		}
		if req.Rules.Unit == PerPerson {
			rate = rate.Multiply(int64(req.PartySize))
		}
		sum, err := subtotal.Add(rate)
		if err != nil {
			return Quote{}, fmt.Errorf("pricing: line %s: %w", line.Key, err)
		}
		subtotal = sum
	}

	quote := Quote{Units: len(req.Lines), Subtotal: subtotal, Total: subtotal}
	if best := bestDiscount(req.Rules, len(req.Lines), req.PartySize); best != nil {
		quote.Total = subtotal.MulDivFloor(int64(100-best.Percent), 100)
		best.Amount, _ = subtotal.Sub(quote.Total)
		quote.Discount = best
	}
	return quote, nil
}

func bestDiscount(r Rules, units, party int) *Discount {
	var best *Discount
	consider := func(name string, percent int) {
		if percent <= 0 {
			return
		}
		if best == nil || percent > best.Percent {
			best = &Discount{Name: name, Percent: percent}
		}
	}
	if r.Unit != PerPerson {
		if units >= WeeklyMinNights {
			consider("weekly", r.WeeklyDiscountPercent)
		}
		if units >= MonthlyMinNights {
			consider("monthly", r.MonthlyDiscountPercent)
		}
	}
	for _, tier := range r.GroupTiers {
		if tier.matches(party) {
			consider(fmt.Sprintf("group_%d_%d", tier.MinParty, tier.MaxParty), tier.Percent)
		}
	}
	return best
}
