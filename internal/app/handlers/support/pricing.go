package support

import (
	"context"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
)

// Quote prices span for party using the item's rules and any per-window overrides in windows.
func Quote(ctx context.Context, calc pricing.Calculator, item *inventory.Item, span daterange.Span, party int, windows []availability.Window) (pricing.Quote, error) {
	if calc == nil {
		calc = pricing.NewEngine()
	}
	byKey := make(map[availability.WindowKey]availability.Window, len(windows))
	for _, w := range windows {
		byKey[w.Key()] = w
	}
	keys := availability.KeysFor(span)
	lines := make([]pricing.Line, 0, len(keys))
	for _, k := range keys {
		line := pricing.Line{Key: k.String()}
		if w, ok := byKey[k]; ok && w.PriceOverride != nil {
			override := *w.PriceOverride
			line.Override = &override
		}
		lines = append(lines, line)
	}
	return calc.Quote(ctx, pricing.Request{Rules: item.Payable().Rules(), Lines: lines, PartySize: party})
}
