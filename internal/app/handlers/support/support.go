package support

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"staybook/internal/app/outbox"
	"staybook/internal/app/policies"
	"staybook/internal/app/uow"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/shared/daterange"
)

// Deps is shared by every handler: where to get a unit of work, how to stamp time and how to
// encode events.
type Deps struct {
	UoWFactory uow.Factory
	Clock      policies.Clock
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (d Deps) Now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock.Now().UTC()
}

func (d Deps) Log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Write runs fn inside the caller's unit of work or a fresh one.
func (d Deps) Write(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	return uow.Run(ctx, d.UoWFactory, uow.TxOptions{}, fn)
}

func (d Deps) Read(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	return uow.Run(ctx, d.UoWFactory, uow.TxOptions{ReadOnly: true}, fn)
}

// Publish moves the pending events of sources into the unit's outbox.
func (d Deps) Publish(ctx context.Context, unit uow.UnitOfWork, sources ...outbox.Drainer) error {
	return outbox.RecordFrom(ctx, unit.Outbox(), d.Encoder, sources...)
}

// Span builds a stay range or an experience slot from request fields, depending on the item type.
func Span(kind inventory.ItemType, checkIn, checkOut, slot string) (daterange.Span, error) {
	slot = strings.TrimSpace(slot)
	switch kind {
	case inventory.TypeExperience:
		if slot == "" {
			return daterange.Span{}, inventory.ErrSlotRequired
		}
		day, err := daterange.ParseDay(strings.TrimSpace(checkIn))
		if err != nil {
			return daterange.Span{}, err
		}
		return daterange.SlotSpan(day, slot), nil
	case inventory.TypeStay:
		if slot != "" {
			return daterange.Span{}, inventory.ErrSlotNotAllowed
		}
		dr, err := daterange.Parse(strings.TrimSpace(checkIn), strings.TrimSpace(checkOut))
		if err != nil {
			return daterange.Span{}, err
		}
		return daterange.StaySpan(dr), nil
	default:
		return daterange.Span{}, fmt.Errorf("%w: %q", inventory.ErrUnknownType, kind)
	}
}

func ItemLock(id string) string { return "item:" + id }

func ReservationLock(id string) string { return "reservation:" + id }

func PaymentLock(id string) string { return "payment:" + id }
