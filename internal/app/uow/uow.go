package uow

import (
	"context"

	"staybook/internal/app/outbox"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
)

// UnitOfWork scopes every repository a command touches to one atomic commit. Events written to
// Outbox commit together with the state they describe.
type UnitOfWork interface {
	Items() inventory.Repository
	Availability() availability.Store
	Reservations() reservation.Repository
	Payments() payment.Repository
	Outbox() outbox.Outbox

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that carry driver state (a Mongo session, a SQL tx) on the
// context handed to repositories.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}
