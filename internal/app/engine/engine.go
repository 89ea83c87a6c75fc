package engine

import (
	"log/slog"
	"time"

	"staybook/internal/app/commands"
	availabilityapp "staybook/internal/app/handlers/availability"
	itemsapp "staybook/internal/app/handlers/items"
	paymentsapp "staybook/internal/app/handlers/payments"
	reservationsapp "staybook/internal/app/handlers/reservations"
	"staybook/internal/app/handlers/support"
	"staybook/internal/app/middleware"
	"staybook/internal/app/outbox"
	"staybook/internal/app/policies"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/pricing"
)

// Options is what the engine needs from the infrastructure. UoWFactory and Locker are required.
type Options struct {
	UoWFactory      uow.Factory
	Locker          policies.Locker
	Idempotency     middleware.IdempotencyStore
	Flusher         outbox.Flusher
	Clock           policies.Clock
	Logger          *slog.Logger
	Observer        middleware.Observer
	Pricing         pricing.Calculator
	Encoder         outbox.EventEncoder
	DefaultDeadline time.Duration
	ConflictRetries int
	RetryBackoff    time.Duration
}

// Engine exposes the booking operations as a command bus and a query bus.
type Engine struct {
	Commands commands.Bus
	Queries  queries.Bus
	Calendar *availability.Calendar
	registry *commands.Registry
}

func New(opts Options) *Engine {
	if opts.UoWFactory == nil || opts.Locker == nil {
		panic("engine: unit of work factory and locker required")
	}
	if opts.Clock == nil {
		opts.Clock = policies.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.NewEngine()
	}
	if opts.Encoder == nil {
		opts.Encoder = outbox.JSONEventEncoder{}
	}
	if opts.ConflictRetries == 0 {
		opts.ConflictRetries = 1
	}

	deps := support.Deps{UoWFactory: opts.UoWFactory, Clock: opts.Clock, Encoder: opts.Encoder, Logger: opts.Logger}
	calendar := availability.NewCalendar()

	cmdReg := commands.NewRegistry()
	(&itemsapp.RegisterItemHandler{Deps: deps, DefaultDeadline: opts.DefaultDeadline}).Register(cmdReg)
	(&availabilityapp.SetAvailabilityHandler{Deps: deps, Calendar: calendar}).Register(cmdReg)
	(&reservationsapp.CreateReservationHandler{Deps: deps, Calendar: calendar, Pricing: opts.Pricing}).Register(cmdReg)
	(&reservationsapp.LifecycleHandler{Deps: deps, Calendar: calendar}).Register(cmdReg)
	(&paymentsapp.LedgerHandler{Deps: deps, Calendar: calendar}).Register(cmdReg)

	qryReg := queries.NewRegistry()
	(&availabilityapp.QueryHandler{Deps: deps, Calendar: calendar, Pricing: opts.Pricing}).Register(qryReg)
	(&reservationsapp.QueryHandler{Deps: deps}).Register(qryReg)
	(&paymentsapp.BalanceHandler{Deps: deps}).Register(qryReg)

	validator := middleware.NewStructValidator()
	var idem middleware.CommandMiddleware
	if opts.Idempotency != nil {
		idem = middleware.Idempotency(opts.Idempotency, nil, opts.Locker)
	}
	cmdBus := middleware.ChainCommands(
		cmdReg,
		middleware.Logging(opts.Logger, opts.Observer),
		middleware.Validation(validator),
		idem,
		middleware.OutboxFlush(opts.Flusher),
		middleware.RetryOnConflict(opts.ConflictRetries, opts.RetryBackoff),
		middleware.Locking(opts.Locker),
		middleware.Transaction(opts.UoWFactory, nil),
	)
	qryBus := middleware.ChainQueries(
		qryReg,
		middleware.QueryLogging(opts.Logger),
		middleware.QueryValidation(validator),
		middleware.ReadOnly(opts.UoWFactory),
	)
	return &Engine{Commands: cmdBus, Queries: qryBus, Calendar: calendar, registry: cmdReg}
}

// CommandKeys lists every registered command.
func (e *Engine) CommandKeys() []string { return e.registry.Keys() }
