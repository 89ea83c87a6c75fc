package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	mongosession "go.mongodb.org/mongo-driver/x/mongo/driver/session"

	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
)

var (
	ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")
	ErrReadOnly                = errors.New("mongo: unit of work is read only")
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB     *mongo.Database
	notify chan struct{}
}

func NewFactory(db *mongo.Database) *Factory {
	return &Factory{DB: db, notify: make(chan struct{}, 1)}
}

// Notify fires after a commit that added outbox messages.
func (f *Factory) Notify() <-chan struct{} { return f.notify }

// Flush wakes the relay.
func (f *Factory) Flush(context.Context) error {
	f.wake()
	return nil
}

func (f *Factory) wake() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Begin starts a session with a snapshot transaction.
func (f *Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f == nil || f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(readconcern.Snapshot()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{factory: f, db: f.DB, session: session, readOnly: opts.ReadOnly}, nil
}

type Unit struct {
	factory  *Factory
	db       *mongo.Database
	session  mongo.Session
	readOnly bool
	events   int
}

func (u *Unit) Items() inventory.Repository          { return itemRepo{u} }
func (u *Unit) Availability() availability.Store     { return availabilityStore{u} }
func (u *Unit) Reservations() reservation.Repository { return reservationRepo{u} }
func (u *Unit) Payments() payment.Repository         { return paymentRepo{u} }
func (u *Unit) Outbox() appoutbox.Outbox             { return unitOutbox{u} }

func (u *Unit) col(name string) *mongo.Collection { return u.db.Collection(name) }

// sess makes sure repository calls run in the unit's transaction even when the caller's context
// did not come through InjectContext.
func (u *Unit) sess(ctx context.Context) context.Context {
	if mongo.SessionFromContext(ctx) != nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, u.session)
}

func (u *Unit) writable() error {
	if u.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return u.session.AbortTransaction(ctx)
	}
	if err := u.session.CommitTransaction(ctx); err != nil {
		return mapWriteErr(err, "commit")
	}
	if u.events > 0 {
		u.factory.wake()
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return ignoreFinished(u.session.AbortTransaction(ctx))
}

// ignoreFinished drops the abort errors of a transaction that already committed or aborted.
func ignoreFinished(err error) error {
	if errors.Is(err, mongosession.ErrAbortAfterCommit) || errors.Is(err, mongosession.ErrAbortTwice) {
		return nil
	}
	return err
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

// mapWriteErr reports transaction write conflicts and duplicate inserts as concurrent updates.
func mapWriteErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", concurrency.ErrConcurrentUpdate, what)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %s: %v", concurrency.ErrConcurrentUpdate, what, err)
	}
	return err
}

var (
	_ uow.Factory         = (*Factory)(nil)
	_ uow.UnitOfWork      = (*Unit)(nil)
	_ uow.ContextInjector = (*Unit)(nil)
)
