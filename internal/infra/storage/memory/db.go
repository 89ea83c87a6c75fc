package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
)

var (
	ErrReadOnly     = errors.New("memory: unit of work is read only")
	ErrUnitFinished = errors.New("memory: unit of work already committed or rolled back")
)

type windowID struct {
	Item string
	Date string
	Slot string
}

type outboxRow struct {
	record    appoutbox.EventRecord
	state     string
	attempts  int
	next      time.Time
	claimedBy string
	lastError string
	sentAt    time.Time
}

// DB keeps committed state as snapshots, so nothing handed out by a unit aliases stored data.
type DB struct {
	mu           sync.RWMutex
	items        map[string]inventory.ItemSnapshot
	windows      map[windowID]availability.WindowSnapshot
	claims       map[string]availability.ClaimSnapshot
	reservations map[string]reservation.Snapshot
	accounts     map[string]payment.AccountSnapshot
	payments     map[string]payment.PaymentSnapshot
	refunds      map[string]payment.RefundSnapshot
	outbox       []*outboxRow
	notify       chan struct{}
}

func NewDB() *DB {
	return &DB{
		items:        make(map[string]inventory.ItemSnapshot),
		windows:      make(map[windowID]availability.WindowSnapshot),
		claims:       make(map[string]availability.ClaimSnapshot),
		reservations: make(map[string]reservation.Snapshot),
		accounts:     make(map[string]payment.AccountSnapshot),
		payments:     make(map[string]payment.PaymentSnapshot),
		refunds:      make(map[string]payment.RefundSnapshot),
		notify:       make(chan struct{}, 1),
	}
}

// Notify fires after a commit that added outbox messages.
func (db *DB) Notify() <-chan struct{} { return db.notify }

func (db *DB) wake() {
	select {
	case db.notify <- struct{}{}:
	default:
	}
}

// Factory begins units against a DB.
type Factory struct {
	DB *DB
}

func NewFactory(db *DB) Factory { return Factory{DB: db} }

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, errors.New("memory: factory has no database")
	}
	return newUnit(f.DB, opts.ReadOnly), nil
}

// Unit stages writes privately and applies them on Commit after checking that every row it touched
// is still at the version it was read at.
type Unit struct {
	db       *DB
	readOnly bool
	finished bool

	items        *stage[string, inventory.ItemSnapshot]
	windows      *stage[windowID, availability.WindowSnapshot]
	claims       *stage[string, availability.ClaimSnapshot]
	reservations *stage[string, reservation.Snapshot]
	accounts     *stage[string, payment.AccountSnapshot]
	payments     *stage[string, payment.PaymentSnapshot]
	refunds      *stage[string, payment.RefundSnapshot]
	events       []appoutbox.EventRecord
}

func newUnit(db *DB, readOnly bool) *Unit {
	return &Unit{
		db:           db,
		readOnly:     readOnly,
		items:        newStage[string, inventory.ItemSnapshot]("item", nil),
		windows:      newStage[windowID, availability.WindowSnapshot]("window", func(s availability.WindowSnapshot) int64 { return s.Version }),
		claims:       newStage[string, availability.ClaimSnapshot]("claim", func(s availability.ClaimSnapshot) int64 { return s.Version }),
		reservations: newStage[string, reservation.Snapshot]("reservation", func(s reservation.Snapshot) int64 { return s.Version }),
		accounts:     newStage[string, payment.AccountSnapshot]("account", func(s payment.AccountSnapshot) int64 { return s.Version }),
		payments:     newStage[string, payment.PaymentSnapshot]("payment", func(s payment.PaymentSnapshot) int64 { return s.Version }),
		refunds:      newStage[string, payment.RefundSnapshot]("refund", func(payment.RefundSnapshot) int64 { return 0 }),
	}
}

func (u *Unit) Items() inventory.Repository          { return itemRepo{u} }
func (u *Unit) Availability() availability.Store     { return availabilityStore{u} }
func (u *Unit) Reservations() reservation.Repository { return reservationRepo{u} }
func (u *Unit) Payments() payment.Repository         { return paymentRepo{u} }
func (u *Unit) Outbox() appoutbox.Outbox             { return unitOutbox{u} }

func (u *Unit) writable() error {
	if u.finished {
		return ErrUnitFinished
	}
	if u.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.finished {
		return ErrUnitFinished
	}
	u.finished = true
	if u.readOnly {
		return nil
	}
	db := u.db
	db.mu.Lock()
	err := errors.Join(
		u.items.verify(db.items),
		u.windows.verify(db.windows),
		u.claims.verify(db.claims),
		u.reservations.verify(db.reservations),
		u.accounts.verify(db.accounts),
		u.payments.verify(db.payments),
		u.refunds.verify(db.refunds),
	)
	if err != nil {
		db.mu.Unlock()
		return err
	}
	u.items.apply(db.items)
	u.windows.apply(db.windows)
	u.claims.apply(db.claims)
	u.reservations.apply(db.reservations)
	u.accounts.apply(db.accounts)
	u.payments.apply(db.payments)
	u.refunds.apply(db.refunds)
	for _, rec := range u.events {
		db.outbox = append(db.outbox, &outboxRow{record: rec, state: stateNew, next: rec.OccurredAt})
	}
	added := len(u.events) > 0
	db.mu.Unlock()
	if added {
		db.wake()
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.finished = true
	u.events = nil
	return nil
}

var (
	_ uow.Factory    = Factory{}
	_ uow.UnitOfWork = (*Unit)(nil)
)
