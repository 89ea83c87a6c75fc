package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
)

var (
	ErrReadOnly     = errors.New("sqlite: unit of work is read only")
	ErrUnitFinished = errors.New("sqlite: unit of work already committed or rolled back")
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		host_id TEXT NOT NULL,
		type TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS availability_windows (
		item_id TEXT NOT NULL,
		date TEXT NOT NULL,
		slot TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL,
		claimed INTEGER NOT NULL DEFAULT 0,
		price_override_amount INTEGER,
		price_override_currency TEXT,
		is_available INTEGER NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (item_id, date, slot),
		CHECK (claimed <= capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS availability_claims (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		windows TEXT NOT NULL,
		units INTEGER NOT NULL,
		released INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		released_at TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		guest_id TEXT NOT NULL,
		host_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		slot TEXT NOT NULL DEFAULT '',
		party_size INTEGER NOT NULL,
		units INTEGER NOT NULL,
		total_price_amount INTEGER NOT NULL,
		total_price_currency TEXT NOT NULL,
		status TEXT NOT NULL,
		policy TEXT NOT NULL,
		deadline_seconds INTEGER NOT NULL,
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		claim_id TEXT NOT NULL,
		cancelled_by TEXT NOT NULL DEFAULT '',
		cancel_reason TEXT NOT NULL DEFAULT '',
		refund_amount INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_guest ON reservations(guest_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS payment_accounts (
		reservation_id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		total INTEGER NOT NULL,
		collected INTEGER NOT NULL,
		pending INTEGER NOT NULL,
		pending_payment_id TEXT NOT NULL DEFAULT '',
		refunded INTEGER NOT NULL,
		refund_cap INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		refunded_amount INTEGER NOT NULL DEFAULT 0,
		refunded_at TEXT NOT NULL DEFAULT '',
		paid_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_reservation ON payments(reservation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS payment_refunds (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refunds_reservation ON payment_refunds(reservation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		payload BLOB NOT NULL,
		occurred_at TEXT NOT NULL,
		aggregate TEXT NOT NULL,
		headers TEXT NOT NULL,
		state TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		claimed_by TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		sent_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(state, next_attempt_at)`,
}

// DB is a SQLite database holding the engine's tables.
type DB struct {
	sql    *sql.DB
	notify chan struct{}
}

// Open creates the file and its directory when missing and applies the schema. Every transaction
// takes the write lock at BEGIN, so writers queue instead of failing with SQLITE_BUSY mid-way.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &DB{sql: conn, notify: make(chan struct{}, 1)}, nil
}

func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) Ping(ctx context.Context) error { return db.sql.PingContext(ctx) }

// Notify fires after a commit that added outbox messages.
func (db *DB) Notify() <-chan struct{} { return db.notify }

// Flush wakes the relay.
func (db *DB) Flush(context.Context) error {
	db.wake()
	return nil
}

func (db *DB) wake() {
	select {
	case db.notify <- struct{}{}:
	default:
	}
}

type Factory struct {
	DB *DB
}

func NewFactory(db *DB) Factory { return Factory{DB: db} }

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, errors.New("sqlite: factory has no database")
	}
	tx, err := f.DB.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Unit{db: f.DB, tx: tx, readOnly: opts.ReadOnly}, nil
}

// Unit wraps one SQL transaction.
type Unit struct {
	db       *DB
	tx       *sql.Tx
	readOnly bool
	finished bool
	events   int
	savepts  int
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
		return u.tx.Rollback()
	}
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if u.events > 0 {
		u.db.wake()
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.finished {
		return nil
	}
	u.finished = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// atomically runs fn inside a savepoint so a failing batch leaves the transaction as it was.
func (u *Unit) atomically(ctx context.Context, fn func() error) error {
	u.savepts++
	name := fmt.Sprintf("sp_%d", u.savepts)
	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := u.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		_, _ = u.tx.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	if _, err := u.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// isConstraint reports a primary key or unique violation, which for an insert means someone else
// created the row first.
func isConstraint(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// expectOne turns a zero-row conditional update into a version conflict.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: %s", concurrency.ErrConcurrentUpdate, what)
	}
	return nil
}

var (
	_ uow.Factory    = Factory{}
	_ uow.UnitOfWork = (*Unit)(nil)
)
