package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/domain/shared/daterange"
)

type scanner interface {
	Scan(dest ...any) error
}

type itemRepo struct{ u *Unit }

func (r itemRepo) ByID(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	var doc string
	err := r.u.tx.QueryRowContext(ctx, `SELECT doc FROM items WHERE id = ?`, string(id)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var snap inventory.ItemSnapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return inventory.DecodeItem(snap)
}

func (r itemRepo) Save(ctx context.Context, item *inventory.Item) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := inventory.EncodeItem(item)
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = r.u.tx.ExecContext(ctx, `
		INSERT INTO items (id, host_id, type, doc, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET host_id = excluded.host_id, type = excluded.type,
			doc = excluded.doc, updated_at = excluded.updated_at`,
		snap.ID, snap.HostID, snap.Type, string(doc), formatTime(snap.UpdatedAt))
	return err
}

type availabilityStore struct{ u *Unit }

const windowColumns = `item_id, date, slot, capacity, claimed, price_override_amount, price_override_currency, is_available, version, updated_at`

func scanWindow(row scanner) (availability.Window, error) {
	var (
		s        availability.WindowSnapshot
		amount   sql.NullInt64
		currency sql.NullString
		updated  string
	)
	if err := row.Scan(&s.ItemID, &s.Date, &s.Slot, &s.Capacity, &s.Claimed, &amount, &currency, &s.IsAvailable, &s.Version, &updated); err != nil {
		return availability.Window{}, err
	}
	if amount.Valid {
		v := amount.Int64
		s.PriceAmount = &v
		s.PriceCurrency = currency.String
	}
	return availability.DecodeWindow(s)
}

func (s availabilityStore) Windows(ctx context.Context, itemID inventory.ItemID, keys []availability.WindowKey) ([]availability.Window, error) {
	out := make([]availability.Window, 0, len(keys))
	for _, k := range keys {
		row := s.u.tx.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM availability_windows
			WHERE item_id = ? AND date = ? AND slot = ?`, string(itemID), k.Date.Format(daterange.DayLayout), k.Slot)
		w, err := scanWindow(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s availabilityStore) WindowsBetween(ctx context.Context, itemID inventory.ItemID, from, to time.Time) ([]availability.Window, error) {
	rows, err := s.u.tx.QueryContext(ctx, `SELECT `+windowColumns+` FROM availability_windows
		WHERE item_id = ? AND date >= ? AND date < ? ORDER BY date, slot`,
		string(itemID), from.Format(daterange.DayLayout), to.Format(daterange.DayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []availability.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s availabilityStore) SaveWindows(ctx context.Context, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	err := s.u.atomically(ctx, func() error { return s.writeWindows(ctx, windows) })
	if err != nil {
		return err
	}
	for i := range windows {
		windows[i].Version++
	}
	return nil
}

func (s availabilityStore) writeWindows(ctx context.Context, windows []availability.Window) error {
	now := formatTime(time.Now())
	for _, w := range windows {
		snap := availability.EncodeWindow(w)
		var currency any
		if snap.PriceAmount != nil {
			currency = snap.PriceCurrency
		}
		if w.Version == 0 {
			_, err := s.u.tx.ExecContext(ctx, `INSERT INTO availability_windows (`+windowColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
				snap.ItemID, snap.Date, snap.Slot, snap.Capacity, snap.Claimed, snap.PriceAmount, currency, snap.IsAvailable, now)
			if isConstraint(err) {
				return fmt.Errorf("%w: window %s", concurrency.ErrConcurrentUpdate, w.Key())
			}
			if err != nil {
				return err
			}
			continue
		}
		res, err := s.u.tx.ExecContext(ctx, `UPDATE availability_windows SET capacity = ?, claimed = ?,
				price_override_amount = ?, price_override_currency = ?, is_available = ?, version = version + 1, updated_at = ?
			WHERE item_id = ? AND date = ? AND slot = ? AND version = ?`,
			snap.Capacity, snap.Claimed, snap.PriceAmount, currency, snap.IsAvailable, now,
			snap.ItemID, snap.Date, snap.Slot, w.Version)
		if err != nil {
			return err
		}
		if err := expectOne(res, "window "+w.Key().String()); err != nil {
			return err
		}
	}
	return nil
}

func (s availabilityStore) ClaimByID(ctx context.Context, id availability.ClaimID) (*availability.Claim, error) {
	var (
		snap              availability.ClaimSnapshot
		windows           string
		created, released string
	)
	err := s.u.tx.QueryRowContext(ctx, `SELECT id, item_id, windows, units, released, created_at, released_at, version
		FROM availability_claims WHERE id = ?`, string(id)).
		Scan(&snap.ID, &snap.ItemID, &windows, &snap.Units, &snap.Released, &created, &released, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", availability.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(windows), &snap.Windows); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", id, err)
	}
	if snap.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if snap.ReleasedAt, err = parseTime(released); err != nil {
		return nil, err
	}
	return availability.DecodeClaim(snap)
}

func (s availabilityStore) SaveClaim(ctx context.Context, claim *availability.Claim, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	err := s.u.atomically(ctx, func() error {
		if err := s.writeWindows(ctx, windows); err != nil {
			return err
		}
		return s.writeClaim(ctx, claim)
	})
	if err != nil {
		return err
	}
	for i := range windows {
		windows[i].Version++
	}
	claim.Version++
	return nil
}

func (s availabilityStore) writeClaim(ctx context.Context, claim *availability.Claim) error {
	snap := availability.EncodeClaim(claim)
	keys, err := json.Marshal(snap.Windows)
	if err != nil {
		return err
	}
	if claim.Version == 0 {
		_, err := s.u.tx.ExecContext(ctx, `INSERT INTO availability_claims
			(id, item_id, windows, units, released, created_at, released_at, version) VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			snap.ID, snap.ItemID, string(keys), snap.Units, snap.Released, formatTime(snap.CreatedAt), formatTime(claim.ReleasedAt))
		if isConstraint(err) {
			return fmt.Errorf("%w: claim %s", concurrency.ErrConcurrentUpdate, claim.ID)
		}
		return err
	}
	res, err := s.u.tx.ExecContext(ctx, `UPDATE availability_claims SET windows = ?, units = ?, released = ?,
			released_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(keys), snap.Units, snap.Released, formatTime(claim.ReleasedAt), snap.ID, claim.Version)
	if err != nil {
		return err
	}
	return expectOne(res, "claim "+snap.ID)
}

type reservationRepo struct{ u *Unit }

const reservationColumns = `id, guest_id, host_id, item_id, item_type, check_in, check_out, slot, party_size, units,
	total_price_amount, total_price_currency, status, policy, deadline_seconds, starts_at, ends_at, claim_id,
	cancelled_by, cancel_reason, refund_amount, created_at, updated_at, version`

func scanReservation(row scanner) (*reservation.Reservation, error) {
	var (
		s                              reservation.Snapshot
		policy                         string
		starts, ends, created, updated string
	)
	err := row.Scan(&s.ID, &s.GuestID, &s.HostID, &s.ItemID, &s.ItemType, &s.CheckIn, &s.CheckOut, &s.Slot,
		&s.PartySize, &s.Units, &s.TotalAmount, &s.Currency, &s.Status, &policy, &s.DeadlineSecs,
		&starts, &ends, &s.ClaimID, &s.CancelledBy, &s.CancelReason, &s.RefundAmount, &created, &updated, &s.Version)
	if err != nil {
		return nil, err
	}
	var p cancellation.Policy
	if err := json.Unmarshal([]byte(policy), &p); err != nil {
		return nil, fmt.Errorf("decode policy of %s: %w", s.ID, err)
	}
	s.Policy = p
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{starts, &s.StartsAt}, {ends, &s.EndsAt}, {created, &s.CreatedAt}, {updated, &s.UpdatedAt}} {
		t, err := parseTime(f.raw)
		if err != nil {
			return nil, fmt.Errorf("reservation %s: %w", s.ID, err)
		}
		*f.dst = t
	}
	return reservation.Decode(s)
}

func (r reservationRepo) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	row := r.u.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, string(id))
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", reservation.ErrNotFound, id)
	}
	return res, err
}

func (r reservationRepo) Save(ctx context.Context, res *reservation.Reservation) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	s := reservation.Encode(res)
	policy, err := json.Marshal(s.Policy)
	if err != nil {
		return err
	}
	if res.Version == 0 {
		_, err = r.u.tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			s.ID, s.GuestID, s.HostID, s.ItemID, s.ItemType, s.CheckIn, s.CheckOut, s.Slot, s.PartySize, s.Units,
			s.TotalAmount, s.Currency, s.Status, string(policy), s.DeadlineSecs, formatTime(s.StartsAt), formatTime(s.EndsAt),
			s.ClaimID, s.CancelledBy, s.CancelReason, s.RefundAmount, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
		if isConstraint(err) {
			return fmt.Errorf("%w: reservation %s", concurrency.ErrConcurrentUpdate, s.ID)
		}
		if err != nil {
			return err
		}
	} else {
		out, err := r.u.tx.ExecContext(ctx, `UPDATE reservations SET status = ?, policy = ?, cancelled_by = ?,
				cancel_reason = ?, refund_amount = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			s.Status, string(policy), s.CancelledBy, s.CancelReason, s.RefundAmount, formatTime(s.UpdatedAt), s.ID, res.Version)
		if err != nil {
			return err
		}
		if err := expectOne(out, "reservation "+s.ID); err != nil {
			return err
		}
	}
	res.Version++
	return nil
}

func (r reservationRepo) ListByStatus(ctx context.Context, status reservation.Status, limit int) ([]*reservation.Reservation, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status = ? ORDER BY created_at, id LIMIT ?`, string(status), limit)
}

func (r reservationRepo) ListByGuest(ctx context.Context, guestID string) ([]*reservation.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE guest_id = ? ORDER BY created_at, id`, guestID)
}

func (r reservationRepo) list(ctx context.Context, query string, args ...any) ([]*reservation.Reservation, error) {
	rows, err := r.u.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*reservation.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type paymentRepo struct{ u *Unit }

func (r paymentRepo) Account(ctx context.Context, id reservation.ID) (*payment.Account, error) {
	var (
		s                payment.AccountSnapshot
		refundCap        sql.NullInt64
		created, updated string
	)
	err := r.u.tx.QueryRowContext(ctx, `SELECT reservation_id, currency, total, collected, pending, pending_payment_id,
			refunded, refund_cap, created_at, updated_at, version
		FROM payment_accounts WHERE reservation_id = ?`, string(id)).
		Scan(&s.ReservationID, &s.Currency, &s.Total, &s.Collected, &s.Pending, &s.PendingPaymentID,
			&s.Refunded, &refundCap, &created, &updated, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", payment.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if refundCap.Valid {
		v := refundCap.Int64
		s.RefundCap = &v
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return payment.DecodeAccount(s)
}

func (r paymentRepo) SaveAccount(ctx context.Context, a *payment.Account) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	s := payment.EncodeAccount(a)
	if a.Version == 0 {
		_, err := r.u.tx.ExecContext(ctx, `INSERT INTO payment_accounts (reservation_id, currency, total, collected,
				pending, pending_payment_id, refunded, refund_cap, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			s.ReservationID, s.Currency, s.Total, s.Collected, s.Pending, s.PendingPaymentID, s.Refunded, s.RefundCap,
			formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
		if isConstraint(err) {
			return fmt.Errorf("%w: account %s", concurrency.ErrConcurrentUpdate, s.ReservationID)
		}
		if err != nil {
			return err
		}
	} else {
		res, err := r.u.tx.ExecContext(ctx, `UPDATE payment_accounts SET total = ?, collected = ?, pending = ?,
				pending_payment_id = ?, refunded = ?, refund_cap = ?, updated_at = ?, version = version + 1
			WHERE reservation_id = ? AND version = ?`,
			s.Total, s.Collected, s.Pending, s.PendingPaymentID, s.Refunded, s.RefundCap, formatTime(s.UpdatedAt),
			s.ReservationID, a.Version)
		if err != nil {
			return err
		}
		if err := expectOne(res, "account "+s.ReservationID); err != nil {
			return err
		}
	}
	a.Version++
	return nil
}

const paymentColumns = `id, reservation_id, amount, currency, method, status, transaction_id, refunded_amount,
	refunded_at, paid_at, created_at, updated_at, version`

func scanPayment(row scanner) (*payment.Payment, error) {
	var (
		s                                    payment.PaymentSnapshot
		refundedAt, paidAt, created, updated string
	)
	err := row.Scan(&s.ID, &s.ReservationID, &s.Amount, &s.Currency, &s.Method, &s.Status, &s.TransactionID,
		&s.RefundedAmount, &refundedAt, &paidAt, &created, &updated, &s.Version)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{refundedAt, &s.RefundedAt}, {paidAt, &s.PaidAt}, {created, &s.CreatedAt}, {updated, &s.UpdatedAt}} {
		t, err := parseTime(f.raw)
		if err != nil {
			return nil, fmt.Errorf("payment %s: %w", s.ID, err)
		}
		*f.dst = t
	}
	return payment.DecodePayment(s)
}

func (r paymentRepo) PaymentByID(ctx context.Context, id payment.ID) (*payment.Payment, error) {
	row := r.u.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, string(id))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", payment.ErrNotFound, id)
	}
	return p, err
}

func (r paymentRepo) ListPayments(ctx context.Context, id reservation.ID) ([]*payment.Payment, error) {
	rows, err := r.u.tx.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE reservation_id = ? ORDER BY created_at, id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r paymentRepo) SavePayment(ctx context.Context, p *payment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	s := payment.EncodePayment(p)
	if p.Version == 0 {
		_, err := r.u.tx.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			s.ID, s.ReservationID, s.Amount, s.Currency, s.Method, s.Status, s.TransactionID, s.RefundedAmount,
			formatTime(p.RefundedAt), formatTime(p.PaidAt), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
		if isConstraint(err) {
			return fmt.Errorf("%w: payment %s", concurrency.ErrConcurrentUpdate, s.ID)
		}
		if err != nil {
			return err
		}
	} else {
		res, err := r.u.tx.ExecContext(ctx, `UPDATE payments SET status = ?, transaction_id = ?, refunded_amount = ?,
				refunded_at = ?, paid_at = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			s.Status, s.TransactionID, s.RefundedAmount, formatTime(p.RefundedAt), formatTime(p.PaidAt),
			formatTime(s.UpdatedAt), s.ID, p.Version)
		if err != nil {
			return err
		}
		if err := expectOne(res, "payment "+s.ID); err != nil {
			return err
		}
	}
	p.Version++
	return nil
}

func (r paymentRepo) AddRefund(ctx context.Context, ref payment.Refund) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	s := payment.EncodeRefund(ref)
	_, err := r.u.tx.ExecContext(ctx, `INSERT INTO payment_refunds
		(id, payment_id, reservation_id, amount, currency, kind, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PaymentID, s.ReservationID, s.Amount, s.Currency, s.Kind, s.Reason, formatTime(s.CreatedAt))
	if isConstraint(err) {
		return fmt.Errorf("%w: refund %s already recorded", concurrency.ErrConcurrentUpdate, s.ID)
	}
	return err
}

func (r paymentRepo) ListRefunds(ctx context.Context, id reservation.ID) ([]payment.Refund, error) {
	rows, err := r.u.tx.QueryContext(ctx, `SELECT id, payment_id, reservation_id, amount, currency, kind, reason, created_at
		FROM payment_refunds WHERE reservation_id = ? ORDER BY created_at, id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payment.Refund
	for rows.Next() {
		var (
			s       payment.RefundSnapshot
			created string
		)
		if err := rows.Scan(&s.ID, &s.PaymentID, &s.ReservationID, &s.Amount, &s.Currency, &s.Kind, &s.Reason, &created); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, payment.DecodeRefund(s))
	}
	return out, rows.Err()
}
