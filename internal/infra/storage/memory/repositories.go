package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/domain/shared/daterange"
)

type itemRepo struct{ u *Unit }

func (r itemRepo) ByID(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	r.u.db.mu.RLock()
	snap, ok := r.u.items.get(r.u.db.items, string(id))
	r.u.db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return inventory.DecodeItem(snap)
}

func (r itemRepo) Save(ctx context.Context, item *inventory.Item) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	r.u.db.mu.RLock()
	defer r.u.db.mu.RUnlock()
	return r.u.items.put(r.u.db.items, string(item.ID), inventory.EncodeItem(item), 0)
}

type availabilityStore struct{ u *Unit }

func windowKeyOf(item inventory.ItemID, k availability.WindowKey) windowID {
	return windowID{Item: string(item), Date: k.Date.Format(daterange.DayLayout), Slot: k.Slot}
}

// Windows returns the stored windows among keys in key order; missing ones are skipped.
func (s availabilityStore) Windows(ctx context.Context, itemID inventory.ItemID, keys []availability.WindowKey) ([]availability.Window, error) {
	s.u.db.mu.RLock()
	defer s.u.db.mu.RUnlock()
	out := make([]availability.Window, 0, len(keys))
	for _, k := range keys {
		snap, ok := s.u.windows.get(s.u.db.windows, windowKeyOf(itemID, k))
		if !ok {
			continue
		}
		w, err := availability.DecodeWindow(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s availabilityStore) WindowsBetween(ctx context.Context, itemID inventory.ItemID, from, to time.Time) ([]availability.Window, error) {
	lo, hi := from.Format(daterange.DayLayout), to.Format(daterange.DayLayout)
	s.u.db.mu.RLock()
	snaps := s.u.windows.merged(s.u.db.windows, func(w availability.WindowSnapshot) bool {
		return w.ItemID == string(itemID) && w.Date >= lo && w.Date < hi
	})
	s.u.db.mu.RUnlock()
	out := make([]availability.Window, 0, len(snaps))
	for _, snap := range snaps {
		w, err := availability.DecodeWindow(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	availability.SortWindows(out)
	return out, nil
}

func (s availabilityStore) SaveWindows(ctx context.Context, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	s.u.db.mu.RLock()
	defer s.u.db.mu.RUnlock()
	if err := s.checkWindows(windows); err != nil {
		return err
	}
	if err := s.stageWindows(windows); err != nil {
		return err
	}
	for i := range windows {
		windows[i].Version++
	}
	return nil
}

// checkWindows rejects the whole batch before anything is staged.
func (s availabilityStore) checkWindows(windows []availability.Window) error {
	for _, w := range windows {
		current, ok := s.u.windows.get(s.u.db.windows, windowKeyOf(w.ItemID, w.Key()))
		if ok != (w.Version != 0) || (ok && current.Version != w.Version) {
			return fmt.Errorf("%w: window %s", concurrency.ErrConcurrentUpdate, w.Key())
		}
	}
	return nil
}

func (s availabilityStore) stageWindows(windows []availability.Window) error {
	for _, w := range windows {
		snap := availability.EncodeWindow(w)
		snap.Version = w.Version + 1
		snap.UpdatedAt = time.Now().UTC()
		if err := s.u.windows.put(s.u.db.windows, windowKeyOf(w.ItemID, w.Key()), snap, w.Version); err != nil {
			return err
		}
	}
	return nil
}

func (s availabilityStore) ClaimByID(ctx context.Context, id availability.ClaimID) (*availability.Claim, error) {
	s.u.db.mu.RLock()
	snap, ok := s.u.claims.get(s.u.db.claims, string(id))
	s.u.db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", availability.ErrClaimNotFound, id)
	}
	return availability.DecodeClaim(snap)
}

// SaveClaim stages the claim and its windows together. A version conflict on any of them leaves
// the unit without the partial writes of this call.
func (s availabilityStore) SaveClaim(ctx context.Context, claim *availability.Claim, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	s.u.db.mu.RLock()
	defer s.u.db.mu.RUnlock()
	if err := s.checkWindows(windows); err != nil {
		return err
	}
	if current, ok := s.u.claims.get(s.u.db.claims, string(claim.ID)); ok != (claim.Version != 0) || (ok && current.Version != claim.Version) {
		return fmt.Errorf("%w: claim %s", concurrency.ErrConcurrentUpdate, claim.ID)
	}
	if err := s.stageWindows(windows); err != nil {
		return err
	}
	snap := availability.EncodeClaim(claim)
	snap.Version = claim.Version + 1
	if err := s.u.claims.put(s.u.db.claims, string(claim.ID), snap, claim.Version); err != nil {
		return err
	}
	for i := range windows {
		windows[i].Version++
	}
	claim.Version++
	return nil
}

type reservationRepo struct{ u *Unit }

func (r reservationRepo) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	r.u.db.mu.RLock()
	snap, ok := r.u.reservations.get(r.u.db.reservations, string(id))
	r.u.db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", reservation.ErrNotFound, id)
	}
	return reservation.Decode(snap)
}

func (r reservationRepo) Save(ctx context.Context, res *reservation.Reservation) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := reservation.Encode(res)
	snap.Version = res.Version + 1
	r.u.db.mu.RLock()
	err := r.u.reservations.put(r.u.db.reservations, string(res.ID), snap, res.Version)
	r.u.db.mu.RUnlock()
	if err != nil {
		return err
	}
	res.Version++
	return nil
}

func (r reservationRepo) ListByStatus(ctx context.Context, status reservation.Status, limit int) ([]*reservation.Reservation, error) {
	out, err := r.list(func(s reservation.Snapshot) bool { return s.Status == string(status) })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r reservationRepo) ListByGuest(ctx context.Context, guestID string) ([]*reservation.Reservation, error) {
	return r.list(func(s reservation.Snapshot) bool { return s.GuestID == guestID })
}

// list returns matches oldest first.
func (r reservationRepo) list(keep func(reservation.Snapshot) bool) ([]*reservation.Reservation, error) {
	r.u.db.mu.RLock()
	snaps := r.u.reservations.merged(r.u.db.reservations, keep)
	r.u.db.mu.RUnlock()
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	out := make([]*reservation.Reservation, 0, len(snaps))
	for _, s := range snaps {
		res, err := reservation.Decode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

type paymentRepo struct{ u *Unit }

func (r paymentRepo) Account(ctx context.Context, id reservation.ID) (*payment.Account, error) {
	r.u.db.mu.RLock()
	snap, ok := r.u.accounts.get(r.u.db.accounts, string(id))
	r.u.db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", payment.ErrAccountNotFound, id)
	}
	return payment.DecodeAccount(snap)
}

func (r paymentRepo) SaveAccount(ctx context.Context, a *payment.Account) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := payment.EncodeAccount(a)
	snap.Version = a.Version + 1
	r.u.db.mu.RLock()
	err := r.u.accounts.put(r.u.db.accounts, string(a.ReservationID), snap, a.Version)
	r.u.db.mu.RUnlock()
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r paymentRepo) PaymentByID(ctx context.Context, id payment.ID) (*payment.Payment, error) {
	r.u.db.mu.RLock()
	snap, ok := r.u.payments.get(r.u.db.payments, string(id))
	r.u.db.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", payment.ErrNotFound, id)
	}
	return payment.DecodePayment(snap)
}

func (r paymentRepo) ListPayments(ctx context.Context, id reservation.ID) ([]*payment.Payment, error) {
	r.u.db.mu.RLock()
	snaps := r.u.payments.merged(r.u.db.payments, func(s payment.PaymentSnapshot) bool { return s.ReservationID == string(id) })
	r.u.db.mu.RUnlock()
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	out := make([]*payment.Payment, 0, len(snaps))
	for _, s := range snaps {
		p, err := payment.DecodePayment(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r paymentRepo) SavePayment(ctx context.Context, p *payment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := payment.EncodePayment(p)
	snap.Version = p.Version + 1
	r.u.db.mu.RLock()
	err := r.u.payments.put(r.u.db.payments, string(p.ID), snap, p.Version)
	r.u.db.mu.RUnlock()
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r paymentRepo) AddRefund(ctx context.Context, ref payment.Refund) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	r.u.db.mu.RLock()
	defer r.u.db.mu.RUnlock()
	if _, exists := r.u.refunds.get(r.u.db.refunds, string(ref.ID)); exists {
		return fmt.Errorf("%w: refund %s already recorded", concurrency.ErrConcurrentUpdate, ref.ID)
	}
	return r.u.refunds.put(r.u.db.refunds, string(ref.ID), payment.EncodeRefund(ref), 0)
}

func (r paymentRepo) ListRefunds(ctx context.Context, id reservation.ID) ([]payment.Refund, error) {
	r.u.db.mu.RLock()
	snaps := r.u.refunds.merged(r.u.db.refunds, func(s payment.RefundSnapshot) bool { return s.ReservationID == string(id) })
	r.u.db.mu.RUnlock()
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	out := make([]payment.Refund, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, payment.DecodeRefund(s))
	}
	return out, nil
}
