package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/domain/shared/daterange"
)

// saveVersioned inserts doc when version is zero, otherwise replaces the stored document only if it
// still carries version. doc must already hold version+1.
func saveVersioned(ctx context.Context, col *mongo.Collection, id string, version int64, doc any, what string) error {
	if version == 0 {
		_, err := col.InsertOne(ctx, doc)
		return mapWriteErr(err, what)
	}
	res, err := col.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		return mapWriteErr(err, what)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", concurrency.ErrConcurrentUpdate, what)
	}
	return nil
}

type itemRepo struct{ u *Unit }

func (r itemRepo) ByID(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	var snap inventory.ItemSnapshot
	err := r.u.col(colItems).FindOne(r.u.sess(ctx), bson.M{"_id": string(id)}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return inventory.DecodeItem(snap)
}

// Save upserts; item definitions are last-writer-wins.
func (r itemRepo) Save(ctx context.Context, item *inventory.Item) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := inventory.EncodeItem(item)
	_, err := r.u.col(colItems).ReplaceOne(r.u.sess(ctx), bson.M{"_id": snap.ID}, snap, options.Replace().SetUpsert(true))
	return mapWriteErr(err, "item "+snap.ID)
}

type windowDocument struct {
	ID                          string `bson:"_id"`
	availability.WindowSnapshot `bson:",inline"`
}

func windowDocID(itemID string, key availability.WindowKey) string {
	return itemID + "|" + key.String()
}

type availabilityStore struct{ u *Unit }

func (s availabilityStore) Windows(ctx context.Context, itemID inventory.ItemID, keys []availability.WindowKey) ([]availability.Window, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, windowDocID(string(itemID), k))
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s availabilityStore) WindowsBetween(ctx context.Context, itemID inventory.ItemID, from, to time.Time) ([]availability.Window, error) {
	return s.find(ctx, bson.M{
		"item_id": string(itemID),
		"date":    bson.M{"$gte": from.Format(daterange.DayLayout), "$lt": to.Format(daterange.DayLayout)},
	})
}

func (s availabilityStore) find(ctx context.Context, filter bson.M) ([]availability.Window, error) {
	ctx = s.u.sess(ctx)
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "slot", Value: 1}})
	cur, err := s.u.col(colWindows).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []availability.Window
	for cur.Next(ctx) {
		var doc windowDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		w, err := availability.DecodeWindow(doc.WindowSnapshot)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", doc.ID, err)
		}
		out = append(out, w)
	}
	return out, cur.Err()
}

func (s availabilityStore) SaveWindows(ctx context.Context, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	ctx = s.u.sess(ctx)
	if err := s.verifyWindows(ctx, windows); err != nil {
		return err
	}
	if err := s.writeWindows(ctx, windows); err != nil {
		return err
	}
	for i := range windows {
		windows[i].Version++
	}
	return nil
}

// verifyWindows checks every version before the first write. Mongo has no savepoints, so a batch
// that fails halfway would leave the earlier writes visible to a retry in the same transaction.
func (s availabilityStore) verifyWindows(ctx context.Context, windows []availability.Window) error {
	if len(windows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(windows))
	for _, w := range windows {
		ids = append(ids, windowDocID(string(w.ItemID), w.Key()))
	}
	cur, err := s.u.col(colWindows).Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"version": 1}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	stored := make(map[string]int64, len(ids))
	for cur.Next(ctx) {
		var row struct {
			ID      string `bson:"_id"`
			Version int64  `bson:"version"`
		}
		if err := cur.Decode(&row); err != nil {
			return err
		}
		stored[row.ID] = row.Version
	}
	if err := cur.Err(); err != nil {
		return err
	}
	for i, w := range windows {
		if stored[ids[i]] != w.Version {
			return fmt.Errorf("%w: window %s", concurrency.ErrConcurrentUpdate, w.Key())
		}
	}
	return nil
}

func (s availabilityStore) writeWindows(ctx context.Context, windows []availability.Window) error {
	now := time.Now().UTC()
	col := s.u.col(colWindows)
	for _, w := range windows {
		snap := availability.EncodeWindow(w)
		snap.Version = w.Version + 1
		snap.UpdatedAt = now
		id := windowDocID(snap.ItemID, w.Key())
		if err := saveVersioned(ctx, col, id, w.Version, windowDocument{ID: id, WindowSnapshot: snap}, "window "+w.Key().String()); err != nil {
			return err
		}
	}
	return nil
}

func (s availabilityStore) ClaimByID(ctx context.Context, id availability.ClaimID) (*availability.Claim, error) {
	var snap availability.ClaimSnapshot
	err := s.u.col(colClaims).FindOne(s.u.sess(ctx), bson.M{"_id": string(id)}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", availability.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return availability.DecodeClaim(snap)
}

func (s availabilityStore) SaveClaim(ctx context.Context, claim *availability.Claim, windows []availability.Window) error {
	if err := s.u.writable(); err != nil {
		return err
	}
	ctx = s.u.sess(ctx)
	if err := s.verifyWindows(ctx, windows); err != nil {
		return err
	}
	if claim.Version > 0 {
		n, err := s.u.col(colClaims).CountDocuments(ctx, bson.M{"_id": string(claim.ID), "version": claim.Version})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: claim %s", concurrency.ErrConcurrentUpdate, claim.ID)
		}
	}
	if err := s.writeWindows(ctx, windows); err != nil {
		return err
	}
	snap := availability.EncodeClaim(claim)
	snap.Version = claim.Version + 1
	if err := saveVersioned(ctx, s.u.col(colClaims), snap.ID, claim.Version, snap, "claim "+snap.ID); err != nil {
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
	var snap reservation.Snapshot
	err := r.u.col(colReservations).FindOne(r.u.sess(ctx), bson.M{"_id": string(id)}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", reservation.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return reservation.Decode(snap)
}

func (r reservationRepo) Save(ctx context.Context, res *reservation.Reservation) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := reservation.Encode(res)
	snap.Version = res.Version + 1
	if err := saveVersioned(r.u.sess(ctx), r.u.col(colReservations), snap.ID, res.Version, snap, "reservation "+snap.ID); err != nil {
		return err
	}
	res.Version++
	return nil
}

func (r reservationRepo) ListByStatus(ctx context.Context, status reservation.Status, limit int) ([]*reservation.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.list(ctx, bson.M{"status": string(status)}, opts)
}

func (r reservationRepo) ListByGuest(ctx context.Context, guestID string) ([]*reservation.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.list(ctx, bson.M{"guest_id": guestID}, opts)
}

func (r reservationRepo) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*reservation.Reservation, error) {
	ctx = r.u.sess(ctx)
	cur, err := r.u.col(colReservations).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var snaps []reservation.Snapshot
	if err := cur.All(ctx, &snaps); err != nil {
		return nil, err
	}
	out := make([]*reservation.Reservation, 0, len(snaps))
	for _, s := range snaps {
		res, err := reservation.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("reservation %s: %w", s.ID, err)
		}
		out = append(out, res)
	}
	return out, nil
}

type paymentRepo struct{ u *Unit }

func (r paymentRepo) Account(ctx context.Context, id reservation.ID) (*payment.Account, error) {
	var snap payment.AccountSnapshot
	err := r.u.col(colAccounts).FindOne(r.u.sess(ctx), bson.M{"_id": string(id)}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", payment.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return payment.DecodeAccount(snap)
}

func (r paymentRepo) SaveAccount(ctx context.Context, a *payment.Account) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := payment.EncodeAccount(a)
	snap.Version = a.Version + 1
	if err := saveVersioned(r.u.sess(ctx), r.u.col(colAccounts), snap.ReservationID, a.Version, snap, "account "+snap.ReservationID); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r paymentRepo) PaymentByID(ctx context.Context, id payment.ID) (*payment.Payment, error) {
	var snap payment.PaymentSnapshot
	err := r.u.col(colPayments).FindOne(r.u.sess(ctx), bson.M{"_id": string(id)}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", payment.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return payment.DecodePayment(snap)
}

func (r paymentRepo) ListPayments(ctx context.Context, id reservation.ID) ([]*payment.Payment, error) {
	ctx = r.u.sess(ctx)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.u.col(colPayments).Find(ctx, bson.M{"reservation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	var snaps []payment.PaymentSnapshot
	if err := cur.All(ctx, &snaps); err != nil {
		return nil, err
	}
	out := make([]*payment.Payment, 0, len(snaps))
	for _, s := range snaps {
		p, err := payment.DecodePayment(s)
		if err != nil {
			return nil, fmt.Errorf("payment %s: %w", s.ID, err)
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
	if err := saveVersioned(r.u.sess(ctx), r.u.col(colPayments), snap.ID, p.Version, snap, "payment "+snap.ID); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r paymentRepo) AddRefund(ctx context.Context, ref payment.Refund) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	snap := payment.EncodeRefund(ref)
	_, err := r.u.col(colRefunds).InsertOne(r.u.sess(ctx), snap)
	return mapWriteErr(err, "refund "+snap.ID+" already recorded")
}

func (r paymentRepo) ListRefunds(ctx context.Context, id reservation.ID) ([]payment.Refund, error) {
	ctx = r.u.sess(ctx)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.u.col(colRefunds).Find(ctx, bson.M{"reservation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	var snaps []payment.RefundSnapshot
	if err := cur.All(ctx, &snaps); err != nil {
		return nil, err
	}
	out := make([]payment.Refund, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, payment.DecodeRefund(s))
	}
	return out, nil
}
