package memory

import (
	"context"
	"time"

	appoutbox "staybook/internal/app/outbox"
	infraoutbox "staybook/internal/infra/outbox"
)

const (
	stateNew     = infraoutbox.StateNew
	stateClaimed = infraoutbox.StateClaimed
	stateSent    = infraoutbox.StateSent
	stateFailed  = infraoutbox.StateFailed
)

// unitOutbox buffers records until the unit commits.
type unitOutbox struct{ u *Unit }

func (o unitOutbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if err := o.u.writable(); err != nil {
		return err
	}
	o.u.events = append(o.u.events, record)
	return nil
}

func (o unitOutbox) Flush(ctx context.Context) error {
	o.u.db.wake()
	return nil
}

// OutboxStore lets the relay worker read the committed outbox of a DB.
type OutboxStore struct {
	DB *DB
}

func (s OutboxStore) Claim(ctx context.Context, workerID string, now time.Time) (*infraoutbox.Message, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for _, row := range s.DB.outbox {
		if row.state != stateNew && row.state != stateFailed {
			continue
		}
		if row.next.After(now) {
			continue
		}
		row.state = stateClaimed
		row.claimedBy = workerID
		rec := row.record
		headers := make(map[string]string, len(rec.Headers))
		for k, v := range rec.Headers {
			headers[k] = v
		}
		return &infraoutbox.Message{
			ID:         rec.ID,
			Name:       rec.Name,
			Payload:    append([]byte(nil), rec.Payload...),
			OccurredAt: rec.OccurredAt,
			Aggregate:  rec.Aggregate,
			Headers:    headers,
			Attempts:   row.attempts,
		}, nil
	}
	return nil, nil
}

func (s OutboxStore) MarkSent(ctx context.Context, id string, now time.Time) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	if row := s.DB.findOutbox(id); row != nil {
		row.state = stateSent
		row.sentAt = now
	}
	return nil
}

func (s OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	if row := s.DB.findOutbox(id); row != nil {
		row.state = stateFailed
		row.next = next
		row.lastError = errMsg
		row.attempts++
	}
	return nil
}

// OutboxRecords lists committed records in commit order, for inspection.
func (db *DB) OutboxRecords() []appoutbox.EventRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]appoutbox.EventRecord, 0, len(db.outbox))
	for _, row := range db.outbox {
		out = append(out, row.record)
	}
	return out
}

func (db *DB) findOutbox(id string) *outboxRow {
	for _, row := range db.outbox {
		if row.record.ID == id {
			return row
		}
	}
	return nil
}

var (
	_ appoutbox.Outbox  = unitOutbox{}
	_ infraoutbox.Store = OutboxStore{}
)

// Flush wakes the relay; it satisfies outbox.Flusher for the bus middleware.
func (db *DB) Flush(context.Context) error {
	db.wake()
	return nil
}
