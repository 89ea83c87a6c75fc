package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appoutbox "staybook/internal/app/outbox"
	infraoutbox "staybook/internal/infra/outbox"
)

// unitOutbox writes records in the unit's transaction.
type unitOutbox struct{ u *Unit }

func (o unitOutbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if err := o.u.writable(); err != nil {
		return err
	}
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return err
	}
	_, err = o.u.tx.ExecContext(ctx, `INSERT INTO outbox (id, name, payload, occurred_at, aggregate, headers, state, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.Payload, formatTime(record.OccurredAt), record.Aggregate, string(headers),
		infraoutbox.StateNew, formatTime(record.OccurredAt))
	if err != nil {
		return fmt.Errorf("outbox add: %w", err)
	}
	o.u.events++
	return nil
}

func (o unitOutbox) Flush(ctx context.Context) error {
	o.u.db.wake()
	return nil
}

// OutboxStore lets the relay worker read the committed outbox.
type OutboxStore struct {
	DB *DB
}

func (s OutboxStore) Claim(ctx context.Context, workerID string, now time.Time) (*infraoutbox.Message, error) {
	tx, err := s.DB.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		msg      infraoutbox.Message
		occurred string
		headers  string
	)
	err = tx.QueryRowContext(ctx, `SELECT id, name, payload, occurred_at, aggregate, headers, attempts FROM outbox
		WHERE state IN (?, ?) AND next_attempt_at <= ? ORDER BY seq LIMIT 1`,
		infraoutbox.StateNew, infraoutbox.StateFailed, formatTime(now)).
		Scan(&msg.ID, &msg.Name, &msg.Payload, &occurred, &msg.Aggregate, &headers, &msg.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if msg.OccurredAt, err = parseTime(occurred); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &msg.Headers); err != nil {
		return nil, fmt.Errorf("decode outbox headers %s: %w", msg.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE outbox SET state = ?, claimed_by = ? WHERE id = ?`,
		infraoutbox.StateClaimed, workerID, msg.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s OutboxStore) MarkSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.sql.ExecContext(ctx, `UPDATE outbox SET state = ?, sent_at = ? WHERE id = ?`,
		infraoutbox.StateSent, formatTime(now), id)
	return err
}

func (s OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	_, err := s.DB.sql.ExecContext(ctx, `UPDATE outbox SET state = ?, next_attempt_at = ?, last_error = ?,
		attempts = attempts + 1 WHERE id = ?`,
		infraoutbox.StateFailed, formatTime(next), errMsg, id)
	return err
}

var (
	_ appoutbox.Outbox  = unitOutbox{}
	_ infraoutbox.Store = OutboxStore{}
)
