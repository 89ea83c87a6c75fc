package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memInbox) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	was := m.seen[id]
	m.seen[id] = true
	return was, nil
}

type recorder struct {
	sent []Notification
	err  error
}

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func envelope(t *testing.T, id, typ string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(Event{ID: id, Type: typ, Subject: "res-1", Time: time.Now(), Data: raw})
	require.NoError(t, err)
	return out
}

func TestPlanCreatedNotifiesHostAndGuest(t *testing.T) {
	raw := envelope(t, "evt-1", "reservation.created.v1", map[string]any{
		"ReservationID": "res-1", "GuestID": "guest-1", "HostID": "host-1", "ItemID": "item-1",
		"Span": "2025-06-01..2025-06-03", "TotalPrice": map[string]any{"Amount": 25050, "Currency": "USD"},
	})
	evt, err := Decode(raw)
	require.NoError(t, err)
	notes, err := Plan(evt)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, AudienceHost, notes[0].Audience)
	assert.Equal(t, "host-1", notes[0].Recipient)
	assert.Equal(t, "booking_request", notes[0].Template)
	assert.Equal(t, "250.50 USD", notes[0].Vars["total"])
	assert.Equal(t, "guest-1", notes[1].Recipient)
	assert.Equal(t, "res-1", notes[1].ReservationID)
}

func TestPlanFallsBackToSubjectAndIgnoresUnknown(t *testing.T) {
	evt, err := Decode(envelope(t, "evt-2", "reservation.expired.v1", map[string]any{}))
	require.NoError(t, err)
	notes, err := Plan(evt)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "res-1", notes[0].ReservationID)
	assert.Equal(t, "booking_expired", notes[0].Template)

	evt, err = Decode(envelope(t, "evt-3", "availability.claimed.v1", map[string]any{"ItemID": "item-1"}))
	require.NoError(t, err)
	notes, err = Plan(evt)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	_, err = Decode([]byte(`{"type":"reservation.created.v1"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestServiceSkipsRedelivery(t *testing.T) {
	rec := &recorder{}
	svc := &Service{Inbox: &memInbox{}, Sender: rec}
	raw := envelope(t, "evt-9", "reservation.cancelled.v1", map[string]any{
		"ReservationID": "res-1", "By": "GUEST", "RefundAmount": map[string]any{"Amount": 1000, "Currency": "EUR"},
	})
	require.NoError(t, svc.Handle(context.Background(), raw))
	require.NoError(t, svc.Handle(context.Background(), raw))
	require.Len(t, rec.sent, 2)
	assert.Equal(t, "10.00 EUR", rec.sent[0].Vars["refund"])
}

func TestServiceJoinsSendErrors(t *testing.T) {
	boom := errors.New("smtp down")
	svc := &Service{Sender: &recorder{err: boom}}
	raw := envelope(t, "evt-10", "reservation.created.v1", map[string]any{"ReservationID": "res-1"})
	err := svc.Handle(context.Background(), raw)
	assert.ErrorIs(t, err, boom)
}
