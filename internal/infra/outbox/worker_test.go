package outbox

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

type fakeStore struct {
	mu     sync.Mutex
	msgs   []*Message
	state  map[string]string
	next   map[string]time.Time
	errors map[string]string
}

func newFakeStore(msgs ...*Message) *fakeStore {
	s := &fakeStore{state: map[string]string{}, next: map[string]time.Time{}, errors: map[string]string{}}
	for _, m := range msgs {
		s.msgs = append(s.msgs, m)
		s.state[m.ID] = StateNew
	}
	return s
}

func (s *fakeStore) Claim(_ context.Context, _ string, now time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		st := s.state[m.ID]
		if (st == StateNew || st == StateFailed) && !s.next[m.ID].After(now) {
			s.state[m.ID] = StateClaimed
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[id] = StateSent
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[id] = StateFailed
	s.next[id] = next
	s.errors[id] = errMsg
	for _, m := range s.msgs {
		if m.ID == id {
			m.Attempts++
		}
	}
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	out  []published
	fail error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail != nil {
		return p.fail
	}
	p.out = append(p.out, published{topic, key, payload, headers})
	return nil
}

var occurred = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func message(id, name string) *Message {
	return &Message{
		ID: id, Name: name, Payload: []byte(`{"ReservationID":"res-1"}`), OccurredAt: occurred,
		Aggregate: "res-1", Headers: map[string]string{"event-name": name, "traceparent": "00-abc-def-01"},
	}
}

func TestDrainPublishesCloudEvents(t *testing.T) {
	store := newFakeStore(message("evt-1", "reservation.created"), message("evt-2", "payment.recorded"))
	prod := &fakeProducer{}
	w := &Worker{Store: store, Producer: prod, TopicPrefix: "stg.", Now: func() time.Time { return occurred }}

	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, prod.out, 2)
	assert.Equal(t, "stg.reservation.events.v1", prod.out[0].topic)
	assert.Equal(t, "stg.payment.events.v1", prod.out[1].topic)
	assert.Equal(t, "res-1", prod.out[0].key)
	assert.Equal(t, "application/cloudevents+json", prod.out[0].headers["content-type"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(prod.out[0].payload, &evt))
	assert.Equal(t, "1.0", evt["specversion"])
	assert.Equal(t, "reservation.created.v1", evt["type"])
	assert.Equal(t, "app://staybook", evt["source"])
	assert.Equal(t, "00-abc-def-01", evt["traceparent"])
	assert.Equal(t, map[string]any{"ReservationID": "res-1"}, evt["data"])
	assert.Equal(t, StateSent, store.state["evt-1"])
}

func TestFailedPublishBacksOff(t *testing.T) {
	store := newFakeStore(message("evt-1", "reservation.created"))
	prod := &fakeProducer{fail: errors.New("broker down")}
	now := occurred
	w := &Worker{Store: store, Producer: prod, Backoff: []time.Duration{time.Second, 5 * time.Second}, Now: func() time.Time { return now }}

	ok, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateFailed, store.state["evt-1"])
	assert.Equal(t, occurred.Add(time.Second), store.next["evt-1"])
	assert.Equal(t, "broker down", store.errors["evt-1"])

	ok, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	now = occurred.Add(2 * time.Second)
	ok, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, now.Add(5*time.Second), store.next["evt-1"])

	prod.fail = nil
	now = now.Add(10 * time.Second)
	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, StateSent, store.state["evt-1"])
}

func TestMalformedPayloadIsMarkedFailed(t *testing.T) {
	bad := message("evt-1", "reservation.created")
	bad.Payload = []byte("not json")
	store := newFakeStore(bad)
	w := &Worker{Store: store, Producer: &fakeProducer{}, Now: func() time.Time { return occurred }}

	ok, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateFailed, store.state["evt-1"])
}

func TestRunRequiresDependencies(t *testing.T) {
	err := (&Worker{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrWorkerNotConfigured)
}

func TestRunStopsOnWakeAndCancel(t *testing.T) {
	store := newFakeStore(message("evt-1", "reservation.created"))
	prod := &fakeProducer{}
	wake := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{Store: store, Producer: prod, Interval: time.Hour, Wake: wake, Now: func() time.Time { return occurred }}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	wake <- struct{}{}
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.state["evt-1"] == StateSent
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
