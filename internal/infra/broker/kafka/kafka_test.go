package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerPublish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":"evt-1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := WrapSyncProducer(mock)
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, "reservation.events.v1", "res-1", []byte(`{"id":"evt-1"}`), map[string]string{"content-type": "application/cloudevents+json"}))
	assert.ErrorIs(t, p.Publish(ctx, "reservation.events.v1", "res-1", []byte(`{}`), nil), sarama.ErrOutOfBrokers)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(ctx, "t", "k", nil, nil), ErrProducerClosed)
}

func TestProducerRespectsCancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := WrapSyncProducer(mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "t", "k", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, m.Offset)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c fakeClaim) Topic() string                            { return "reservation.events.v1" }
func (c fakeClaim) Partition() int32                         { return 0 }
func (c fakeClaim) InitialOffset() int64                     { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64               { return int64(len(c.msgs)) }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func TestConsumeClaimMarksHandledRecords(t *testing.T) {
	claim := fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 3)}
	for i := int64(0); i < 3; i++ {
		claim.msgs <- &sarama.ConsumerMessage{Topic: "reservation.events.v1", Offset: i, Value: []byte("x")}
	}
	close(claim.msgs)

	var handled []int64
	c := newConsumer(nil, nil, func(_ context.Context, m *sarama.ConsumerMessage) error {
		handled = append(handled, m.Offset)
		if m.Offset == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sess := &fakeSession{ctx: context.Background()}
	err := c.ConsumeClaim(sess, claim)
	require.Error(t, err)
	assert.Equal(t, []int64{0, 1}, handled)
	assert.Equal(t, []int64{0}, sess.marked)
}

func TestNewConfigEnablesIdempotentProducer(t *testing.T) {
	cfg := NewConfig("relay")
	assert.Equal(t, "relay", cfg.ClientID)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.NoError(t, cfg.Validate())
}
