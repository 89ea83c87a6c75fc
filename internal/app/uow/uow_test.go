package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
)

type ctxMarker struct{}

type unit struct {
	commits, rollbacks int
}

func (u *unit) Items() inventory.Repository          { return nil }
func (u *unit) Availability() availability.Store     { return nil }
func (u *unit) Reservations() reservation.Repository { return nil }
func (u *unit) Payments() payment.Repository         { return nil }
func (u *unit) Outbox() outbox.Outbox                { return nil }
func (u *unit) Commit(context.Context) error         { u.commits++; return nil }
func (u *unit) Rollback(context.Context) error       { u.rollbacks++; return nil }

func (u *unit) InjectContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxMarker{}, "session")
}

type factory struct{ last *unit }

func (f *factory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	f.last = &unit{}
	return f.last, nil
}

func TestRunCommitsAndInjects(t *testing.T) {
	f := &factory{}
	err := uow.Run(context.Background(), f, uow.TxOptions{}, func(ctx context.Context, u uow.UnitOfWork) error {
		assert.Equal(t, "session", ctx.Value(ctxMarker{}))
		got, ok := uow.FromContext(ctx)
		require.True(t, ok)
		assert.Same(t, u, got)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.last.commits)
}

func TestRunReusesUnitOnContext(t *testing.T) {
	outer := &unit{}
	ctx := uow.Bind(context.Background(), outer)
	f := &factory{}
	err := uow.Run(ctx, f, uow.TxOptions{}, func(_ context.Context, u uow.UnitOfWork) error {
		assert.Same(t, outer, u)
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, f.last, "no new unit begun")
	assert.Zero(t, outer.commits, "the owner of the unit commits it")
}

func TestRunRollsBackAndKeepsChanges(t *testing.T) {
	f := &factory{}
	boom := errors.New("boom")
	err := uow.Run(context.Background(), f, uow.TxOptions{}, func(context.Context, uow.UnitOfWork) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.last.rollbacks)

	err = uow.Run(context.Background(), f, uow.TxOptions{}, func(context.Context, uow.UnitOfWork) error {
		return uow.KeepChanges(reservation.ErrExpired)
	})
	assert.ErrorIs(t, err, reservation.ErrExpired)
	assert.True(t, uow.ChangesKept(err))
	assert.Equal(t, 1, f.last.commits)

	err = uow.Run(context.Background(), f, uow.TxOptions{ReadOnly: true}, func(context.Context, uow.UnitOfWork) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, f.last.rollbacks)
	assert.Zero(t, f.last.commits)
}

func TestRunWithoutFactory(t *testing.T) {
	err := uow.Run(context.Background(), nil, uow.TxOptions{}, func(context.Context, uow.UnitOfWork) error { return nil })
	assert.ErrorIs(t, err, uow.ErrUnitOfWorkMissing)
	assert.NoError(t, uow.KeepChanges(nil))
}
