package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/app/commands"
	"staybook/internal/app/middleware"
	"staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/inventory"
	"staybook/internal/domain/payment"
	"staybook/internal/domain/reservation"
	"staybook/internal/domain/shared/concurrency"
	"staybook/internal/infra/storage/memory"
)

type bookCmd struct {
	Item  string   `json:"item_id" validate:"required"`
	Keys  []string `json:"-"`
	IdemK string   `json:"-"`
}

func (c bookCmd) Key() string            { return "test.book" }
func (c bookCmd) LockKeys() []string     { return c.Keys }
func (c bookCmd) IdempotencyKey() string { return c.IdemK }
func (c bookCmd) ResultPrototype() any   { return &bookResult{} }

type bookResult struct {
	ID string `json:"id"`
}

type otherCmd struct{ IdemK string }

func (c otherCmd) Key() string            { return "test.other" }
func (c otherCmd) IdempotencyKey() string { return c.IdemK }
func (c otherCmd) ResultPrototype() any   { return &bookResult{} }

type busFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f busFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) { return f(ctx, cmd) }

type fakeUnit struct {
	committed  bool
	rolledBack bool
}

func (u *fakeUnit) Items() inventory.Repository          { return nil }
func (u *fakeUnit) Availability() availability.Store     { return nil }
func (u *fakeUnit) Reservations() reservation.Repository { return nil }
func (u *fakeUnit) Payments() payment.Repository         { return nil }
func (u *fakeUnit) Outbox() outbox.Outbox                { return nil }
func (u *fakeUnit) Commit(context.Context) error         { u.committed = true; return nil }
func (u *fakeUnit) Rollback(context.Context) error       { u.rolledBack = true; return nil }

type fakeFactory struct{ units []*fakeUnit }

func (f *fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	u := &fakeUnit{}
	f.units = append(f.units, u)
	return u, nil
}

func TestChainCommandsOrder(t *testing.T) {
	var trace []string
	mw := func(name string) middleware.CommandMiddleware {
		return func(next commands.Bus) commands.Bus {
			return busFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
				trace = append(trace, name)
				return next.Dispatch(ctx, cmd)
			})
		}
	}
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		trace = append(trace, "handler")
		return nil, nil
	})
	bus := middleware.ChainCommands(base, mw("outer"), nil, mw("inner"))
	_, err := bus.Dispatch(context.Background(), bookCmd{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestRetryOnConflictRetriesOnlyConcurrentUpdates(t *testing.T) {
	calls := 0
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("save: %w", concurrency.ErrConcurrentUpdate)
		}
		return "ok", nil
	})
	res, err := middleware.RetryOnConflict(2, 0)(base).Dispatch(context.Background(), bookCmd{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("boom")
	failing := busFunc(func(context.Context, commands.Command) (any, error) {
		calls++
		return nil, boom
	})
	_, err = middleware.RetryOnConflict(5, 0)(failing).Dispatch(context.Background(), bookCmd{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestLockingSerializesSharedKeys(t *testing.T) {
	locker := memory.NewLocker()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		mu.Lock()
		inside++
		if inside > maxSeen {
			maxSeen = inside
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inside--
		mu.Unlock()
		return nil, nil
	})
	bus := middleware.Locking(locker)(base)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"item:a", "res:x"}
			if i%2 == 0 {
				keys = []string{"res:x", "item:a", "item:a"}
			}
			_, err := bus.Dispatch(context.Background(), bookCmd{Keys: keys})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestValidationRejectsMissingFields(t *testing.T) {
	called := false
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		called = true
		return nil, nil
	})
	bus := middleware.Validation(middleware.NewStructValidator())(base)
	_, err := bus.Dispatch(context.Background(), bookCmd{})
	require.ErrorIs(t, err, middleware.ErrInvalidInput)
	assert.Contains(t, err.Error(), "item_id")
	assert.False(t, called)

	_, err = bus.Dispatch(context.Background(), bookCmd{Item: "a"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestIdempotencyReplaysStoredResult(t *testing.T) {
	store := memory.NewIdempotencyStore(time.Hour)
	calls := 0
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		calls++
		return &bookResult{ID: fmt.Sprintf("r%d", calls)}, nil
	})
	bus := middleware.Idempotency(store, nil, memory.NewLocker())(base)
	ctx := context.Background()

	first, err := bus.Dispatch(ctx, bookCmd{IdemK: "k1"})
	require.NoError(t, err)
	again, err := bus.Dispatch(ctx, bookCmd{IdemK: "k1"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, calls)

	_, err = bus.Dispatch(ctx, bookCmd{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "commands without a key are never cached")
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	store := memory.NewIdempotencyStore(time.Hour)
	calls := 0
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		calls++
		if calls == 1 {
			return nil, availability.ErrConflict
		}
		return &bookResult{ID: "r"}, nil
	})
	bus := middleware.Idempotency(store, nil, nil)(base)
	_, err := bus.Dispatch(context.Background(), bookCmd{IdemK: "k1"})
	assert.ErrorIs(t, err, availability.ErrConflict)
	res, err := bus.Dispatch(context.Background(), bookCmd{IdemK: "k1"})
	require.NoError(t, err)
	assert.Equal(t, &bookResult{ID: "r"}, res)
}

func TestTransactionCommitRollbackAndKeptChanges(t *testing.T) {
	f := &fakeFactory{}
	var seen uow.UnitOfWork
	outcome := error(nil)
	base := busFunc(func(ctx context.Context, _ commands.Command) (any, error) {
		seen, _ = uow.FromContext(ctx)
		return nil, outcome
	})
	bus := middleware.Transaction(f, nil)(base)
	ctx := context.Background()

	_, err := bus.Dispatch(ctx, bookCmd{})
	require.NoError(t, err)
	require.Len(t, f.units, 1)
	assert.Same(t, f.units[0], seen)
	assert.True(t, f.units[0].committed)

	outcome = errors.New("handler failed")
	_, err = bus.Dispatch(ctx, bookCmd{})
	assert.Error(t, err)
	assert.True(t, f.units[1].rolledBack)
	assert.False(t, f.units[1].committed)

	outcome = uow.KeepChanges(reservation.ErrExpired)
	_, err = bus.Dispatch(ctx, bookCmd{})
	assert.ErrorIs(t, err, reservation.ErrExpired)
	assert.True(t, f.units[2].committed)
}

type countingFlusher struct{ n int }

func (c *countingFlusher) Flush(context.Context) error { c.n++; return nil }

func TestOutboxFlushOnlyAfterSuccess(t *testing.T) {
	assert.Nil(t, middleware.OutboxFlush(nil))

	fl := &countingFlusher{}
	fail := true
	base := busFunc(func(context.Context, commands.Command) (any, error) {
		if fail {
			return nil, errors.New("nope")
		}
		return nil, nil
	})
	bus := middleware.OutboxFlush(fl)(base)
	_, _ = bus.Dispatch(context.Background(), bookCmd{})
	assert.Zero(t, fl.n)
	fail = false
	_, _ = bus.Dispatch(context.Background(), bookCmd{})
	assert.Equal(t, 1, fl.n)
}

type recordingObserver struct {
	keys []string
	errs []error
}

func (o *recordingObserver) ObserveCommand(key string, _ time.Duration, err error) {
	o.keys = append(o.keys, key)
	o.errs = append(o.errs, err)
}

func TestLoggingReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	boom := errors.New("boom")
	base := busFunc(func(_ context.Context, cmd commands.Command) (any, error) {
		if _, ok := cmd.(otherCmd); ok {
			return nil, boom
		}
		return "ok", nil
	})
	bus := middleware.Logging(slog.New(slog.NewTextHandler(io.Discard, nil)), obs)(base)
	_, _ = bus.Dispatch(context.Background(), bookCmd{})
	_, _ = bus.Dispatch(context.Background(), otherCmd{})
	assert.Equal(t, []string{"test.book", "test.other"}, obs.keys)
	assert.NoError(t, obs.errs[0])
	assert.ErrorIs(t, obs.errs[1], boom)
}

func TestIdempotencyKeyReusedAcrossCommands(t *testing.T) {
	store := memory.NewIdempotencyStore(time.Hour)
	ctx := context.Background()
	// a record written under this key by a different command
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "test.other:k1", Command: "test.book", Payload: []byte(`{}`), OccurredAt: time.Now()}))
	base := busFunc(func(context.Context, commands.Command) (any, error) { return &bookResult{}, nil })
	_, err := middleware.Idempotency(store, nil, nil)(base).Dispatch(ctx, otherCmd{IdemK: "k1"})
	assert.ErrorIs(t, err, middleware.ErrKeyReused)
}
