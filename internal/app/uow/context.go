package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return unit, ok && unit != nil
}

// Bind places unit (and any driver state it carries) on ctx.
func Bind(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(ContextInjector); ok {
		ctx = injector.InjectContext(ctx)
	}
	return ContextWithUnitOfWork(ctx, unit)
}

// Run executes fn inside the unit already on ctx, or inside a fresh one it commits itself.
func Run(ctx context.Context, factory Factory, opts TxOptions, fn func(ctx context.Context, unit UnitOfWork) error) error {
	if unit, ok := FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	if factory == nil {
		return ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return err
	}
	execCtx := Bind(ctx, unit)
	if err := fn(execCtx, unit); err != nil {
		if ChangesKept(err) && !opts.ReadOnly {
			if cErr := unit.Commit(execCtx); cErr != nil {
				return errors.Join(err, cErr)
			}
			return err
		}
		if rbErr := unit.Rollback(execCtx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if opts.ReadOnly {
		return unit.Rollback(execCtx)
	}
	return unit.Commit(execCtx)
}

type keptError struct {
	err error
}

func (e keptError) Error() string { return e.err.Error() }

func (e keptError) Unwrap() error { return e.err }

// KeepChanges marks err as a failure whose state changes must still be committed, such as an expiry
// discovered while confirming.
func KeepChanges(err error) error {
	if err == nil {
		return nil
	}
	return keptError{err: err}
}

// ChangesKept reports whether err was produced by KeepChanges.
func ChangesKept(err error) bool {
	var kept keptError
	return errors.As(err, &kept)
}
