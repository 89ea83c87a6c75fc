package middleware

import (
	"context"
	"errors"

	"staybook/internal/app/commands"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction runs each command inside a fresh unit of work and commits it when the handler succeeds.
func Transaction(factory uow.Factory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			opts := uow.TxOptions{}
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			unit, err := factory.Begin(ctx, opts)
			if err != nil {
				return nil, err
			}
			execCtx := uow.Bind(ctx, unit)
			res, err := next.Dispatch(execCtx, cmd)
			if err != nil {
				if uow.ChangesKept(err) {
					if cErr := unit.Commit(execCtx); cErr != nil {
						return nil, errors.Join(err, cErr)
					}
					return res, err
				}
				if rbErr := unit.Rollback(execCtx); rbErr != nil {
					return nil, errors.Join(err, rbErr)
				}
				return nil, err
			}
			if err := unit.Commit(execCtx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}

// ReadOnly gives each query a read-only unit that is always rolled back.
func ReadOnly(factory uow.Factory) QueryMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			var res any
			err := uow.Run(ctx, factory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, _ uow.UnitOfWork) error {
				var err error
				res, err = next.Ask(ctx, q)
				return err
			})
			return res, err
		})
	}
}
