package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/app/handlers/reservations"
	"staybook/internal/app/policies"
	"staybook/internal/app/uow"
	"staybook/internal/domain/reservation"
)

const defaultBatch = 200

// Sweeper expires pending reservations past their confirmation deadline and completes paid ones whose
// stay or slot has ended. It goes through the bus so every change runs the same handlers and locks
// as a client request.
type Sweeper struct {
	Bus        commands.Bus
	UoWFactory uow.Factory
	Clock      policies.Clock
	Logger     *slog.Logger
	Interval   time.Duration
	Batch      int
}

// Result counts what one pass did.
type Result struct {
	Expired   int
	Completed int
	Failed    int
}

var ErrNotConfigured = errors.New("sweeper: missing bus or unit of work factory")

func (s *Sweeper) Run(ctx context.Context) error {
	if s.Bus == nil || s.UoWFactory == nil {
		return ErrNotConfigured
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.log().ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			if res.Expired+res.Completed+res.Failed > 0 {
				s.log().InfoContext(ctx, "sweep done", "expired", res.Expired, "completed", res.Completed, "failed", res.Failed)
			}
		}
	}
}

// Sweep runs a single pass. Individual failures are logged and counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	if s.Bus == nil || s.UoWFactory == nil {
		return res, ErrNotConfigured
	}
	now := s.now()
	pending, paid, err := s.candidates(ctx)
	if err != nil {
		return res, err
	}
	for _, r := range pending {
		if !r.DeadlinePassed(now) {
			continue
		}
		_, err := s.Bus.Dispatch(ctx, reservations.ExpireReservationCommand{ReservationID: string(r.ID)})
		if s.count(ctx, "expire", r.ID, err) {
			res.Expired++
		} else {
			res.Failed++
		}
	}
	for _, r := range paid {
		if now.Before(r.EndsAt) {
			continue
		}
		_, err := s.Bus.Dispatch(ctx, reservations.CompleteReservationCommand{ReservationID: string(r.ID)})
		if s.count(ctx, "complete", r.ID, err) {
			res.Completed++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (s *Sweeper) candidates(ctx context.Context) (pending, paid []*reservation.Reservation, err error) {
	err = uow.Run(ctx, s.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if pending, err = unit.Reservations().ListByStatus(ctx, reservation.StatusPending, s.batch()); err != nil {
			return err
		}
		paid, err = unit.Reservations().ListByStatus(ctx, reservation.StatusPaid, s.batch())
		return err
	})
	return pending, paid, err
}

// count reports success. A reservation that moved on since it was listed is counted but not logged.
func (s *Sweeper) count(ctx context.Context, op string, id reservation.ID, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, reservation.ErrInvalidTransition) {
		return false
	}
	s.log().WarnContext(ctx, "sweep dispatch failed", "op", op, "reservation_id", id, "error", err)
	return false
}

func (s *Sweeper) batch() int {
	if s.Batch <= 0 {
		return defaultBatch
	}
	return s.Batch
}

func (s *Sweeper) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Sweeper) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
