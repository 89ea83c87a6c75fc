package ginserver

import (
	"log/slog"

	"staybook/internal/app/commands"
	"staybook/internal/app/queries"
)

// NewHandlers wires every route group to the same buses.
func NewHandlers(cmds commands.Bus, qs queries.Bus, logger *slog.Logger) Handlers {
	return Handlers{
		Items:        NewItemHandler(cmds, qs, logger),
		Reservations: NewReservationHandler(cmds, qs, logger),
		Payments:     NewPaymentHandler(cmds, qs, logger),
	}
}
