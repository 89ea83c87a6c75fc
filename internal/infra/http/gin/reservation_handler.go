package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	reservationsapp "staybook/internal/app/handlers/reservations"
	"staybook/internal/app/queries"
)

const idempotencyHeader = "Idempotency-Key"

type ReservationHandler struct {
	base
	Commands commands.Bus
	Queries  queries.Bus
}

func NewReservationHandler(cmds commands.Bus, qs queries.Bus, logger *slog.Logger) ReservationHandler {
	return ReservationHandler{base: base{Logger: logger}, Commands: cmds, Queries: qs}
}

func (h ReservationHandler) Create(c *gin.Context) {
	var cmd reservationsapp.CreateReservationCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.IdempotencyKeyV = strings.TrimSpace(c.GetHeader(idempotencyHeader))
	result, err := commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ReservationHandler) Get(c *gin.Context) {
	query := reservationsapp.GetReservationQuery{ReservationID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[reservationsapp.GetReservationQuery, dto.Reservation](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) ListForGuest(c *gin.Context) {
	query := reservationsapp.ListGuestReservationsQuery{GuestID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[reservationsapp.ListGuestReservationsQuery, dto.ReservationCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type confirmRequest struct {
	HostID string `json:"host_id"`
}

func (h ReservationHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := reservationsapp.ConfirmReservationCommand{
		ReservationID: strings.TrimSpace(c.Param("id")),
		HostID:        req.HostID,
	}
	h.dispatchTransition(c, cmd)
}

type cancelRequest struct {
	Actor   string `json:"actor"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h ReservationHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd := reservationsapp.CancelReservationCommand{
		ReservationID: strings.TrimSpace(c.Param("id")),
		Actor:         strings.ToUpper(strings.TrimSpace(req.Actor)),
		ActorID:       req.ActorID,
		Reason:        strings.TrimSpace(req.Reason),
	}
	h.dispatchTransition(c, cmd)
}

func (h ReservationHandler) Complete(c *gin.Context) {
	cmd := reservationsapp.CompleteReservationCommand{ReservationID: strings.TrimSpace(c.Param("id"))}
	h.dispatchTransition(c, cmd)
}

func (h ReservationHandler) dispatchTransition(c *gin.Context, cmd commands.Command) {
	result, err := h.Commands.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ ReservationHTTP = ReservationHandler{}
