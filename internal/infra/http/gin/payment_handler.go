package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	paymentsapp "staybook/internal/app/handlers/payments"
	"staybook/internal/app/queries"
)

type PaymentHandler struct {
	base
	Commands commands.Bus
	Queries  queries.Bus
}

func NewPaymentHandler(cmds commands.Bus, qs queries.Bus, logger *slog.Logger) PaymentHandler {
	return PaymentHandler{base: base{Logger: logger}, Commands: cmds, Queries: qs}
}

func (h PaymentHandler) Record(c *gin.Context) {
	var cmd paymentsapp.RecordPaymentCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.ReservationID = strings.TrimSpace(c.Param("id"))
	cmd.IdempotencyKeyV = strings.TrimSpace(c.GetHeader(idempotencyHeader))
	result, err := commands.Dispatch[paymentsapp.RecordPaymentCommand, *dto.Payment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h PaymentHandler) Balance(c *gin.Context) {
	query := paymentsapp.GetBalanceQuery{ReservationID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[paymentsapp.GetBalanceQuery, dto.Balance](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PaymentHandler) Settle(c *gin.Context) {
	var cmd paymentsapp.SettlePaymentCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.PaymentID = strings.TrimSpace(c.Param("id"))
	result, err := commands.Dispatch[paymentsapp.SettlePaymentCommand, *dto.Payment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PaymentHandler) Refund(c *gin.Context) {
	var cmd paymentsapp.RecordRefundCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.PaymentID = strings.TrimSpace(c.Param("id"))
	cmd.Kind = strings.ToUpper(strings.TrimSpace(cmd.Kind))
	cmd.IdempotencyKeyV = strings.TrimSpace(c.GetHeader(idempotencyHeader))
	result, err := commands.Dispatch[paymentsapp.RecordRefundCommand, *dto.Refund](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

var _ PaymentHTTP = PaymentHandler{}
