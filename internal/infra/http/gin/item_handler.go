package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	availabilityapp "staybook/internal/app/handlers/availability"
	itemsapp "staybook/internal/app/handlers/items"
	"staybook/internal/app/queries"
	"staybook/internal/domain/inventory"
)

type ItemHandler struct {
	base
	Commands commands.Bus
	Queries  queries.Bus
}

func NewItemHandler(cmds commands.Bus, qs queries.Bus, logger *slog.Logger) ItemHandler {
	return ItemHandler{base: base{Logger: logger}, Commands: cmds, Queries: qs}
}

func (h ItemHandler) Register(c *gin.Context) {
	var cmd itemsapp.RegisterItemCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.ID = strings.TrimSpace(c.Param("id"))
	item, err := commands.Dispatch[itemsapp.RegisterItemCommand, *inventory.Item](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory.EncodeItem(item))
}

func (h ItemHandler) SetAvailability(c *gin.Context) {
	var cmd availabilityapp.SetAvailabilityCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, err)
		return
	}
	cmd.ItemID = strings.TrimSpace(c.Param("id"))
	result, err := commands.Dispatch[availabilityapp.SetAvailabilityCommand, *dto.WindowsUpdate](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type spanQuery struct {
	CheckIn   string `form:"check_in"`
	CheckOut  string `form:"check_out"`
	Slot      string `form:"slot"`
	PartySize int    `form:"party_size"`
}

func (h ItemHandler) bindSpan(c *gin.Context) (spanQuery, bool) {
	q := spanQuery{PartySize: 1}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return q, false
	}
	return q, true
}

func (h ItemHandler) CheckAvailability(c *gin.Context) {
	q, ok := h.bindSpan(c)
	if !ok {
		return
	}
	query := availabilityapp.CheckAvailabilityQuery{
		ItemID:    c.Param("id"),
		CheckIn:   q.CheckIn,
		CheckOut:  q.CheckOut,
		Slot:      q.Slot,
		PartySize: q.PartySize,
	}
	result, err := queries.Ask[availabilityapp.CheckAvailabilityQuery, dto.AvailabilityCheck](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ItemHandler) Quote(c *gin.Context) {
	q, ok := h.bindSpan(c)
	if !ok {
		return
	}
	query := availabilityapp.QuotePriceQuery{
		ItemID:    c.Param("id"),
		CheckIn:   q.CheckIn,
		CheckOut:  q.CheckOut,
		Slot:      q.Slot,
		PartySize: q.PartySize,
	}
	result, err := queries.Ask[availabilityapp.QuotePriceQuery, dto.Quote](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ItemHandler) Calendar(c *gin.Context) {
	query := availabilityapp.GetCalendarQuery{
		ItemID: c.Param("id"),
		From:   c.Query("from"),
		To:     c.Query("to"),
	}
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ ItemHTTP = ItemHandler{}
